/*
Copyright 2026 The Vkern Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pipefs

import (
	"testing"
	"time"

	"vkern.dev/pkg/vfs"
)

// TestPipeDrainThenEOF is spec.md's end-to-end scenario (c).
func TestPipeDrainThenEOF(t *testing.T) {
	rd, wr := Create(0, 0)

	if n, err := wr.FileOps.Write(wr, []byte("abcdef"), 0); err != nil || n != 6 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	buf := make([]byte, 3)
	n, err := rd.FileOps.Read(rd, buf, 0)
	if err != nil || n != 3 || string(buf) != "abc" {
		t.Fatalf("Read 3: n=%d err=%v buf=%q", n, err, buf[:n])
	}

	if err := wr.FileOps.Close(wr); err != nil {
		t.Fatalf("Close write end: %v", err)
	}

	buf = make([]byte, 10)
	n, err = rd.FileOps.Read(rd, buf, 0)
	if err != nil || n != 3 || string(buf[:n]) != "def" {
		t.Fatalf("Read 10 after close: n=%d err=%v buf=%q", n, err, buf[:n])
	}

	n, err = rd.FileOps.Read(rd, buf, 0)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF: n=%d err=%v", n, err)
	}
}

// TestPipeBlockingRendezvous is spec.md's end-to-end scenario (d).
func TestPipeBlockingRendezvous(t *testing.T) {
	rd, wr := Create(0, 0)

	result := make(chan byte, 1)
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		n, err := rd.FileOps.Read(rd, buf, 0)
		if err != nil {
			errc <- err
			return
		}
		if n != 1 {
			errc <- nil
			return
		}
		result <- buf[0]
	}()

	time.Sleep(20 * time.Millisecond) // give the reader time to block
	if n, err := wr.FileOps.Write(wr, []byte("x"), 0); err != nil || n != 1 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	select {
	case b := <-result:
		if b != 'x' {
			t.Fatalf("got byte %q, want 'x'", b)
		}
	case err := <-errc:
		t.Fatalf("reader failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never woke up")
	}
}

// TestPipeFIFOOrdering is spec.md's testable property 3.
func TestPipeFIFOOrdering(t *testing.T) {
	rd, wr := Create(0, 0)

	writes := []string{"foo", "bar", "baz"}
	for _, w := range writes {
		if n, err := wr.FileOps.Write(wr, []byte(w), 0); err != nil || n != len(w) {
			t.Fatalf("Write(%q): n=%d err=%v", w, n, err)
		}
	}

	var got []byte
	buf := make([]byte, 2)
	for len(got) < len("foobarbaz") {
		n, err := rd.FileOps.Read(rd, buf, 0)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "foobarbaz" {
		t.Fatalf("got %q, want %q", got, "foobarbaz")
	}
}

func TestPipeCloseDropsEndExactlyOnce(t *testing.T) {
	rd, wr := Create(0, 0)
	p := rd.Private.(*end).pipe

	if p.readers != 1 || p.writers != 1 {
		t.Fatalf("got readers=%d writers=%d, want 1,1", p.readers, p.writers)
	}
	if err := rd.FileOps.Close(rd); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.readers != 0 {
		t.Fatalf("got readers=%d after close, want 0", p.readers)
	}
	if err := wr.FileOps.Close(wr); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.writers != 0 {
		t.Fatalf("got writers=%d after close, want 0", p.writers)
	}
}

func TestPipeStatIsFIFO(t *testing.T) {
	rd, _ := Create(1, 2)
	st, err := rd.FileOps.Stat(rd)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !st.Mode.IsFifo() || st.Size != 0 {
		t.Fatalf("got mode=%v size=%d, want FIFO size 0", st.Mode, st.Size)
	}
}

func TestPipeNonblockingReadOnEmptyReturnsZero(t *testing.T) {
	rd, _ := Create(0, 0)
	rd.Flags |= vfs.O_NONBLOCK
	buf := make([]byte, 4)
	n, err := rd.FileOps.Read(rd, buf, 0)
	if err != nil || n != 0 {
		t.Fatalf("got n=%d err=%v, want 0,nil", n, err)
	}
}
