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

package vfs

import (
	"errors"
	"testing"
)

// countingFileOps counts how many times Close actually runs, so tests
// can assert it happens exactly once per handle regardless of how
// many fds shared it.
type countingFileOps struct {
	closes *int
}

func (f countingFileOps) Open(path string, flags OpenFlags, mode FileMode) (*File, error) {
	return nil, ErrNotSupported
}
func (f countingFileOps) Close(h *File) error { *f.closes++; return nil }
func (f countingFileOps) Read(h *File, buf []byte, offset int64) (int, error) {
	return 0, ErrNotSupported
}
func (f countingFileOps) Write(h *File, buf []byte, offset int64) (int, error) {
	return 0, ErrNotSupported
}
func (f countingFileOps) Lseek(h *File, offset int64, whence int) (int64, error) {
	return 0, ErrNotSupported
}
func (f countingFileOps) Stat(h *File) (Stat, error)                { return Stat{}, ErrNotSupported }
func (f countingFileOps) Ioctl(h *File, cmd int, arg uintptr) (int, error) {
	return 0, ErrNotSupported
}
func (f countingFileOps) Getdents(h *File, skip, count int) ([]Dirent, error) {
	return nil, ErrNotSupported
}
func (f countingFileOps) Readlink(path string) (string, error) { return "", ErrNotALink }
func (f countingFileOps) Unlink(path string) error              { return ErrNotSupported }

type fakeTask struct{ uid, gid, pid int }

func (f fakeTask) PID() int    { return f.pid }
func (f fakeTask) UID() int    { return f.uid }
func (f fakeTask) GID() int    { return f.gid }
func (f fakeTask) Cwd() string { return "/" }

type fakeFDTable struct {
	slots []*File
	flags []int
}

func newFakeFDTable() *fakeFDTable { return &fakeFDTable{slots: make([]*File, 4), flags: make([]int, 4)} }

func (f *fakeFDTable) Get(fd int) (*File, int, bool) {
	if fd < 0 || fd >= len(f.slots) || f.slots[fd] == nil {
		return nil, 0, false
	}
	return f.slots[fd], f.flags[fd], true
}

func (f *fakeFDTable) Install(h *File, flags int) (int, error) {
	for i, s := range f.slots {
		if s == nil {
			f.slots[i] = h
			f.flags[i] = flags
			return i, nil
		}
	}
	return -1, ErrTooManyOpen
}

func (f *fakeFDTable) Free(fd int) error {
	if fd < 0 || fd >= len(f.slots) || f.slots[fd] == nil {
		return ErrBadFd
	}
	f.slots[fd] = nil
	return nil
}

// TestCloseInvokesBackendCloseExactlyOnceAfterDup is spec.md testable
// property 4, exercised across a Dup rather than a single Open: the
// backend Close must run exactly once, only when the last reference
// (original fd plus its dup) goes away.
func TestCloseInvokesBackendCloseExactlyOnceAfterDup(t *testing.T) {
	v := New()
	closes := 0
	h := &File{Name: "x", FileOps: countingFileOps{closes: &closes}}
	fdt := newFakeFDTable()

	fd, err := fdt.Install(h, 0)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	v.refLock.Lock()
	h.count = 1
	v.refLock.Unlock()

	dupFd, err := v.Dup(fdt, fd)
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}

	if err := v.Close(fdt, fd); err != nil {
		t.Fatalf("Close original: %v", err)
	}
	if closes != 0 {
		t.Fatalf("backend Close ran before last reference dropped: closes=%d", closes)
	}

	if err := v.Close(fdt, dupFd); err != nil {
		t.Fatalf("Close dup: %v", err)
	}
	if closes != 1 {
		t.Fatalf("backend Close ran %d times, want exactly 1", closes)
	}

	if err := v.Close(fdt, dupFd); !errors.Is(err, ErrBadFd) {
		t.Fatalf("Close of an already-freed fd: got %v, want EBADF", err)
	}
}

func TestDupFailsOnBadFd(t *testing.T) {
	v := New()
	fdt := newFakeFDTable()
	if _, err := v.Dup(fdt, 0); !errors.Is(err, ErrBadFd) {
		t.Fatalf("got %v, want EBADF", err)
	}
}

func TestDupFailsWhenFDTableFull(t *testing.T) {
	v := New()
	closes := 0
	h := &File{Name: "x", FileOps: countingFileOps{closes: &closes}}
	fdt := &fakeFDTable{slots: []*File{h}, flags: []int{0}} // single, already-full slot
	v.refLock.Lock()
	h.count = 1
	v.refLock.Unlock()

	if _, err := v.Dup(fdt, 0); !errors.Is(err, ErrTooManyOpen) {
		t.Fatalf("got %v, want EMFILE", err)
	}
	// The failed Dup must not have leaked a refcount bump.
	v.refLock.Lock()
	count := h.count
	v.refLock.Unlock()
	if count != 1 {
		t.Fatalf("refcount leaked after failed Dup: got %d, want 1", count)
	}
}
