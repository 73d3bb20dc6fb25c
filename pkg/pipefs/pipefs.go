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

// Package pipefs implements the anonymous pipe subsystem described in
// spec.md §4.5: a set of fixed-size buffers addressed as a ring over
// linear read/write indices, with blocking and non-blocking read and
// write and level-triggered wait-queue wakeups.
package pipefs

import (
	"sync"

	"vkern.dev/pkg/vfs"
)

// NumBuffers and BufferSize give the pipe its total capacity:
// NumBuffers * BufferSize bytes, per spec.md §4.5.
const (
	NumBuffers = 16
	BufferSize = 4096
)

type pipeBuffer struct {
	data   []byte
	len    int
	offset int
}

// Pipe is the pipe_inode_info of spec.md §3: a mutex, the buffer
// ring, monotonically increasing read/write linear indices, and
// access-mode reference counts. Wait queues are modeled as
// sync.Cond, broadcast (level-triggered, per spec.md §5) rather than
// signaled to a single waiter, since every state change must
// re-evaluate every waiter's predicate.
type Pipe struct {
	mu      sync.Mutex
	buffers [NumBuffers]pipeBuffer

	readIndex  int64
	writeIndex int64

	readers int
	writers int

	readCond  *sync.Cond
	writeCond *sync.Cond
}

func newPipe() *Pipe {
	p := &Pipe{}
	for i := range p.buffers {
		p.buffers[i].data = make([]byte, BufferSize)
	}
	p.readCond = sync.NewCond(&p.mu)
	p.writeCond = sync.NewCond(&p.mu)
	return p
}

func bufferIndex(linear int64) int {
	return int((linear / BufferSize) % NumBuffers)
}

// addEnd and dropEnd are the single mutation points for readers and
// writers. The source's create_pipe_fd variants increment these at
// inconsistent call sites (spec.md §9, open question 3); here both
// counts only ever change through these two functions, always
// exactly once per handle's lifetime (on creation and on the VFS
// refcount dropping to zero), so "readers/writers reflect the number
// of fds currently referencing the pipe in that mode" holds by
// construction.
func (p *Pipe) addEnd(write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if write {
		p.writers++
	} else {
		p.readers++
	}
}

func (p *Pipe) dropEnd(write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if write {
		p.writers--
		if p.writers == 0 {
			p.readCond.Broadcast() // readers must observe EOF once buffered bytes drain
		}
	} else {
		p.readers--
		if p.readers == 0 {
			p.writeCond.Broadcast()
		}
	}
}

// end distinguishes a pipe's read handle from its write handle; it is
// the Private payload of the *vfs.File each carries.
type end struct {
	pipe  *Pipe
	write bool
}

// Create allocates a new pipe and returns its read and write
// *vfs.File handles, per spec.md §4.5's pipe_create: readers=writers=1,
// the read end opens O_RDONLY, the write end opens O_WRONLY, both
// carrying the pipe's FileOps table.
func Create(uid, gid int) (readEnd, writeEnd *vfs.File) {
	p := newPipe()
	p.addEnd(false)
	p.addEnd(true)

	readEnd = &vfs.File{
		Name: "pipe", Mask: vfs.S_IFIFO | 0o600, UID: uid, GID: gid,
		Flags: vfs.O_RDONLY, FileOps: fileOps{}, Private: &end{pipe: p, write: false},
	}
	writeEnd = &vfs.File{
		Name: "pipe", Mask: vfs.S_IFIFO | 0o600, UID: uid, GID: gid,
		Flags: vfs.O_WRONLY, FileOps: fileOps{}, Private: &end{pipe: p, write: true},
	}
	return readEnd, writeEnd
}

// CreateFDs is the fd-table-facing form: it installs both ends into
// fdt and returns their fd numbers, mirroring pipe(2)'s fds[2] array.
func CreateFDs(fdt vfs.FDTable, uid, gid int) (readFd, writeFd int, err error) {
	rd, wr := Create(uid, gid)
	readFd, err = fdt.Install(rd, int(vfs.O_RDONLY))
	if err != nil {
		return -1, -1, err
	}
	writeFd, err = fdt.Install(wr, int(vfs.O_WRONLY))
	if err != nil {
		_ = fdt.Free(readFd)
		return -1, -1, err
	}
	return readFd, writeFd, nil
}

type fileOps struct{}

func (fileOps) Open(path string, flags vfs.OpenFlags, mode vfs.FileMode) (*vfs.File, error) {
	return nil, vfs.ErrNotSupported
}

func (fileOps) Close(h *vfs.File) error {
	e, ok := h.Private.(*end)
	if !ok {
		return vfs.ErrInvalid
	}
	e.pipe.dropEnd(e.write)
	return nil
}

// Read implements spec.md §4.5's pipe_read: blocking (unless
// O_NONBLOCK) until at least one byte is available or the write end
// is gone, with level-triggered wakeup of writers as buffers free up.
func (fileOps) Read(h *vfs.File, buf []byte, offset int64) (int, error) {
	e, ok := h.Private.(*end)
	if !ok || e.write {
		return 0, vfs.ErrInvalid
	}
	p := e.pipe
	nonblocking := h.Flags&vfs.O_NONBLOCK != 0

	p.mu.Lock()
	defer p.mu.Unlock()

	read := 0
	for read < len(buf) {
		if p.writeIndex-p.readIndex == 0 {
			if read > 0 {
				break
			}
			if p.writers == 0 || nonblocking {
				return read, nil
			}
			p.readCond.Wait()
			continue
		}

		b := &p.buffers[bufferIndex(p.readIndex)]
		if b.len <= 0 || b.offset+b.len > BufferSize {
			panic("pipefs: corrupted pipe buffer")
		}
		n := copy(buf[read:], b.data[b.offset:b.offset+b.len])
		b.offset += n
		b.len -= n
		p.readIndex += int64(n)
		read += n
		if b.len == 0 {
			// Rewind only once the whole buffer is consumed, so the
			// in-buffer position stays linear index mod BufferSize.
			if p.readIndex%BufferSize == 0 {
				b.offset = 0
			}
			p.writeCond.Broadcast()
		}
	}
	return read, nil
}

// Write implements spec.md §4.5's pipe_write, symmetric to Read.
func (fileOps) Write(h *vfs.File, buf []byte, offset int64) (int, error) {
	e, ok := h.Private.(*end)
	if !ok || !e.write {
		return 0, vfs.ErrInvalid
	}
	p := e.pipe
	nonblocking := h.Flags&vfs.O_NONBLOCK != 0

	p.mu.Lock()
	defer p.mu.Unlock()

	written := 0
	for written < len(buf) {
		b := &p.buffers[bufferIndex(p.writeIndex)]
		free := BufferSize - (b.offset + b.len)
		if free <= 0 {
			if written > 0 {
				break
			}
			if nonblocking {
				return 0, nil
			}
			p.writeCond.Wait()
			continue
		}
		n := len(buf) - written
		if n > free {
			n = free
		}
		copy(b.data[b.offset+b.len:b.offset+b.len+n], buf[written:written+n])
		b.len += n
		p.writeIndex += int64(n)
		written += n
		p.readCond.Broadcast()
	}
	return written, nil
}

func (fileOps) Lseek(h *vfs.File, offset int64, whence int) (int64, error) {
	return 0, vfs.ErrInvalid
}

// Stat returns a FIFO stat with size 0 and default rw permissions, per
// spec.md §4.5 ("lseek, stat on pipes are not meaningful").
func (fileOps) Stat(h *vfs.File) (vfs.Stat, error) {
	return vfs.Stat{Mode: vfs.S_IFIFO | 0o600, UID: h.UID, GID: h.GID}, nil
}

func (fileOps) Ioctl(h *vfs.File, cmd int, arg uintptr) (int, error) {
	return 0, vfs.ErrNotSupported
}

func (fileOps) Getdents(h *vfs.File, skip, count int) ([]vfs.Dirent, error) {
	return nil, vfs.ErrNotDir
}

func (fileOps) Readlink(path string) (string, error) {
	return "", vfs.ErrNotALink
}

func (fileOps) Unlink(path string) error {
	return vfs.ErrNotSupported
}
