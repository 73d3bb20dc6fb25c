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

// PathOps is the "sys_ops" table from spec.md §3/§9: operations that
// address a file purely by path, before any handle exists for it.
type PathOps interface {
	Mkdir(path string, mode FileMode) error
	Rmdir(path string) error
	Stat(path string) (Stat, error)
	Creat(path string, mode FileMode) (*File, error)
	Symlink(target, path string) error
}

// FileOps is the "fs_ops" table from spec.md §3/§9: handle-level
// operations, plus Open/Readlink/Unlink, which the spec places in
// this table even though they are path-addressed (the backend
// resolves the final path component itself; the VFS switch has
// already picked the superblock).
type FileOps interface {
	Open(path string, flags OpenFlags, mode FileMode) (*File, error)
	Close(h *File) error
	Read(h *File, buf []byte, offset int64) (int, error)
	Write(h *File, buf []byte, offset int64) (int, error)
	Lseek(h *File, offset int64, whence int) (int64, error)
	Stat(h *File) (Stat, error)
	Ioctl(h *File, cmd int, arg uintptr) (int, error)
	Getdents(h *File, skip, count int) ([]Dirent, error)
	Readlink(path string) (string, error)
	Unlink(path string) error
}

// FileSystemType is a named filesystem descriptor registered in the
// process-wide VFS registry, per spec.md §3 "Filesystem type".
type FileSystemType struct {
	Name  string
	Flags int

	// Mount constructs a root *File for a new instance of this
	// filesystem type, given the mount path it is being bound to and
	// a backend-specific device argument (an already-resolved
	// absolute path, e.g. where an initrd image lives).
	Mount func(mountPath, device string) (*File, error)
}

// Superblock binds a mount path to a filesystem type instance and its
// root file handle, per spec.md §3 "Superblock".
type Superblock struct {
	Name      string
	MountPath string
	Type      *FileSystemType
	Root      *File
}

// File is a reference-counted open file handle, per spec.md §3 "File
// handle". initrd and procfs handles carry both operation tables, and
// a backend that doesn't support an operation in a table returns
// ErrNotSupported for it. Pipe handles carry only FileOps; their
// SysOps is nil. Path dispatch checks a superblock root's tables for
// nil before calling them.
type File struct {
	Name  string
	Ino   uint64
	UID   int
	GID   int
	Mask  FileMode
	Length int64
	Flags OpenFlags
	Pos   int64 // f_pos

	Device string

	SysOps PathOps
	FileOps FileOps

	// count is the reference count. Mutations only ever happen while
	// holding the owning VFS's refLock (spec.md §5: "Reference counts
	// on file handles: guarded by a dedicated refcount spinlock").
	count int

	// Private is backend-owned state (a *procfs.Entry, a *pipefs.end,
	// ...; initrd leaves it nil). The VFS switch never inspects it.
	Private any
}

// Task is the minimal view of "the calling task" the VFS needs for
// its open() permission gate (spec.md §4.1). task.Task implements
// this.
type Task interface {
	PID() int
	UID() int
	GID() int
	Cwd() string
}

// FDTable is the per-task file-descriptor vector (spec.md §3 "Task fd
// table"). task.FDTable implements this; the VFS switch depends only
// on the interface so it never reaches into scheduler-owned state
// directly (spec.md §9 design note).
type FDTable interface {
	// Get returns the handle and flags bound to fd, or ok=false if
	// the slot is free or out of range.
	Get(fd int) (h *File, flags int, ok bool)

	// Install binds h (with the given flags) to the lowest-numbered
	// free slot, growing the table if necessary, and returns that
	// slot. ErrTooManyOpen is returned only if growth itself fails.
	Install(h *File, flags int) (fd int, err error)

	// Free releases fd back to the free list. It does not touch the
	// handle's refcount; callers decide that.
	Free(fd int) error
}
