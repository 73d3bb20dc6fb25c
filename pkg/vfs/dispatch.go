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
	"path"
	"strings"

	"vkern.dev/pkg/ipcperm"
	"vkern.dev/pkg/vfs/resolver"
)

// taskRequester adapts a Task to ipcperm.Requester. The VFS open
// check never uses a private (negative) IPC key, so Parents is never
// consulted and can safely return nil.
type taskRequester struct{ t Task }

func (r taskRequester) PID() int                    { return r.t.PID() }
func (r taskRequester) UID() int                    { return r.t.UID() }
func (r taskRequester) GID() int                    { return r.t.GID() }
func (r taskRequester) Parents() []ipcperm.Requester { return nil }

// checkOpenPermission implements spec.md §4.1's permission gate by
// delegating to the same ipcperm.Check that guards SysV IPC objects,
// per §4.6's requirement that the two paths share semantics exactly.
func checkOpenPermission(task Task, h *File, flags OpenFlags) error {
	var mode ipcperm.Mode
	switch flags.Accmode() {
	case O_WRONLY:
		mode = ipcperm.WriteOnly
	case O_RDWR:
		mode = ipcperm.ReadWrite
	default:
		mode = ipcperm.ReadOnly
	}
	perm := ipcperm.Perm{
		Key:  1, // file opens are never "private key" checks
		UID:  h.UID,
		GID:  h.GID,
		CUID: h.UID,
		CGID: h.GID,
		Mode: uint16(h.Mask.Perm()),
	}
	if err := ipcperm.Check(perm, taskRequester{task}, mode); err != nil {
		return ErrAccess
	}
	return nil
}

func (v *VFS) resolveSuperblock(absPath string) (*Superblock, error) {
	sb, ok := v.GetSuperblock(absPath)
	if !ok {
		return nil, ErrNotExist
	}
	return sb, nil
}

// pathBackend adapts *VFS's literal, already-absolute path dispatch to
// resolver.Backend. A resolution already in progress needs the raw
// per-component readlink the resolver itself is built around, not
// another round of cwd-seeding and symlink-following layered on top.
type pathBackend struct{ v *VFS }

func (b pathBackend) Readlink(absPath string) (string, error) {
	return b.v.readlinkAt(absPath)
}

// readlinkAt dispatches a literal, already-resolved absolute path
// straight to its superblock's FileOps.Readlink, with no further path
// resolution — the building block both resolver.Resolve (via
// pathBackend) and the public Readlink are made of.
func (v *VFS) readlinkAt(absPath string) (string, error) {
	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return "", err
	}
	if sb.Root.FileOps == nil {
		return "", ErrNotSupported
	}
	return sb.Root.FileOps.Readlink(absPath)
}

// resolvePath canonicalizes rawPath against task's cwd and follows
// symlinks through this same VFS, per spec.md §4.2 and §2's "the path
// resolver first yields an absolute path" data flow.
func (v *VFS) resolvePath(task Task, rawPath string, rflags resolver.Flags) (string, error) {
	return resolver.Resolve(task.Cwd(), rawPath, rflags, pathBackend{v})
}

// resolveParent resolves everything but rawPath's final component
// (following `.`/`..` and symlinks along the way) and reattaches that
// component literally. Operations that act on the named entry itself
// rather than whatever it points to — mkdir, rmdir, unlink, symlink's
// new name, readlink — resolve through this instead of resolvePath,
// so they never themselves follow a terminal symlink.
func (v *VFS) resolveParent(task Task, rawPath string) (string, error) {
	trimmed := rawPath
	if len(trimmed) > 1 {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	dir, base := path.Split(trimmed)
	if base == "" {
		return "", ErrInvalid
	}

	resolvedDir, err := v.resolvePath(task, path.Clean(dir), resolver.FollowLinks|resolver.RemoveTrailingSlash)
	if err != nil {
		return "", err
	}
	if resolvedDir == "/" {
		return "/" + base, nil
	}
	return resolvedDir + "/" + base, nil
}

// Open resolves rawPath to an absolute path against task's cwd
// (following symlinks, and tolerating a missing final component when
// O_CREAT is set), selects its superblock, asks the root handle's
// FileOps.Open for a new handle, applies the open() permission gate,
// and installs the result into fdt.
func (v *VFS) Open(task Task, fdt FDTable, rawPath string, flags OpenFlags, mode FileMode) (int, error) {
	rflags := resolver.FollowLinks | resolver.RemoveTrailingSlash
	if flags&O_CREAT != 0 {
		rflags |= resolver.CreatLastComponent
	}
	absPath, err := v.resolvePath(task, rawPath, rflags)
	if err != nil {
		return -1, err
	}

	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return -1, err
	}
	if sb.Root.FileOps == nil {
		return -1, ErrNotSupported
	}
	h, err := sb.Root.FileOps.Open(absPath, flags, mode)
	if err != nil {
		return -1, err
	}

	if err := checkOpenPermission(task, h, flags); err != nil {
		_ = h.FileOps.Close(h)
		return -1, err
	}

	v.refLock.Lock()
	h.count = 1
	v.refLock.Unlock()

	fd, err := fdt.Install(h, int(flags))
	if err != nil {
		_ = h.FileOps.Close(h)
		return -1, err
	}
	return fd, nil
}

// Creat is the creat(2)-style shortcut: O_CREAT|O_WRONLY|O_TRUNC via
// the sys_ops table, then installed exactly like Open. The final
// component is always allowed to be missing.
func (v *VFS) Creat(task Task, fdt FDTable, rawPath string, mode FileMode) (int, error) {
	absPath, err := v.resolvePath(task, rawPath, resolver.FollowLinks|resolver.RemoveTrailingSlash|resolver.CreatLastComponent)
	if err != nil {
		return -1, err
	}

	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return -1, err
	}
	if sb.Root.SysOps == nil {
		return -1, ErrNotSupported
	}
	h, err := sb.Root.SysOps.Creat(absPath, mode)
	if err != nil {
		return -1, err
	}

	flags := O_WRONLY | O_CREAT | O_TRUNC
	if err := checkOpenPermission(task, h, flags); err != nil {
		_ = h.FileOps.Close(h)
		return -1, err
	}

	v.refLock.Lock()
	h.count = 1
	v.refLock.Unlock()

	fd, err := fdt.Install(h, int(flags))
	if err != nil {
		_ = h.FileOps.Close(h)
		return -1, err
	}
	return fd, nil
}

func (v *VFS) Mkdir(task Task, rawPath string, mode FileMode) error {
	absPath, err := v.resolveParent(task, rawPath)
	if err != nil {
		return err
	}
	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return err
	}
	if sb.Root.SysOps == nil {
		return ErrNotSupported
	}
	return sb.Root.SysOps.Mkdir(absPath, mode)
}

func (v *VFS) Rmdir(task Task, rawPath string) error {
	absPath, err := v.resolveParent(task, rawPath)
	if err != nil {
		return err
	}
	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return err
	}
	if sb.Root.SysOps == nil {
		return ErrNotSupported
	}
	return sb.Root.SysOps.Rmdir(absPath)
}

// StatPath follows the terminal symlink, matching stat(2)'s semantics.
func (v *VFS) StatPath(task Task, rawPath string) (Stat, error) {
	absPath, err := v.resolvePath(task, rawPath, resolver.FollowLinks|resolver.RemoveTrailingSlash)
	if err != nil {
		return Stat{}, err
	}
	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return Stat{}, err
	}
	if sb.Root.SysOps == nil {
		return Stat{}, ErrNotSupported
	}
	return sb.Root.SysOps.Stat(absPath)
}

func (v *VFS) Symlink(task Task, target, rawPath string) error {
	absPath, err := v.resolveParent(task, rawPath)
	if err != nil {
		return err
	}
	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return err
	}
	if sb.Root.SysOps == nil {
		return ErrNotSupported
	}
	return sb.Root.SysOps.Symlink(target, absPath)
}

// Readlink does not follow rawPath's terminal component, matching
// readlink(2)'s semantics: it reads what the link itself names, not
// whatever that target resolves to.
func (v *VFS) Readlink(task Task, rawPath string) (string, error) {
	absPath, err := v.resolveParent(task, rawPath)
	if err != nil {
		return "", err
	}
	return v.readlinkAt(absPath)
}

func (v *VFS) Unlink(task Task, rawPath string) error {
	absPath, err := v.resolveParent(task, rawPath)
	if err != nil {
		return err
	}
	sb, err := v.resolveSuperblock(absPath)
	if err != nil {
		return err
	}
	if sb.Root.FileOps == nil {
		return ErrNotSupported
	}
	return sb.Root.FileOps.Unlink(absPath)
}

// withHandle resolves fd to its handle via fdt, failing EBADF if the
// slot is empty or out of range.
func withHandle(fdt FDTable, fd int) (*File, error) {
	h, _, ok := fdt.Get(fd)
	if !ok || h == nil {
		return nil, ErrBadFd
	}
	return h, nil
}

func (v *VFS) Read(fdt FDTable, fd int, buf []byte) (int, error) {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return 0, err
	}
	n, err := h.FileOps.Read(h, buf, h.Pos)
	if err == nil {
		h.Pos += int64(n)
	}
	return n, err
}

func (v *VFS) Write(fdt FDTable, fd int, buf []byte) (int, error) {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return 0, err
	}
	n, err := h.FileOps.Write(h, buf, h.Pos)
	if err == nil {
		h.Pos += int64(n)
	}
	return n, err
}

const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

func (v *VFS) Lseek(fdt FDTable, fd int, offset int64, whence int) (int64, error) {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return 0, err
	}
	pos, err := h.FileOps.Lseek(h, offset, whence)
	if err != nil {
		return 0, err
	}
	h.Pos = pos
	return pos, nil
}

func (v *VFS) StatFD(fdt FDTable, fd int) (Stat, error) {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return Stat{}, err
	}
	return h.FileOps.Stat(h)
}

func (v *VFS) Getdents(fdt FDTable, fd int, skip, count int) ([]Dirent, error) {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return nil, err
	}
	return h.FileOps.Getdents(h, skip, count)
}

func (v *VFS) Ioctl(fdt FDTable, fd int, cmd int, arg uintptr) (int, error) {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return 0, err
	}
	return h.FileOps.Ioctl(h, cmd, arg)
}

// Close decrements fd's handle refcount and frees the fd slot. When
// the refcount reaches zero the backend's Close is invoked exactly
// once (spec.md testable property 4).
func (v *VFS) Close(fdt FDTable, fd int) error {
	h, err := withHandle(fdt, fd)
	if err != nil {
		return err
	}
	if err := fdt.Free(fd); err != nil {
		return err
	}

	v.refLock.Lock()
	if h.count <= 0 {
		v.refLock.Unlock()
		panic("vfs: close of handle with non-positive refcount")
	}
	h.count--
	shouldClose := h.count == 0
	v.refLock.Unlock()

	if !shouldClose {
		return nil
	}
	if h.FileOps == nil {
		return ErrNotSupported
	}
	return h.FileOps.Close(h)
}

// Ref bumps h's refcount directly, without installing it into any fd
// table. pkg/task uses this to implement fork's "copy the fd vector
// slot-for-slot and increment each live handle's count" rule
// (spec.md §3 "Task fd table").
func (v *VFS) Ref(h *File) {
	v.refLock.Lock()
	h.count++
	v.refLock.Unlock()
}

// Dup allocates a new fd pointing at the same handle as src,
// incrementing its refcount and copying the fd flags mask.
func (v *VFS) Dup(fdt FDTable, src int) (int, error) {
	h, flags, ok := fdt.Get(src)
	if !ok || h == nil {
		return -1, ErrBadFd
	}

	v.refLock.Lock()
	h.count++
	v.refLock.Unlock()

	fd, err := fdt.Install(h, flags)
	if err != nil {
		v.refLock.Lock()
		h.count--
		v.refLock.Unlock()
		return -1, ErrTooManyOpen
	}
	return fd, nil
}
