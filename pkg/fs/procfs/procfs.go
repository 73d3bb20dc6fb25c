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

// Package procfs is the dynamic in-memory filesystem described in
// spec.md §4.4: entries are created and destroyed at runtime by other
// kernel modules, and any entry may install its own operation tables,
// overriding the filesystem's own default read/write/getdents
// behavior.
package procfs

import (
	"path"
	"sort"
	"sync"

	"github.com/google/uuid"

	"vkern.dev/pkg/vfs"
)

// Entry is a proc_dir_entry: one node in the procfs tree. SysOps and
// FileOps are nil by default; a module that wants a custom-backed
// entry (e.g. a live /proc/<pid> that renders process state on read)
// installs its own tables here, and dispatch prefers them over the
// filesystem's own default behavior.
type Entry struct {
	Name   string
	Path   string
	IsDir  bool
	Mode   vfs.FileMode
	UID    int
	GID    int
	Ino    uint64
	SysOps vfs.PathOps
	FileOps vfs.FileOps

	symlinkTarget string
	openHandles   int
}

// FS is one mounted procfs instance: a map from absolute path to
// Entry, plus a generation tag (a random UUID minted by New) exposed
// at /proc/version so two FS instances are distinguishable.
type FS struct {
	mu      sync.Mutex
	entries map[string]*Entry
	nextIno uint64

	generation string
}

// New constructs an empty procfs instance, minting a fresh generation
// UUID for its eventual /proc/version entry. Callers wanting direct
// access to ProcMkdir/ProcCreateEntry/etc. (rather than going through
// the VFS path-addressed ops) hold onto the returned *FS.
func New() *FS {
	return &FS{
		entries:    make(map[string]*Entry),
		nextIno:    1,
		generation: uuid.NewString(),
	}
}

// NewFilesystemType returns a vfs.FileSystemType named "procfs" whose
// Mount callback seeds fs's root and /proc/version entries at
// mountPath (normally "/proc") and hands back its root handle.
func NewFilesystemType(fs *FS) *vfs.FileSystemType {
	return &vfs.FileSystemType{
		Name: "procfs",
		Mount: func(mountPath, device string) (*vfs.File, error) {
			fs.mu.Lock()
			fs.entries[mountPath] = &Entry{Name: "/", Path: mountPath, IsDir: true, Mode: vfs.S_IFDIR | 0o555, Ino: 0}
			version := &Entry{Name: "version", Path: path.Join(mountPath, "version"), Mode: vfs.S_IFREG | 0o444, Ino: fs.allocIno()}
			fs.entries[version.Path] = version
			fs.mu.Unlock()
			return fs.rootHandle(mountPath), nil
		},
	}
}

func (fs *FS) allocIno() uint64 {
	ino := fs.nextIno
	fs.nextIno++
	return ino
}

func (fs *FS) rootHandle(mountPath string) *vfs.File {
	return &vfs.File{
		Name:    mountPath,
		Mask:    vfs.S_IFDIR | 0o555,
		SysOps:  pathOps{fs},
		FileOps: fileOps{fs},
	}
}

func entryPath(parent *Entry, name string) string {
	if parent == nil {
		return path.Join("/proc", name)
	}
	return path.Join(parent.Path, name)
}

// ProcMkdir creates a directory entry "/proc/[parent/]name", the Go
// analog of the kernel helper of the same name.
func ProcMkdir(fs *FS, name string, parent *Entry) (*Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := entryPath(parent, name)
	if _, exists := fs.entries[p]; exists {
		return nil, vfs.ErrExists
	}
	e := &Entry{Name: name, Path: p, IsDir: true, Mode: vfs.S_IFDIR | 0o555, Ino: fs.allocIno()}
	fs.entries[p] = e
	return e, nil
}

// ProcRmdir removes a directory entry created by ProcMkdir. It fails
// ENOTEMPTY if the directory still has children.
func ProcRmdir(fs *FS, name string, parent *Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := entryPath(parent, name)
	e, ok := fs.entries[p]
	if !ok {
		return vfs.ErrNotExist
	}
	if !e.IsDir {
		return vfs.ErrNotDir
	}
	for other := range fs.entries {
		if other != p && path.Dir(other) == p {
			return vfs.ErrNotEmpty
		}
	}
	delete(fs.entries, p)
	return nil
}

// ProcCreateEntry creates a regular entry "/proc/[parent/]name" with
// no custom op table installed; the caller may set SysOps/FileOps on
// the returned *Entry afterward to back it with live data.
func ProcCreateEntry(fs *FS, name string, parent *Entry) (*Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := entryPath(parent, name)
	if _, exists := fs.entries[p]; exists {
		return nil, vfs.ErrExists
	}
	e := &Entry{Name: name, Path: p, Mode: vfs.S_IFREG | 0o444, Ino: fs.allocIno()}
	fs.entries[p] = e
	return e, nil
}

// ProcDestroyEntry removes a regular entry created by ProcCreateEntry.
func ProcDestroyEntry(fs *FS, name string, parent *Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := entryPath(parent, name)
	if _, ok := fs.entries[p]; !ok {
		return vfs.ErrNotExist
	}
	delete(fs.entries, p)
	return nil
}

// ProcDirEntryGet looks up "/proc/[parent/]name" without modifying
// the tree.
func ProcDirEntryGet(fs *FS, name string, parent *Entry) (*Entry, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.entries[entryPath(parent, name)]
	return e, ok
}

type pathOps struct{ fs *FS }

func (p pathOps) Mkdir(name string, mode vfs.FileMode) error {
	parent, ok := resolveParent(p.fs, name)
	if !ok {
		return vfs.ErrNotExist
	}
	_, err := ProcMkdir(p.fs, path.Base(name), parent)
	return err
}

func (p pathOps) Rmdir(name string) error {
	parent, ok := resolveParent(p.fs, name)
	if !ok {
		return vfs.ErrNotExist
	}
	return ProcRmdir(p.fs, path.Base(name), parent)
}

func (p pathOps) Stat(name string) (vfs.Stat, error) {
	fs := p.fs
	fs.mu.Lock()
	e, ok := fs.entries[name]
	fs.mu.Unlock()
	if !ok {
		return vfs.Stat{}, vfs.ErrNotExist
	}
	if e.SysOps != nil {
		return e.SysOps.Stat(name)
	}
	return statFromEntry(e), nil
}

func (p pathOps) Creat(name string, mode vfs.FileMode) (*vfs.File, error) {
	parent, ok := resolveParent(p.fs, name)
	if !ok {
		return nil, vfs.ErrNotExist
	}
	e, err := ProcCreateEntry(p.fs, path.Base(name), parent)
	if err != nil {
		return nil, err
	}
	e.Mode = mode | vfs.S_IFREG
	return p.fs.handleFor(e, vfs.O_WRONLY|vfs.O_CREAT|vfs.O_TRUNC), nil
}

func (p pathOps) Symlink(target, name string) error {
	fs := p.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, exists := fs.entries[name]; exists {
		return vfs.ErrExists
	}
	fs.entries[name] = &Entry{Name: path.Base(name), Path: name, Mode: vfs.S_IFLNK | 0o777, Ino: fs.allocIno(), symlinkTarget: target}
	return nil
}

// resolveParent looks up the entry for name's parent directory,
// failing ok=false if no such directory exists (including the case
// where it exists but isn't a directory).
func resolveParent(fs *FS, name string) (*Entry, bool) {
	dir := path.Dir(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.entries[dir]
	if !ok || !e.IsDir {
		return nil, false
	}
	return e, true
}

func statFromEntry(e *Entry) vfs.Stat {
	mode := e.Mode
	if e.IsDir {
		mode = (mode &^ vfs.S_IFMT) | vfs.S_IFDIR
	}
	return vfs.Stat{Ino: e.Ino, Mode: mode, UID: e.UID, GID: e.GID}
}

type fileOps struct{ fs *FS }

func (fs *FS) handleFor(e *Entry, flags vfs.OpenFlags) *vfs.File {
	return &vfs.File{
		Name:    e.Path,
		Ino:     e.Ino,
		UID:     e.UID,
		GID:     e.GID,
		Mask:    e.Mode,
		Flags:   flags,
		SysOps:  pathOps{fs},
		FileOps: fileOps{fs},
		Private: e,
	}
}

func (f fileOps) Open(name string, flags vfs.OpenFlags, mode vfs.FileMode) (*vfs.File, error) {
	fs := f.fs
	fs.mu.Lock()
	e, ok := fs.entries[name]
	fs.mu.Unlock()
	if !ok {
		return nil, vfs.ErrNotExist
	}
	if acc := flags.Accmode(); e.IsDir && (acc == vfs.O_WRONLY || acc == vfs.O_RDWR) {
		return nil, vfs.ErrIsDir
	}
	if !e.IsDir && flags&vfs.O_DIRECTORY != 0 {
		return nil, vfs.ErrNotDir
	}

	if e.FileOps != nil {
		h, err := e.FileOps.Open(name, flags, mode)
		if err != nil {
			return nil, err
		}
		h.Private = e
		fs.mu.Lock()
		e.openHandles++
		fs.mu.Unlock()
		return h, nil
	}

	fs.mu.Lock()
	e.openHandles++
	fs.mu.Unlock()
	return fs.handleFor(e, flags), nil
}

func (f fileOps) entryOf(h *vfs.File) (*Entry, bool) {
	e, ok := h.Private.(*Entry)
	return e, ok
}

func (f fileOps) Close(h *vfs.File) error {
	e, ok := f.entryOf(h)
	if !ok {
		return nil
	}
	if e.FileOps != nil {
		if err := e.FileOps.Close(h); err != nil {
			return err
		}
	}
	f.fs.mu.Lock()
	if e.openHandles > 0 {
		e.openHandles--
	}
	f.fs.mu.Unlock()
	return nil
}

func (f fileOps) Read(h *vfs.File, buf []byte, offset int64) (int, error) {
	e, ok := f.entryOf(h)
	if !ok {
		return 0, vfs.ErrNotExist
	}
	if e.FileOps != nil {
		return e.FileOps.Read(h, buf, offset)
	}
	var data []byte
	if e.Name == "version" {
		data = []byte(f.fs.generation)
	}
	if offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	return n, nil
}

func (f fileOps) Write(h *vfs.File, buf []byte, offset int64) (int, error) {
	e, ok := f.entryOf(h)
	if !ok {
		return 0, vfs.ErrNotExist
	}
	if e.FileOps != nil {
		return e.FileOps.Write(h, buf, offset)
	}
	return 0, vfs.ErrNotSupported
}

func (f fileOps) Lseek(h *vfs.File, offset int64, whence int) (int64, error) {
	e, ok := f.entryOf(h)
	if ok && e.FileOps != nil {
		return e.FileOps.Lseek(h, offset, whence)
	}
	var base int64
	switch whence {
	case vfs.SeekSet:
		base = 0
	case vfs.SeekCur:
		base = h.Pos
	default:
		return 0, vfs.ErrInvalid
	}
	pos := base + offset
	if pos < 0 {
		return 0, vfs.ErrInvalid
	}
	return pos, nil
}

func (f fileOps) Stat(h *vfs.File) (vfs.Stat, error) {
	e, ok := f.entryOf(h)
	if !ok {
		return vfs.Stat{}, vfs.ErrNotExist
	}
	if e.FileOps != nil {
		return e.FileOps.Stat(h)
	}
	return statFromEntry(e), nil
}

func (f fileOps) Ioctl(h *vfs.File, cmd int, arg uintptr) (int, error) {
	e, ok := f.entryOf(h)
	if ok && e.FileOps != nil {
		return e.FileOps.Ioctl(h, cmd, arg)
	}
	return 0, vfs.ErrNotSupported
}

func (f fileOps) Getdents(h *vfs.File, skip, count int) ([]vfs.Dirent, error) {
	e, ok := f.entryOf(h)
	if ok && e.FileOps != nil {
		return e.FileOps.Getdents(h, skip, count)
	}

	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var names []string
	for p := range fs.entries {
		if p != h.Name && path.Dir(p) == h.Name {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	var out []vfs.Dirent
	for i, p := range names {
		if i < skip {
			continue
		}
		if len(out) >= count {
			break
		}
		child := fs.entries[p]
		typ := vfs.FileMode(vfs.S_IFREG)
		if child.IsDir {
			typ = vfs.S_IFDIR
		}
		out = append(out, vfs.Dirent{Ino: child.Ino, Type: typ, Name: child.Name})
	}
	return out, nil
}

func (f fileOps) Readlink(name string) (string, error) {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.entries[name]
	if !ok {
		return "", vfs.ErrNotExist
	}
	if !e.Mode.IsLnk() {
		return "", vfs.ErrNotALink
	}
	return e.symlinkTarget, nil
}

// Unlink removes a regular entry. This corrects the reversed check
// present in one variant of the source (spec.md §9, open question
// 2): absent fails ENOENT, present succeeds.
func (f fileOps) Unlink(name string) error {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.entries[name]
	if !ok {
		return vfs.ErrNotExist
	}
	if e.IsDir {
		return vfs.ErrIsDir
	}
	delete(fs.entries, name)
	return nil
}
