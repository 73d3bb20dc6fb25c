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

// Package initrd is the flat, fixed-capacity boot-module filesystem
// described in spec.md §4.3: every file and directory is a record in
// a single table, named by its full in-filesystem path, backed by a
// contiguous content region decoded once at mount time and extended
// in memory by writes and symlink creation.
package initrd

import (
	"path"
	"strings"
	"sync"

	"vkern.dev/pkg/vfs"
)

type fileType uint8

const (
	typeFree      fileType = 0
	typeRegular   fileType = 1
	typeDirectory fileType = 2
)

// MaxFiles bounds the flat record table, per spec.md §3's
// INITRD_MAX_FILES.
const MaxFiles = 256

type record struct {
	ino    uint64
	name   string
	typ    fileType
	mode   vfs.FileMode
	uid    int
	gid    int
	offset int64
	length int64
}

// FS is one mounted instance of the initrd filesystem: a flat table
// of up to MaxFiles records plus the content bytes they address.
type FS struct {
	mu      sync.Mutex
	records [MaxFiles]record
	content []byte
	nextIno uint64
	count   int
}

// NewFilesystemType returns a vfs.FileSystemType named "initrd" whose
// Mount callback decodes image once per mount and builds an FS bound
// to it. image is the boot-image byte stream Encode produces.
func NewFilesystemType(image []byte) *vfs.FileSystemType {
	return &vfs.FileSystemType{
		Name: "initrd",
		Mount: func(mountPath, device string) (*vfs.File, error) {
			fs, err := newFromImage(image)
			if err != nil {
				return nil, err
			}
			return fs.rootHandle(), nil
		},
	}
}

func newFromImage(image []byte) (*FS, error) {
	recs, content, err := decode(image)
	if err != nil {
		return nil, err
	}
	fs := &FS{content: content}
	for _, r := range recs {
		if fs.count >= MaxFiles {
			return nil, vfs.ErrNoSpace
		}
		fs.records[fs.count] = record{
			ino:    r.Ino,
			name:   nameFromBuf(r.Name),
			typ:    fileType(r.Type),
			mode:   vfs.FileMode(r.Mask),
			uid:    int(r.UID),
			gid:    int(r.GID),
			offset: r.Offset,
			length: r.Length,
		}
		fs.count++
		if r.Ino >= fs.nextIno {
			fs.nextIno = r.Ino + 1
		}
	}
	if fs.nextIno == 0 {
		fs.nextIno = 1
	}
	return fs, nil
}

func (fs *FS) rootHandle() *vfs.File {
	return &vfs.File{
		Name:    "/",
		Ino:     0,
		Mask:    vfs.S_IFDIR | 0o755,
		SysOps:  pathOps{fs},
		FileOps: fileOps{fs},
	}
}

// findLocked returns the record index for name, or -1.
func (fs *FS) findLocked(name string) int {
	for i := 0; i < fs.count; i++ {
		if fs.records[i].typ != typeFree && fs.records[i].name == name {
			return i
		}
	}
	return -1
}

func (fs *FS) freeSlotLocked() int {
	for i := 0; i < MaxFiles; i++ {
		if i >= fs.count {
			fs.count = i + 1
			return i
		}
		if fs.records[i].typ == typeFree {
			return i
		}
	}
	return -1
}

func parentOf(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return "/"
	}
	return dir
}

// pathOps implements vfs.PathOps (the sys_ops table) for initrd.
type pathOps struct{ fs *FS }

func (p pathOps) Mkdir(name string, mode vfs.FileMode) error {
	fs := p.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.findLocked(name) >= 0 {
		return vfs.ErrExists
	}
	parent := parentOf(name)
	if parent != "/" {
		pi := fs.findLocked(parent)
		if pi < 0 {
			return vfs.ErrNotExist
		}
		if fs.records[pi].typ != typeDirectory {
			return vfs.ErrNotDir
		}
	}
	slot := fs.freeSlotLocked()
	if slot < 0 {
		return vfs.ErrNoSpace
	}
	ino := fs.nextIno
	fs.nextIno++
	fs.records[slot] = record{ino: ino, name: name, typ: typeDirectory, mode: mode | vfs.S_IFDIR}
	return nil
}

func (p pathOps) Rmdir(name string) error {
	fs := p.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findLocked(name)
	if i < 0 {
		return vfs.ErrNotExist
	}
	if fs.records[i].typ != typeDirectory {
		return vfs.ErrNotDir
	}
	for j := 0; j < fs.count; j++ {
		if fs.records[j].typ != typeFree && parentOf(fs.records[j].name) == name {
			return vfs.ErrNotEmpty
		}
	}
	fs.records[i] = record{}
	return nil
}

func (p pathOps) Stat(name string) (vfs.Stat, error) {
	fs := p.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	i := fs.findLocked(name)
	if i < 0 {
		return vfs.Stat{}, vfs.ErrNotExist
	}
	return statFromRecord(fs.records[i]), nil
}

func (p pathOps) Creat(name string, mode vfs.FileMode) (*vfs.File, error) {
	return p.fs.openOrCreate(name, vfs.O_CREAT|vfs.O_WRONLY|vfs.O_TRUNC, mode)
}

func (p pathOps) Symlink(target, name string) error {
	fs := p.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.findLocked(name) >= 0 {
		return vfs.ErrExists
	}
	slot := fs.freeSlotLocked()
	if slot < 0 {
		return vfs.ErrNoSpace
	}
	ino := fs.nextIno
	fs.nextIno++
	fs.records[slot] = record{
		ino: ino, name: name, typ: typeRegular, mode: vfs.S_IFLNK | 0o777,
		length: int64(len(target)),
	}
	fs.content = append(fs.content, target...)
	fs.records[slot].offset = int64(len(fs.content) - len(target))
	return nil
}

// fileOps implements vfs.FileOps (the fs_ops table) for initrd.
type fileOps struct{ fs *FS }

func statFromRecord(r record) vfs.Stat {
	mode := r.mode
	if r.typ == typeDirectory {
		mode = (mode &^ vfs.S_IFMT) | vfs.S_IFDIR
	}
	return vfs.Stat{
		Ino:  r.ino,
		Mode: mode,
		UID:  r.uid,
		GID:  r.gid,
		Size: r.length,
	}
}

func (fs *FS) openOrCreate(name string, flags vfs.OpenFlags, mode vfs.FileMode) (*vfs.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findLocked(name)
	if i < 0 {
		if flags&vfs.O_CREAT == 0 {
			return nil, vfs.ErrNotExist
		}
		parent := parentOf(name)
		if parent != "/" {
			pi := fs.findLocked(parent)
			if pi < 0 {
				return nil, vfs.ErrNotExist
			}
			if fs.records[pi].typ != typeDirectory {
				return nil, vfs.ErrNotDir
			}
		}
		slot := fs.freeSlotLocked()
		if slot < 0 {
			return nil, vfs.ErrNoSpace
		}
		ino := fs.nextIno
		fs.nextIno++
		fs.records[slot] = record{
			ino: ino, name: name, typ: typeRegular, mode: mode | vfs.S_IFREG,
			offset: -1, // allocated lazily on first write
		}
		i = slot
	} else if flags&(vfs.O_CREAT|vfs.O_EXCL) == vfs.O_CREAT|vfs.O_EXCL {
		return nil, vfs.ErrExists
	}

	r := fs.records[i]
	if r.typ == typeDirectory {
		if acc := flags.Accmode(); acc == vfs.O_WRONLY || acc == vfs.O_RDWR {
			return nil, vfs.ErrIsDir
		}
	} else if flags&vfs.O_DIRECTORY != 0 {
		return nil, vfs.ErrNotDir
	}

	return &vfs.File{
		Name:    name,
		Ino:     r.ino,
		UID:     r.uid,
		GID:     r.gid,
		Mask:    r.mode,
		Length:  r.length,
		Flags:   flags,
		SysOps:  pathOps{fs},
		FileOps: fileOps{fs},
	}, nil
}

func (f fileOps) Open(name string, flags vfs.OpenFlags, mode vfs.FileMode) (*vfs.File, error) {
	return f.fs.openOrCreate(name, flags, mode)
}

func (f fileOps) Close(h *vfs.File) error { return nil }

func (f fileOps) Read(h *vfs.File, buf []byte, offset int64) (int, error) {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findLocked(h.Name)
	if i < 0 {
		return 0, vfs.ErrNotExist
	}
	r := fs.records[i]
	if offset >= r.length {
		return 0, nil
	}
	n := r.length - offset
	if n > int64(len(buf)) {
		n = int64(len(buf))
	}
	start := r.offset + offset
	copy(buf[:n], fs.content[start:start+n])
	return int(n), nil
}

// Write extends the file's recorded length in place. If the write
// would run into another record's occupied content region, it is
// refused with ENOSPC rather than silently overwriting a neighbor
// (spec.md §9's open question, resolved here in favor of (a)).
func (f fileOps) Write(h *vfs.File, buf []byte, offset int64) (int, error) {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findLocked(h.Name)
	if i < 0 {
		return 0, vfs.ErrNotExist
	}
	r := &fs.records[i]
	end := offset + int64(len(buf))

	if offset == r.length {
		if r.offset < 0 {
			r.offset = int64(len(fs.content))
		}
		// Refuse to grow into any other live record's content region.
		for j := 0; j < fs.count; j++ {
			o := fs.records[j]
			if j == i || o.typ == typeFree || o.offset < 0 || o.length == 0 {
				continue
			}
			if r.offset+offset < o.offset+o.length && o.offset < r.offset+end {
				return 0, vfs.ErrNoSpace
			}
		}
		// Pure append: grow the content slice and the record together.
		needed := r.offset + end
		if needed > int64(len(fs.content)) {
			fs.content = append(fs.content, make([]byte, needed-int64(len(fs.content)))...)
		}
		copy(fs.content[r.offset+offset:r.offset+end], buf)
		r.length = end
		h.Length = end
		return len(buf), nil
	}

	if end > r.length {
		return 0, vfs.ErrNoSpace
	}
	copy(fs.content[r.offset+offset:r.offset+end], buf)
	return len(buf), nil
}

func (f fileOps) Lseek(h *vfs.File, offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case vfs.SeekSet:
		base = 0
	case vfs.SeekCur:
		base = h.Pos
	case vfs.SeekEnd:
		base = h.Length
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
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	i := fs.findLocked(h.Name)
	if i < 0 {
		return vfs.Stat{}, vfs.ErrNotExist
	}
	return statFromRecord(fs.records[i]), nil
}

func (f fileOps) Ioctl(h *vfs.File, cmd int, arg uintptr) (int, error) {
	return 0, vfs.ErrNotSupported
}

func (f fileOps) Getdents(h *vfs.File, skip, count int) ([]vfs.Dirent, error) {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []vfs.Dirent
	seen := 0
	for i := 0; i < fs.count; i++ {
		r := fs.records[i]
		if r.typ == typeFree || r.name == h.Name {
			continue
		}
		if parentOf(r.name) != h.Name {
			continue
		}
		if seen < skip {
			seen++
			continue
		}
		if len(out) >= count {
			break
		}
		typ := vfs.FileMode(vfs.S_IFREG)
		if r.typ == typeDirectory {
			typ = vfs.S_IFDIR
		}
		out = append(out, vfs.Dirent{
			Ino:  r.ino,
			Type: typ,
			Name: strings.TrimPrefix(strings.TrimPrefix(r.name, h.Name), "/"),
		})
	}
	return out, nil
}

func (f fileOps) Readlink(name string) (string, error) {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	i := fs.findLocked(name)
	if i < 0 {
		return "", vfs.ErrNotExist
	}
	r := fs.records[i]
	if !r.mode.IsLnk() {
		return "", vfs.ErrNotALink
	}
	return string(fs.content[r.offset : r.offset+r.length]), nil
}

func (f fileOps) Unlink(name string) error {
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	i := fs.findLocked(name)
	if i < 0 {
		return vfs.ErrNotExist
	}
	if fs.records[i].typ == typeDirectory {
		return vfs.ErrIsDir
	}
	fs.records[i] = record{}
	return nil
}
