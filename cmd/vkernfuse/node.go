//go:build linux || darwin
// +build linux darwin

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

package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"vkern.dev/pkg/vfs"
)

// vkernNode is one FUSE node: an absolute path inside the booted
// vfs.VFS tree. It doubles as its own fuse.Handle (no NodeOpener),
// the same populate-on-demand, one-struct-per-path shape the
// teacher's roDir/roFile nodes use, generalized from a read-only
// Camlistore tree to a read-write vkern one.
type vkernNode struct {
	fs   *vkernFS
	path string
}

var (
	_ fusefs.Node               = (*vkernNode)(nil)
	_ fusefs.NodeStringLookuper = (*vkernNode)(nil)
	_ fusefs.HandleReadDirAller = (*vkernNode)(nil)
	_ fusefs.HandleReader       = (*vkernNode)(nil)
	_ fusefs.HandleWriter       = (*vkernNode)(nil)
	_ fusefs.NodeMkdirer        = (*vkernNode)(nil)
	_ fusefs.NodeCreater        = (*vkernNode)(nil)
	_ fusefs.NodeRemover        = (*vkernNode)(nil)
	_ fusefs.NodeReadlinker     = (*vkernNode)(nil)
)

// toErrno maps a vfs sentinel error onto the syscall.Errno bazil.org/fuse
// expects handlers to return; unmapped errors surface as EIO.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, vfs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrPerm), errors.Is(err, vfs.ErrAccess):
		return syscall.EACCES
	case errors.Is(err, vfs.ErrBadFd):
		return syscall.EBADF
	case errors.Is(err, vfs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, vfs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, vfs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, vfs.ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, vfs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, vfs.ErrLoop):
		return syscall.ELOOP
	case errors.Is(err, vfs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, vfs.ErrTooManyOpen):
		return syscall.EMFILE
	case errors.Is(err, vfs.ErrFileTableFull):
		return syscall.ENFILE
	case errors.Is(err, vfs.ErrNoSys), errors.Is(err, vfs.ErrNotALink):
		return syscall.ENOSYS
	default:
		return syscall.EIO
	}
}

func (n *vkernNode) child(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func statToAttr(st vfs.Stat, a *fuse.Attr) {
	a.Inode = st.Ino
	a.Size = uint64(st.Size)
	a.Mode = os.FileMode(st.Mode.Perm())
	if st.Mode.IsDir() {
		a.Mode |= os.ModeDir
	}
	if st.Mode.IsLnk() {
		a.Mode |= os.ModeSymlink
	}
	a.Uid = uint32(st.UID)
	a.Gid = uint32(st.GID)
	a.Nlink = uint32(st.Nlink)
	a.Atime = time.Unix(st.Atime, 0)
	a.Mtime = time.Unix(st.Mtime, 0)
	a.Ctime = time.Unix(st.Ctime, 0)
}

func (n *vkernNode) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := n.fs.v.StatPath(n.fs.task, n.path)
	if err != nil {
		return toErrno(err)
	}
	statToAttr(st, a)
	return nil
}

func (n *vkernNode) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child := n.child(name)
	if _, err := n.fs.v.StatPath(n.fs.task, child); err != nil {
		return nil, toErrno(err)
	}
	return &vkernNode{fs: n.fs, path: child}, nil
}

func (n *vkernNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	fd, err := n.fs.open(n.path, vfs.O_RDONLY|vfs.O_DIRECTORY)
	if err != nil {
		return nil, toErrno(err)
	}
	defer n.fs.close(fd)

	dents, err := n.fs.getdents(fd, 0, 4096)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]fuse.Dirent, 0, len(dents))
	for _, d := range dents {
		typ := fuse.DT_File
		if d.Type.IsDir() {
			typ = fuse.DT_Dir
		} else if d.Type.IsLnk() {
			typ = fuse.DT_Link
		}
		out = append(out, fuse.Dirent{Inode: d.Ino, Name: d.Name, Type: typ})
	}
	return out, nil
}

func (n *vkernNode) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fd, err := n.fs.open(n.path, vfs.O_RDONLY)
	if err != nil {
		return toErrno(err)
	}
	defer n.fs.close(fd)

	if err := n.fs.lseek(fd, req.Offset); err != nil {
		return toErrno(err)
	}
	buf := make([]byte, req.Size)
	m, err := n.fs.read(fd, buf)
	if err != nil && !errors.Is(err, vfs.ErrNotExist) {
		return toErrno(err)
	}
	resp.Data = buf[:m]
	return nil
}

func (n *vkernNode) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fd, err := n.fs.open(n.path, vfs.O_WRONLY)
	if err != nil {
		return toErrno(err)
	}
	defer n.fs.close(fd)

	if err := n.fs.lseek(fd, req.Offset); err != nil {
		return toErrno(err)
	}
	m, err := n.fs.write(fd, req.Data)
	if err != nil {
		return toErrno(err)
	}
	resp.Size = m
	return nil
}

func (n *vkernNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	child := n.child(req.Name)
	if err := n.fs.v.Mkdir(n.fs.task, child, vfs.FileMode(req.Mode.Perm())); err != nil {
		return nil, toErrno(err)
	}
	return &vkernNode{fs: n.fs, path: child}, nil
}

func (n *vkernNode) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	child := n.child(req.Name)
	fd, err := n.fs.create(child, vfs.FileMode(req.Mode.Perm()))
	if err != nil {
		return nil, nil, toErrno(err)
	}
	n.fs.close(fd)
	return &vkernNode{fs: n.fs, path: child}, nil, nil
}

func (n *vkernNode) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	child := n.child(req.Name)
	var err error
	if req.Dir {
		err = n.fs.v.Rmdir(n.fs.task, child)
	} else {
		err = n.fs.v.Unlink(n.fs.task, child)
	}
	return toErrno(err)
}

func (n *vkernNode) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	target, err := n.fs.v.Readlink(n.fs.task, n.path)
	if err != nil {
		return "", toErrno(err)
	}
	return target, nil
}
