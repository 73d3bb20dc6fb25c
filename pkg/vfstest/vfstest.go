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

// Package vfstest is a conformance harness shared by every vfs.FileOps
// backend (pkg/fs/initrd, pkg/fs/procfs, and any future one): a single
// scripted sequence of mkdir/creat/write/read/getdents/unlink/rmdir
// run against a mounted vfs.VFS, asserting the POSIX error codes
// spec.md §6-§8 require. Grounded on
// pkg/blobserver/storagetest.TestOpt's "New(t) returns the backend
// under test, then one script runs every shared assertion" shape: the
// teacher holds every blobserver.Storage to one storagetest.Test, this
// holds every filesystem backend to one vfstest.Test.
package vfstest

import (
	"errors"
	"testing"

	"vkern.dev/pkg/vfs"
)

// Opts configures a conformance run.
type Opts struct {
	// New must return a *vfs.VFS with the backend under test already
	// registered and mounted at Root (default "/"). Called once per
	// Test invocation.
	New func(t *testing.T) *vfs.VFS

	// Root is the mount path the script exercises. Defaults to "/".
	Root string

	// Dir is the directory the script creates under Root. Defaults to
	// "d" (i.e. Root+"/d").
	Dir string

	// NoSymlink is not read by TestOpt: the script has no symlink leg,
	// so every backend runs the same steps whatever this is set to.
	NoSymlink bool
}

// Test runs the conformance script with default options.
func Test(t *testing.T, newFn func(t *testing.T) *vfs.VFS) {
	TestOpt(t, Opts{New: newFn})
}

type run struct {
	t    *testing.T
	opt  Opts
	v    *vfs.VFS
	task vfs.Task
	fdt  vfs.FDTable
	dir  string
	file string
}

// TestOpt runs the conformance script against opt.New's result.
func TestOpt(t *testing.T, opt Opts) {
	if opt.Root == "" {
		opt.Root = "/"
	}
	if opt.Dir == "" {
		opt.Dir = "d"
	}

	r := &run{
		t:    t,
		opt:  opt,
		v:    opt.New(t),
		task: fakeTask{uid: 0},
		fdt:  newFDTable(),
	}
	r.dir = join(opt.Root, opt.Dir)
	r.file = join(r.dir, "f")

	t.Logf("vfstest: conformance run rooted at %q", opt.Root)

	r.testOpenMissingENOENT()
	r.testMkdirCreatWriteReadClose()
	r.testMkdirExistsEEXIST()
	r.testGetdents()
	r.testUnlinkThenRmdir()
	r.testRmdirNotEmpty()
}

func join(a, b string) string {
	if a == "/" {
		return "/" + b
	}
	return a + "/" + b
}

func (r *run) testOpenMissingENOENT() {
	r.t.Helper()
	_, err := r.v.Open(r.task, r.fdt, join(r.opt.Root, "nope-does-not-exist"), vfs.O_RDONLY, 0)
	if !errors.Is(err, vfs.ErrNotExist) {
		r.t.Fatalf("Open(missing): got %v, want ENOENT", err)
	}
}

func (r *run) testMkdirCreatWriteReadClose() {
	r.t.Helper()
	if err := r.v.Mkdir(r.task, r.dir, 0o755); err != nil {
		r.t.Fatalf("Mkdir(%q): %v", r.dir, err)
	}

	fd, err := r.v.Creat(r.task, r.fdt, r.file, 0o644)
	if err != nil {
		r.t.Fatalf("Creat(%q): %v", r.file, err)
	}
	payload := []byte("vfstest payload")
	n, err := r.v.Write(r.fdt, fd, payload)
	if err != nil || n != len(payload) {
		r.t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if _, err := r.v.Lseek(r.fdt, fd, 0, vfs.SeekSet); err != nil {
		r.t.Fatalf("Lseek: %v", err)
	}
	buf := make([]byte, len(payload))
	n, err = r.v.Read(r.fdt, fd, buf)
	if err != nil {
		r.t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		r.t.Fatalf("Read got %q, want %q", buf[:n], payload)
	}
	if err := r.v.Close(r.fdt, fd); err != nil {
		r.t.Fatalf("Close: %v", err)
	}
}

func (r *run) testMkdirExistsEEXIST() {
	r.t.Helper()
	if err := r.v.Mkdir(r.task, r.dir, 0o755); !errors.Is(err, vfs.ErrExists) {
		r.t.Fatalf("Mkdir(existing): got %v, want EEXIST", err)
	}
}

func (r *run) testGetdents() {
	r.t.Helper()
	fd, err := r.v.Open(r.task, r.fdt, r.dir, vfs.O_DIRECTORY|vfs.O_RDONLY, 0)
	if err != nil {
		r.t.Fatalf("Open(dir): %v", err)
	}
	defer r.v.Close(r.fdt, fd)

	ents, err := r.v.Getdents(r.fdt, fd, 0, 64)
	if err != nil {
		r.t.Fatalf("Getdents: %v", err)
	}
	if len(ents) != 1 || ents[0].Name != "f" {
		r.t.Fatalf("Getdents got %+v, want exactly one entry named \"f\"", ents)
	}
	if !ents[0].Type.IsReg() {
		r.t.Fatalf("Getdents entry type %v, want regular", ents[0].Type)
	}
}

func (r *run) testUnlinkThenRmdir() {
	r.t.Helper()
	if err := r.v.Unlink(r.task, r.file); err != nil {
		r.t.Fatalf("Unlink(%q): %v", r.file, err)
	}
	if err := r.v.Unlink(r.task, r.file); !errors.Is(err, vfs.ErrNotExist) {
		r.t.Fatalf("Unlink(already gone): got %v, want ENOENT", err)
	}
	if err := r.v.Rmdir(r.task, r.dir); err != nil {
		r.t.Fatalf("Rmdir(%q) after unlink: %v", r.dir, err)
	}
}

func (r *run) testRmdirNotEmpty() {
	r.t.Helper()
	dir := join(r.opt.Root, "d2")
	child := join(dir, "child")
	if err := r.v.Mkdir(r.task, dir, 0o755); err != nil {
		r.t.Fatalf("Mkdir(%q): %v", dir, err)
	}
	if err := r.v.Mkdir(r.task, child, 0o755); err != nil {
		r.t.Fatalf("Mkdir(%q): %v", child, err)
	}
	if err := r.v.Rmdir(r.task, dir); !errors.Is(err, vfs.ErrNotEmpty) {
		r.t.Fatalf("Rmdir(nonempty): got %v, want ENOTEMPTY", err)
	}
	if err := r.v.Rmdir(r.task, child); err != nil {
		r.t.Fatalf("Rmdir(%q): %v", child, err)
	}
	if err := r.v.Rmdir(r.task, dir); err != nil {
		r.t.Fatalf("Rmdir(%q): %v", dir, err)
	}
}
