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

// Command vkernfuse is a debug bridge: it boots a vfs.VFS from a
// pkg/boot config and exposes the resulting tree through a real,
// host-mountable FUSE filesystem, so the VFS core can be poked at
// with ordinary shell tools (ls, cat, mkdir) instead of only through
// Go test code.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"vkern.dev/pkg/boot"
	"vkern.dev/pkg/task"
	"vkern.dev/pkg/vfs"
)

var (
	configPath = flag.String("config", "", "path to a boot config JSON file (see pkg/boot)")
	debug      = flag.Bool("debug", false, "print FUSE debug messages")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: vkernfuse -config boot.json <mountpoint>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *configPath == "" || flag.NArg() != 1 {
		usage()
	}
	mountPoint := flag.Arg(0)

	cfg, err := boot.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading boot config: %v", err)
	}
	seq := boot.New()
	if err := seq.Run(context.Background(), cfg); err != nil {
		log.Fatalf("boot.Run: %v", err)
	}

	root := task.New(1, 0, 0, "/", nil)
	fdt := task.NewFDTable()

	if *debug {
		fuse.Debug = func(msg interface{}) { log.Print(msg) }
	}

	c, err := fuse.Mount(mountPoint, fuse.VolumeName(filepath.Base(mountPoint)))
	if err != nil {
		log.Fatalf("Mount: %v", err)
	}
	defer c.Close()

	fsys := &vkernFS{v: seq.V, task: root, fdTable: fdt}

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return fusefs.Serve(c, fsys)
	})
	g.Go(func() error {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		select {
		case sig := <-sigc:
			log.Printf("signal %s received, unmounting %s", sig, mountPoint)
		case <-gctx.Done():
		}
		return fuse.Unmount(mountPoint)
	})

	if err := g.Wait(); err != nil {
		log.Printf("vkernfuse: %v", err)
	}
}

// vkernFS is the FUSE filesystem root: every node it hands back wraps
// an absolute vfs.VFS path and the single root task driving every
// vfs.VFS call.
type vkernFS struct {
	v       *vfs.VFS
	task    vfs.Task
	fdTable vfs.FDTable

	// mu serializes fdTable access: bazil.org/fuse may dispatch
	// concurrent requests, but pkg/task.FDTable documents itself as
	// unsafe for concurrent use without the caller's own lock, same as
	// every other single-task-owned fd table in this module.
	mu sync.Mutex
}

func (f *vkernFS) Root() (fusefs.Node, error) {
	return &vkernNode{fs: f, path: "/"}, nil
}

func (f *vkernFS) open(path string, flags vfs.OpenFlags) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.Open(f.task, f.fdTable, path, flags, 0)
}

func (f *vkernFS) create(path string, mode vfs.FileMode) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.Creat(f.task, f.fdTable, path, mode)
}

func (f *vkernFS) close(fd int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v.Close(f.fdTable, fd)
}

func (f *vkernFS) lseek(fd int, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.v.Lseek(f.fdTable, fd, offset, 0)
	return err
}

func (f *vkernFS) read(fd int, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.Read(f.fdTable, fd, buf)
}

func (f *vkernFS) write(fd int, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.Write(f.fdTable, fd, buf)
}

func (f *vkernFS) getdents(fd, skip, count int) ([]vfs.Dirent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.Getdents(f.fdTable, fd, skip, count)
}
