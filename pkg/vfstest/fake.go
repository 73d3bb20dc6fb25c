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

package vfstest

import "vkern.dev/pkg/vfs"

// fakeTask is the minimal vfs.Task stand-in the conformance script
// drives operations as; it never needs a cwd since every path the
// script uses is already absolute.
type fakeTask struct{ uid, gid, pid int }

func (f fakeTask) PID() int    { return f.pid }
func (f fakeTask) UID() int    { return f.uid }
func (f fakeTask) GID() int    { return f.gid }
func (f fakeTask) Cwd() string { return "/" }

// fakeFDTable is a minimal vfs.FDTable good enough to drive a handful
// of fds through the conformance script without pulling in pkg/task
// (which itself depends on pkg/vfs, and would make this a cyclic
// import if it also depended on pkg/vfstest for its own tests).
type fakeFDTable struct {
	slots []*vfs.File
	flags []int
}

func newFDTable() *fakeFDTable {
	return &fakeFDTable{slots: make([]*vfs.File, 8), flags: make([]int, 8)}
}

func (f *fakeFDTable) Get(fd int) (*vfs.File, int, bool) {
	if fd < 0 || fd >= len(f.slots) || f.slots[fd] == nil {
		return nil, 0, false
	}
	return f.slots[fd], f.flags[fd], true
}

func (f *fakeFDTable) Install(h *vfs.File, flags int) (int, error) {
	for i, s := range f.slots {
		if s == nil {
			f.slots[i] = h
			f.flags[i] = flags
			return i, nil
		}
	}
	f.slots = append(f.slots, h)
	f.flags = append(f.flags, flags)
	return len(f.slots) - 1, nil
}

func (f *fakeFDTable) Free(fd int) error {
	if fd < 0 || fd >= len(f.slots) || f.slots[fd] == nil {
		return vfs.ErrBadFd
	}
	f.slots[fd] = nil
	return nil
}
