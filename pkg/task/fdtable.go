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

package task

import "vkern.dev/pkg/vfs"

// MaxOpenFD is the initial slot count of a fresh fd table, per
// spec.md §3's MAX_OPEN_FD.
const MaxOpenFD = 32

type fdSlot struct {
	handle *vfs.File
	flags  int
}

// FDTable is the per-task file-descriptor vector (spec.md §3 "Task fd
// table"). It implements vfs.FDTable. Per spec.md §5, a task's own fd
// table is mutated only by that task — there is no internal lock
// here; callers must not share one FDTable across goroutines without
// their own synchronization.
type FDTable struct {
	slots []fdSlot
}

// NewFDTable returns a table with MaxOpenFD empty slots.
func NewFDTable() *FDTable {
	return &FDTable{slots: make([]fdSlot, MaxOpenFD)}
}

func (t *FDTable) Get(fd int) (*vfs.File, int, bool) {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd].handle == nil {
		return nil, 0, false
	}
	return t.slots[fd].handle, t.slots[fd].flags, true
}

// Install binds h to the lowest free slot, growing the table by
// doubling (+1) when full, per spec.md §3: "doubles (+1) on
// exhaustion; never shrinks for a live task."
func (t *FDTable) Install(h *vfs.File, flags int) (int, error) {
	for i := range t.slots {
		if t.slots[i].handle == nil {
			t.slots[i] = fdSlot{h, flags}
			return i, nil
		}
	}
	grown := make([]fdSlot, len(t.slots)*2+1)
	copy(grown, t.slots)
	idx := len(t.slots)
	t.slots = grown
	t.slots[idx] = fdSlot{h, flags}
	return idx, nil
}

func (t *FDTable) Free(fd int) error {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd].handle == nil {
		return vfs.ErrBadFd
	}
	t.slots[fd] = fdSlot{}
	return nil
}

// fork copies the table slot-for-slot into a new table, bumping the
// refcount of every live handle via v.Ref — spec.md §3's "on fork the
// vector is copied slot-for-slot and each live handle's count is
// incremented."
func (t *FDTable) fork(v *vfs.VFS) *FDTable {
	clone := &FDTable{slots: make([]fdSlot, len(t.slots))}
	copy(clone.slots, t.slots)
	for _, s := range clone.slots {
		if s.handle != nil {
			v.Ref(s.handle)
		}
	}
	return clone
}
