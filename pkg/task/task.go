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

// Package task models the scheduler's view of a task — pid, uid,
// gid, cwd, and its open-file table — as the outside collaborator
// spec.md §1 describes ("the scheduler appears only as a source of
// 'the current task'"). Task satisfies both vfs.Task and
// ipcperm.Requester so it can be passed directly to either package.
package task

import (
	"vkern.dev/pkg/ipcperm"
	"vkern.dev/pkg/vfs"
)

// Task is one scheduled task. PID 0 is the init task; it has no
// parent.
type Task struct {
	pid, uid, gid int
	cwd           string
	parent        *Task

	FDs *FDTable
}

// New constructs a task with a fresh fd table.
func New(pid, uid, gid int, cwd string, parent *Task) *Task {
	return &Task{pid: pid, uid: uid, gid: gid, cwd: cwd, parent: parent, FDs: NewFDTable()}
}

func (t *Task) PID() int    { return t.pid }
func (t *Task) UID() int    { return t.uid }
func (t *Task) GID() int    { return t.gid }
func (t *Task) Cwd() string { return t.cwd }

// Parents returns t's ancestor chain, nearest first, excluding the
// init task — the walk ipcperm.Check uses for a private IPC key.
func (t *Task) Parents() []ipcperm.Requester {
	var out []ipcperm.Requester
	for p := t.parent; p != nil && p.pid != 0; p = p.parent {
		out = append(out, p)
	}
	return out
}

// Fork creates a child task that shares t's cwd/uid/gid, with its own
// pid and an fd table copied slot-for-slot (each live handle's
// refcount bumped through v).
func (t *Task) Fork(v *vfs.VFS, childPID int) *Task {
	return &Task{
		pid: childPID, uid: t.uid, gid: t.gid, cwd: t.cwd, parent: t,
		FDs: t.FDs.fork(v),
	}
}
