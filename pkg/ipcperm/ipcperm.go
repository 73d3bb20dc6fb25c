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

// Package ipcperm implements the POSIX-style owner/group/other
// permission gate shared by the VFS "open" check and the SysV-style
// IPC layer (semaphores, shared memory, message queues — out of
// scope for this module, but the permission struct they would share
// is not, per the spec's invariant that both paths use identical
// semantics).
package ipcperm

import "errors"

// ErrPermission is returned when none of the owner/group/other/root
// rules grant the requested mode.
var ErrPermission = errors.New("ipcperm: permission denied")

// Mode is the access mode being requested, mirroring the three
// meaningful O_ACCMODE values.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

// Requester is the minimal view of "the calling task" that a
// permission check needs. task.Task implements this; tests may supply
// lighter-weight fakes.
type Requester interface {
	PID() int
	UID() int
	GID() int

	// Parents returns the requester's ancestor chain, nearest parent
	// first, excluding the init task (pid 0). Used only for the
	// private-key (negative Key) walk described below. A requester
	// with no known ancestry (e.g. init itself, or a fake used in
	// unit tests) may return nil.
	Parents() []Requester
}

// Perm is the IPC permission record: a POSIX mode triple plus the
// creator and current owner uid/gid, keyed by an IPC key. The same
// struct backs both VFS file-open checks and SysV IPC object checks.
type Perm struct {
	Key  int64
	UID  int
	GID  int
	CUID int
	CGID int

	// Mode holds nine permission bits, laid out exactly like a POSIX
	// file mode's low 9 bits: owner read/write/execute in bits 8-6,
	// group in 5-3, other in 2-0. Only the read/write bits are
	// consulted here; execute is meaningless for IPC objects and for
	// the VFS open check alike.
	Mode uint16
}

const (
	ownerRead  = 0o400
	ownerWrite = 0o200
	groupRead  = 0o040
	groupWrite = 0o020
	otherRead  = 0o004
	otherWrite = 0o002
)

// requiredBits reports whether mode needs read permission, write
// permission, or both; scopeAllows checks those against one scope's
// read and write bits.
func requiredBits(mode Mode) (read, write bool) {
	switch mode {
	case ReadOnly:
		return true, false
	case WriteOnly:
		return false, true
	case ReadWrite:
		return true, true
	default:
		return true, false
	}
}

func scopeAllows(bits uint16, readBit, writeBit uint16, mode Mode) bool {
	wantRead, wantWrite := requiredBits(mode)
	if wantRead && bits&readBit == 0 {
		return false
	}
	if wantWrite && bits&writeBit == 0 {
		return false
	}
	return true
}

// Check enforces spec §4.6: root (or pid 0) always passes; otherwise
// owner, then group, then other bits are tried in order. For a
// private key (Key < 0) the owner check additionally walks the
// requester's ancestor chain before the group/other fallback, so a
// child task inherits its parent's ownership of a private resource
// it was never explicitly chowned to.
func Check(p Perm, r Requester, mode Mode) error {
	if r.PID() == 0 || r.UID() == 0 {
		return nil
	}

	if ownerMatches(p, r) && scopeAllows(p.Mode, ownerRead, ownerWrite, mode) {
		return nil
	}

	if p.Key < 0 {
		for _, anc := range r.Parents() {
			if ownerMatches(p, anc) && scopeAllows(p.Mode, ownerRead, ownerWrite, mode) {
				return nil
			}
		}
	}

	if groupMatches(p, r) && scopeAllows(p.Mode, groupRead, groupWrite, mode) {
		return nil
	}
	if p.Key < 0 {
		for _, anc := range r.Parents() {
			if groupMatches(p, anc) && scopeAllows(p.Mode, groupRead, groupWrite, mode) {
				return nil
			}
		}
	}

	if scopeAllows(p.Mode, otherRead, otherWrite, mode) {
		return nil
	}

	return ErrPermission
}

func ownerMatches(p Perm, r Requester) bool {
	return r.UID() == p.UID || r.UID() == p.CUID
}

func groupMatches(p Perm, r Requester) bool {
	return r.GID() == p.GID || r.GID() == p.CGID
}
