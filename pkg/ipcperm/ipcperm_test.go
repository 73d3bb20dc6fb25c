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

package ipcperm

import (
	"errors"
	"testing"
)

type fakeRequester struct {
	pid, uid, gid int
	parents       []Requester
}

func (f fakeRequester) PID() int             { return f.pid }
func (f fakeRequester) UID() int             { return f.uid }
func (f fakeRequester) GID() int             { return f.gid }
func (f fakeRequester) Parents() []Requester { return f.parents }

// TestRootAlwaysAllowed is spec.md testable property 7's first half.
func TestRootAlwaysAllowed(t *testing.T) {
	perm := Perm{Key: 1, UID: 5, GID: 5, CUID: 5, CGID: 5, Mode: 0}
	if err := Check(perm, fakeRequester{pid: 1, uid: 0}, ReadWrite); err != nil {
		t.Fatalf("root (uid 0): got %v, want nil", err)
	}
	if err := Check(perm, fakeRequester{pid: 0, uid: 99}, ReadWrite); err != nil {
		t.Fatalf("pid 0: got %v, want nil", err)
	}
}

// TestOtherReadOnlyNotWrite is spec.md testable property 7's second
// half: a non-owner with only the other-read bit set can open
// RDONLY but not WRONLY.
func TestOtherReadOnlyNotWrite(t *testing.T) {
	perm := Perm{Key: 1, UID: 1, GID: 1, CUID: 1, CGID: 1, Mode: 0o400 | 0o004} // owner r, other r
	stranger := fakeRequester{pid: 9, uid: 2, gid: 2}

	if err := Check(perm, stranger, ReadOnly); err != nil {
		t.Fatalf("ReadOnly via other bit: got %v, want nil", err)
	}
	if err := Check(perm, stranger, WriteOnly); !errors.Is(err, ErrPermission) {
		t.Fatalf("WriteOnly via other bit: got %v, want ErrPermission", err)
	}
}

func TestOwnerAndGroupScopes(t *testing.T) {
	perm := Perm{Key: 1, UID: 1, GID: 2, CUID: 1, CGID: 2, Mode: 0o600 | 0o040} // owner rw, group r
	owner := fakeRequester{pid: 9, uid: 1, gid: 9}
	if err := Check(perm, owner, ReadWrite); err != nil {
		t.Fatalf("owner ReadWrite: got %v, want nil", err)
	}

	groupMember := fakeRequester{pid: 9, uid: 9, gid: 2}
	if err := Check(perm, groupMember, ReadOnly); err != nil {
		t.Fatalf("group ReadOnly: got %v, want nil", err)
	}
	if err := Check(perm, groupMember, WriteOnly); !errors.Is(err, ErrPermission) {
		t.Fatalf("group WriteOnly: got %v, want ErrPermission", err)
	}

	nobody := fakeRequester{pid: 9, uid: 9, gid: 9}
	if err := Check(perm, nobody, ReadOnly); !errors.Is(err, ErrPermission) {
		t.Fatalf("unrelated requester: got %v, want ErrPermission", err)
	}
}

// TestPrivateKeyWalksParentChain covers spec.md §4.6's private-key
// (Key < 0) rule: a child task inherits its parent's ownership of a
// private resource before falling through to group/other.
func TestPrivateKeyWalksParentChain(t *testing.T) {
	perm := Perm{Key: -1, UID: 7, GID: 7, CUID: 7, CGID: 7, Mode: 0o600}
	parent := fakeRequester{pid: 2, uid: 7, gid: 7}
	child := fakeRequester{pid: 3, uid: 9, gid: 9, parents: []Requester{parent}}

	if err := Check(perm, child, ReadWrite); err != nil {
		t.Fatalf("child of owner via private key: got %v, want nil", err)
	}

	orphan := fakeRequester{pid: 4, uid: 9, gid: 9}
	if err := Check(perm, orphan, ReadWrite); !errors.Is(err, ErrPermission) {
		t.Fatalf("unrelated requester via private key: got %v, want ErrPermission", err)
	}
}

func TestPositiveKeyIgnoresParentChain(t *testing.T) {
	perm := Perm{Key: 1, UID: 7, GID: 7, CUID: 7, CGID: 7, Mode: 0o600}
	parent := fakeRequester{pid: 2, uid: 7, gid: 7}
	child := fakeRequester{pid: 3, uid: 9, gid: 9, parents: []Requester{parent}}

	if err := Check(perm, child, ReadWrite); !errors.Is(err, ErrPermission) {
		t.Fatalf("non-private key must not consult Parents: got %v, want ErrPermission", err)
	}
}
