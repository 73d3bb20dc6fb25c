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

package vfs

import (
	"errors"
	"testing"
)

func stubType(name string) *FileSystemType {
	return &FileSystemType{
		Name: name,
		Mount: func(mountPath, device string) (*File, error) {
			return &File{Name: mountPath}, nil
		},
	}
}

func TestRegisterFilesystemRejectsDuplicate(t *testing.T) {
	v := New()
	if err := v.RegisterFilesystem(stubType("dup")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := v.RegisterFilesystem(stubType("dup")); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second register: got %v, want ErrAlreadyRegistered", err)
	}
}

func TestMountRequiresAbsolutePath(t *testing.T) {
	v := New()
	if err := v.RegisterFilesystem(stubType("t")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := v.Mount("t", "relative", ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestMountUnknownTypeFailsNoDevice(t *testing.T) {
	v := New()
	if _, err := v.Mount("nope", "/mnt", ""); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("got %v, want ErrNoDevice", err)
	}
}

// TestGetSuperblockLongestPrefix is spec.md testable property 5: among
// any mounted set, the superblock returned is the one whose mount
// path is the longest prefix match, and no longer-matching mount is
// ever skipped over.
func TestGetSuperblockLongestPrefix(t *testing.T) {
	v := New()
	for _, name := range []string{"root", "a", "ab"} {
		if err := v.RegisterFilesystem(stubType(name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if _, err := v.Mount("root", "/", ""); err != nil {
		t.Fatalf("mount /: %v", err)
	}
	if _, err := v.Mount("a", "/a", ""); err != nil {
		t.Fatalf("mount /a: %v", err)
	}
	if _, err := v.Mount("ab", "/a/b", ""); err != nil {
		t.Fatalf("mount /a/b: %v", err)
	}

	cases := []struct {
		path string
		want string
	}{
		{"/a/b/c", "/a/b"},
		{"/a/x", "/a"},
		{"/other", "/"},
		{"/ab-but-not-a-child", "/"}, // must not falsely prefix-match "/a"
	}
	for _, c := range cases {
		sb, ok := v.GetSuperblock(c.path)
		if !ok {
			t.Fatalf("%s: no superblock found", c.path)
		}
		if sb.MountPath != c.want {
			t.Fatalf("%s: got mount %q, want %q", c.path, sb.MountPath, c.want)
		}
	}
}

func TestUnregisterDoesNotAffectLiveMount(t *testing.T) {
	v := New()
	if err := v.RegisterFilesystem(stubType("t")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := v.Mount("t", "/m", ""); err != nil {
		t.Fatalf("mount: %v", err)
	}
	v.UnregisterFilesystem("t")
	if _, ok := v.GetSuperblock("/m/x"); !ok {
		t.Fatalf("superblock disappeared after UnregisterFilesystem")
	}
}

func TestUnmount(t *testing.T) {
	v := New()
	if err := v.RegisterFilesystem(stubType("t")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := v.Mount("t", "/m", ""); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if !v.Unmount("/m") {
		t.Fatalf("Unmount reported false for a live mount")
	}
	if v.Unmount("/m") {
		t.Fatalf("Unmount reported true for an already-removed mount")
	}
}
