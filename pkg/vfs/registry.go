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
	"path"
	"strings"
	"sync"

	"vkern.dev/pkg/vfs/resolver"
)

// VFS is the process-wide filesystem switch: the registry of
// filesystem types, the ordered list of mounted superblocks, and the
// refcount lock guarding every live File handle. Nothing about it is
// actually global Go state — callers construct one (normally exactly
// one, at boot) and pass it around, per spec.md §9's instruction to
// avoid implicit process-wide state inside backend op functions.
type VFS struct {
	mu    sync.Mutex // guards types and mounts (structural changes only)
	types map[string]*FileSystemType
	mounts []*Superblock

	refLock sync.Mutex // guards File.count on every handle live in this VFS
}

// New constructs an empty VFS switch with no registered types and no
// mounts.
func New() *VFS {
	return &VFS{
		types: make(map[string]*FileSystemType),
	}
}

// RegisterFilesystem adds typ to the registry. It fails with
// ErrAlreadyRegistered if a type with the same name is already
// present.
func (v *VFS) RegisterFilesystem(typ *FileSystemType) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.types[typ.Name]; ok {
		return ErrAlreadyRegistered
	}
	v.types[typ.Name] = typ
	return nil
}

// UnregisterFilesystem removes typ from the registry. It has no
// effect on superblocks already mounted from it (spec.md §4.1).
func (v *VFS) UnregisterFilesystem(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.types, name)
}

// Mount resolves a non-empty device to an absolute path — `.`/`..`
// collapsed and seeded against "/" if given relative, per spec.md
// §4.1 — before invoking the named type's Mount callback, and inserts
// the resulting superblock at mountPath. A device of "" (filesystem
// types like procfs that don't read one) is passed through unresolved.
// Symlinks are deliberately not followed here: at mount time the
// device string is type-specific (initrd's Mount callback doesn't
// even look at it — spec.md's own scope excludes block devices and
// on-disk formats), so there is nothing to dereference in the VFS
// namespace being built.
func (v *VFS) Mount(typeName, mountPath, device string) (*Superblock, error) {
	if !path.IsAbs(mountPath) {
		return nil, ErrInvalid
	}

	if device != "" {
		resolved, err := resolver.Resolve("/", device, resolver.RemoveTrailingSlash, pathBackend{v})
		if err != nil {
			return nil, ErrNoDevice
		}
		device = resolved
	}

	v.mu.Lock()
	typ, ok := v.types[typeName]
	v.mu.Unlock()
	if !ok || typ.Mount == nil {
		return nil, ErrNoDevice
	}

	root, err := typ.Mount(mountPath, device)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNoDevice
	}

	sb := &Superblock{
		Name:      typ.Name,
		MountPath: mountPath,
		Type:      typ,
		Root:      root,
	}

	v.mu.Lock()
	v.mounts = append(v.mounts, sb)
	v.mu.Unlock()
	return sb, nil
}

// Unmount removes the superblock mounted at mountPath, if any.
func (v *VFS) Unmount(mountPath string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, sb := range v.mounts {
		if sb.MountPath == mountPath {
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			return true
		}
	}
	return false
}

// GetSuperblock returns the superblock whose mount path is the
// longest prefix of absPath (spec.md §4.1, testable property 5).
// Dispatch reads don't take v.mu: the mount list is append-only from
// a single context in this design (spec.md §5), so a racing Mount
// only ever grows the slice a reader might miss momentarily, never
// corrupts it.
func (v *VFS) GetSuperblock(absPath string) (*Superblock, bool) {
	var best *Superblock
	for _, sb := range v.mounts {
		if !isPrefix(sb.MountPath, absPath) {
			continue
		}
		if best == nil || len(sb.MountPath) > len(best.MountPath) {
			best = sb
		}
	}
	return best, best != nil
}

func isPrefix(mountPath, absPath string) bool {
	if mountPath == "/" {
		return true
	}
	if !strings.HasPrefix(absPath, mountPath) {
		return false
	}
	rest := absPath[len(mountPath):]
	return rest == "" || rest[0] == '/'
}
