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

// Dirent is the payload getdents returns per spec.md §6. The initrd
// and procfs backends fill in Ino, Type and Name only; Off and Reclen
// are left zero.
type Dirent struct {
	Ino    uint64
	Off    uint64
	Reclen uint16
	Type   FileMode
	Name   string
}

// Stat is the metadata returned by a fs_ops.Stat / sys_ops.Stat call.
type Stat struct {
	Ino     uint64
	Mode    FileMode
	UID     int
	GID     int
	Size    int64
	Atime   int64
	Mtime   int64
	Ctime   int64
	Nlink   int
}
