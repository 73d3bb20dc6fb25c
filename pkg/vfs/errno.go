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

import "vkern.dev/pkg/errno"

// Errno is a POSIX error number wrapped as a Go error. It is an alias
// for pkg/errno's type so that pkg/vfs/resolver — which pkg/vfs calls
// into for path resolution — can produce the exact same sentinel
// values without importing pkg/vfs itself.
type Errno = errno.Errno

// The standard POSIX error numbers spec.md §6 requires, re-exported
// from pkg/errno so existing callers keep spelling them vfs.ErrXxx.
// Values match Linux's actual numbering so a future syscall-layer
// translation is a straight pass-through.
var (
	ErrPerm          = errno.ErrPerm
	ErrNotExist      = errno.ErrNotExist
	ErrNoDevice      = errno.ErrNoDevice
	ErrBadFd         = errno.ErrBadFd
	ErrAccess        = errno.ErrAccess
	ErrFault         = errno.ErrFault
	ErrExists        = errno.ErrExists
	ErrNotDir        = errno.ErrNotDir
	ErrIsDir         = errno.ErrIsDir
	ErrInvalid       = errno.ErrInvalid
	ErrFileTableFull = errno.ErrFileTableFull
	ErrTooManyOpen   = errno.ErrTooManyOpen
	ErrNoSpace       = errno.ErrNoSpace
	ErrNameTooLong   = errno.ErrNameTooLong
	ErrNoSys         = errno.ErrNoSys
	ErrNotEmpty      = errno.ErrNotEmpty
	ErrLoop          = errno.ErrLoop
	ErrOverflow      = errno.ErrOverflow
)

// Additional errno-shaped sentinels used internally by the VFS switch
// and resolver that don't have a single standard POSIX name but are
// still surfaced as *Errno so callers have one error type to switch
// on.
var (
	ErrAlreadyRegistered = errno.ErrAlreadyRegistered
	ErrNotSupported      = errno.ErrNotSupported
	ErrNotALink          = errno.ErrNotALink
)
