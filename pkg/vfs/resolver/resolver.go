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

// Package resolver turns a possibly-relative, possibly-symlinked path
// into the canonical absolute path the VFS switch dispatches on. It
// never mutates the filesystem; every link is resolved through a
// caller-supplied Backend.Readlink.
package resolver

import (
	"strings"

	"vkern.dev/pkg/errno"
)

// SymloopMax bounds the number of symlinks a single resolution may
// follow before failing ELOOP (spec.md testable property 6).
const SymloopMax = 8

// MaxPathLen bounds the working buffer's length in bytes.
const MaxPathLen = 4096

// Flags controls resolution behavior.
type Flags int

const (
	// FollowLinks causes each appended component to be checked against
	// the backend's readlink and substituted if it is a symlink.
	FollowLinks Flags = 1 << iota
	// RemoveTrailingSlash drops a trailing "/" from the result, unless
	// the result is the root itself.
	RemoveTrailingSlash
	// CreatLastComponent tolerates the final component not existing
	// yet (the caller is about to create it).
	CreatLastComponent
)

// Backend is the minimal readlink surface the resolver needs from a
// mounted filesystem. vfs.FileOps satisfies it; *vfs.VFS does not
// (its Readlink also takes a task), so pkg/vfs passes an unexported
// adapter around it instead.
type Backend interface {
	Readlink(path string) (string, error)
}

// Resolve canonicalizes rawPath, seeding a relative path with cwd, and
// following symlinks through backend when FollowLinks is set.
func Resolve(cwd, rawPath string, flags Flags, backend Backend) (string, error) {
	input := rawPath
	if !strings.HasPrefix(input, "/") {
		input = cwd + "/" + input
	}

	linkDepth := 0
	for {
		comps, err := tokenize(input)
		if err != nil {
			return "", err
		}

		out, restart, err := walk(comps, flags, backend)
		if err != nil {
			return "", err
		}
		if restart != "" {
			linkDepth++
			if linkDepth >= SymloopMax {
				return "", errno.ErrLoop
			}
			input = restart
			continue
		}

		result := "/" + strings.Join(out, "/")
		if len(result) > MaxPathLen {
			return "", errno.ErrNameTooLong
		}
		if flags&RemoveTrailingSlash != 0 && len(result) > 1 {
			result = strings.TrimSuffix(result, "/")
		}
		return result, nil
	}
}

func tokenize(path string) ([]string, error) {
	if len(path) > MaxPathLen {
		return nil, errno.ErrNameTooLong
	}
	raw := strings.Split(path, "/")
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// walk appends tokens one at a time into a working buffer, applying
// "." / ".." and, when FollowLinks is set, substituting any symlink
// encountered along the way. If a link is followed, walk returns the
// rewritten full path in restart and the caller must re-tokenize and
// re-walk from scratch (per spec.md §4.2: "the whole resolution
// restarts on the rewritten buffer").
func walk(tokens []string, flags Flags, backend Backend) (out []string, restart string, err error) {
	out = make([]string, 0, len(tokens))

	for i, tok := range tokens {
		switch tok {
		case ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}

		out = append(out, tok)
		if len("/"+strings.Join(out, "/")) > MaxPathLen {
			return nil, "", errno.ErrNameTooLong
		}

		if flags&FollowLinks == 0 || backend == nil {
			continue
		}

		isLast := i == len(tokens)-1
		current := "/" + strings.Join(out, "/")
		target, lerr := backend.Readlink(current)
		if lerr == nil {
			if strings.HasPrefix(target, "/") {
				rest := tokens[i+1:]
				return nil, joinPath(target, rest), nil
			}
			rewritten := append(append([]string{}, out[:len(out)-1]...), strings.Split(target, "/")...)
			rewritten = append(rewritten, tokens[i+1:]...)
			return nil, "/" + strings.Join(rewritten, "/"), nil
		}
		switch {
		case isErrno(lerr, errno.ErrNotALink):
			continue
		case isErrno(lerr, errno.ErrNotExist) && isLast && flags&CreatLastComponent != 0:
			continue
		default:
			return nil, "", lerr
		}
	}
	return out, "", nil
}

func joinPath(base string, rest []string) string {
	if len(rest) == 0 {
		return base
	}
	base = strings.TrimSuffix(base, "/")
	return base + "/" + strings.Join(rest, "/")
}

func isErrno(err error, target error) bool {
	e, ok := err.(*errno.Errno)
	if !ok {
		return false
	}
	t, ok := target.(*errno.Errno)
	if !ok {
		return false
	}
	return e.Is(t)
}
