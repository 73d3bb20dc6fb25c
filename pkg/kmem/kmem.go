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

// Package kmem stands in for the kernel's memory allocator: a typed
// slab cache for fixed-shape structures (file handles, pipe buffers,
// filesystem records) and a general-purpose kmalloc/kfree pair for
// everything else. Real kernel code carves these out of physical
// pages; on the host they are backed by sync.Pool and the Go heap,
// but callers are expected to treat Get/Put the same way they would
// treat slab_alloc/slab_free — paired, and not reentrant across the
// pair.
package kmem

import "sync"

// Slab is a typed cache of *T values, analogous to a kernel
// kmem_cache. The function passed to NewSlab is called to produce a
// fresh value when the pool is empty.
type Slab[T any] struct {
	pool sync.Pool
}

// NewSlab creates a slab cache for T, backed by New for cache misses.
func NewSlab[T any](newFn func() *T) *Slab[T] {
	return &Slab[T]{pool: sync.Pool{New: func() any { return newFn() }}}
}

// Alloc returns a *T, either recycled or freshly allocated.
func (s *Slab[T]) Alloc() *T {
	return s.pool.Get().(*T)
}

// Free returns v to the slab. The caller must not use v afterward.
func (s *Slab[T]) Free(v *T) {
	s.pool.Put(v)
}

// Kmalloc and Kfree model the kernel's general-purpose allocator for
// byte buffers (pipe pages, path-resolution scratch space). They are
// thin wrappers so call sites read the same as the C they were
// translated from, and so a future implementation could swap in a
// bounded arena without touching callers.
func Kmalloc(n int) []byte {
	return make([]byte, n)
}

func Kfree(b []byte) {
	_ = b // nothing to do on the host; documents intent at call sites.
}
