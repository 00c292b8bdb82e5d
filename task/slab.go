// Copyright 2024 The mxtasking Authors
// This file is part of the mxtasking library.
//
// The mxtasking library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The mxtasking library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the mxtasking library. If not, see <http://www.gnu.org/licenses/>.

package task

import "sync"

// Slab is a pooled fixed-size allocator, not tied to any worker, standing in for the
// original's placement-new-over-a-byte-arena slab (spec.md §4.15
// new_task/delete_task: "fixed-size allocator (from per-worker slab, or
// system malloc)"). Go's garbage collector already owns object lifetime,
// so Slab's job is narrower than the original's: it only pools and reuses
// *Task-holding containers* of type T to avoid a fresh heap allocation on
// every spawn, via a sync.Pool.
type Slab[T any] struct {
	pool sync.Pool
}

// NewSlab returns a Slab whose New hook constructs a zero-valued T.
func NewSlab[T any]() *Slab[T] {
	s := &Slab[T]{}
	s.pool.New = func() interface{} { return new(T) }
	return s
}

// New returns a pooled or freshly allocated *T, the Go analogue of
// new_task<T>(worker_id, args...): the caller is expected to initialize
// the returned value's fields immediately (Go has no constructor args).
func (s *Slab[T]) New() *T {
	return s.pool.Get().(*T)
}

// Release returns v to the pool for reuse, the analogue of delete_task.
// Callers must not use v again after Release.
func (s *Slab[T]) Release(v *T) {
	var zero T
	*v = zero
	s.pool.Put(v)
}

// SystemAllocator is the UseSystemAllocator=true counterpart: it never
// pools, allocating and discarding through the regular garbage collector
// (spec.md §4.15 init(), "use_system_allocator").
type SystemAllocator[T any] struct{}

// New allocates a fresh zero-valued T.
func (SystemAllocator[T]) New() *T { return new(T) }

// Release is a no-op; the garbage collector reclaims v once unreferenced.
func (SystemAllocator[T]) Release(*T) {}
