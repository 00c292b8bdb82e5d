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

// Package latch provides concrete implementations of the syncobj
// contracts (plain exclusive/reader-writer latches, a CAS version
// counter) and the dispatcher that wraps task execution under one of the
// seven synchronization primitives (spec.md §4.9).
package latch

import "sync"

// Exclusive is a plain mutex satisfying syncobj.Exclusive, embeddable
// into a user resource type to get ExclusiveLatch dispatch for free.
type Exclusive struct {
	mu sync.Mutex
}

func (e *Exclusive) Lock()   { e.mu.Lock() }
func (e *Exclusive) Unlock() { e.mu.Unlock() }

// ReaderWriter is a plain RWMutex satisfying syncobj.ReaderWriter.
type ReaderWriter struct {
	mu sync.RWMutex
}

func (r *ReaderWriter) Lock()    { r.mu.Lock() }
func (r *ReaderWriter) Unlock()  { r.mu.Unlock() }
func (r *ReaderWriter) RLock()   { r.mu.RLock() }
func (r *ReaderWriter) RUnlock() { r.mu.RUnlock() }
