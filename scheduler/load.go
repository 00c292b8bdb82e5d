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

package scheduler

import "sync/atomic"

// LoadEstimate is a per-worker running counter, the Go analogue of the
// original's load.h (SPEC_FULL.md "load.h / worker load estimate"). The
// scheduler increments it on every pool push and reads it only to pick
// the least-loaded worker for a NUMA-node destination; resource home
// placement does not consult it.
type LoadEstimate struct {
	counters []uint64
}

// NewLoadEstimate returns a zeroed estimate for n workers.
func NewLoadEstimate(n int) *LoadEstimate {
	return &LoadEstimate{counters: make([]uint64, n)}
}

// Inc records a task just pushed onto workerID's pool.
func (l *LoadEstimate) Inc(workerID uint16) {
	if int(workerID) >= len(l.counters) {
		return
	}
	atomic.AddUint64(&l.counters[workerID], 1)
}

// Dec records a task workerID just finished executing.
func (l *LoadEstimate) Dec(workerID uint16) {
	if int(workerID) >= len(l.counters) {
		return
	}
	for {
		old := atomic.LoadUint64(&l.counters[workerID])
		if old == 0 {
			return
		}
		if atomic.CompareAndSwapUint64(&l.counters[workerID], old, old-1) {
			return
		}
	}
}

// Get returns workerID's current load estimate.
func (l *LoadEstimate) Get(workerID uint16) uint64 {
	if int(workerID) >= len(l.counters) {
		return 0
	}
	return atomic.LoadUint64(&l.counters[workerID])
}
