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

package resourceptr

import (
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
)

// Frequency is the predicted access frequency a caller annotates a new
// resource with (spec.md §3 "home_worker_id is assigned... based on a
// user-provided annotation", §4.13).
type Frequency uint8

const (
	Unused Frequency = iota
	Normal
	High
	Excessive
)

func (f Frequency) String() string {
	switch f {
	case Unused:
		return "unused"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Excessive:
		return "excessive"
	default:
		return "unknown"
	}
}

// Occupancy is the four-counter usage-prediction vector a task pool
// carries (spec.md §3 "Occupancy predictor", §4.13).
type Occupancy struct {
	unused, normal, high, excessive uint32
}

// Predict increments the counter for freq.
func (o *Occupancy) Predict(freq Frequency) {
	switch freq {
	case Unused:
		atomic.AddUint32(&o.unused, 1)
	case Normal:
		atomic.AddUint32(&o.normal, 1)
	case High:
		atomic.AddUint32(&o.high, 1)
	case Excessive:
		atomic.AddUint32(&o.excessive, 1)
	}
}

// Revoke decrements the counter for freq, e.g. on resource deletion or
// re-annotation.
func (o *Occupancy) Revoke(freq Frequency) {
	switch freq {
	case Unused:
		decr(&o.unused)
	case Normal:
		decr(&o.normal)
	case High:
		decr(&o.high)
	case Excessive:
		decr(&o.excessive)
	}
}

func decr(v *uint32) {
	for {
		old := atomic.LoadUint32(v)
		if old == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(v, old, old-1) {
			return
		}
	}
}

// HasExcessive reports whether at least one excessive-frequency resource
// is homed here.
func (o *Occupancy) HasExcessive() bool { return atomic.LoadUint32(&o.excessive) > 0 }

// Snapshot is a point-in-time read of the four counters, ordered most to
// least significant for the lexicographic comparison spec.md §4.13 requires.
type Snapshot struct {
	Excessive, High, Normal, Unused uint32
}

// Snapshot reads the current counters.
func (o *Occupancy) Snapshot() Snapshot {
	return Snapshot{
		Excessive: atomic.LoadUint32(&o.excessive),
		High:      atomic.LoadUint32(&o.high),
		Normal:    atomic.LoadUint32(&o.normal),
		Unused:    atomic.LoadUint32(&o.unused),
	}
}

// Less implements the lexicographic "fewer excessive, then fewer high,
// then fewer normal" ordering spec.md §4.13 specifies for picking the
// least-loaded worker.
func (s Snapshot) Less(other Snapshot) bool {
	if s.Excessive != other.Excessive {
		return s.Excessive < other.Excessive
	}
	if s.High != other.High {
		return s.High < other.High
	}
	return s.Normal < other.Normal
}

// slot is one registry entry: the resource's concrete pointer boxed as
// an interface, plus enough metadata to support epoch-deferred deletion.
type slot struct {
	value     interface{}
	freq      Frequency
	generation uint32
}

// Registry is the slab-style resolver backing the "address" field of a
// Ptr: rather than packing a raw pointer (unsafe across a moving garbage
// collector), a Ptr's address is an index into a Registry, resolved
// through Resolve. One Registry is shared process-wide by the runtime
// façade (see spec.md §9 Design Notes, "ownership-strict target...
// slab allocator... next field is a slab index").
type Registry struct {
	mu      sync.RWMutex
	slots   []slot
	free    []uint32
	pending mapset.Set[uint64] // resource ids retired but not yet epoch-reclaimed
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: mapset.NewSet[uint64]()}
}

// Reserve allocates a new slot without yet installing a value, returning
// its address/slab-index. Used by new_resource, which must know the
// index before constructing the object so it can be embedded into the
// returned Ptr the object itself may want to retain.
func (r *Registry) Reserve() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		return uint64(idx)
	}
	r.slots = append(r.slots, slot{})
	return uint64(len(r.slots) - 1)
}

// Install stores value and its predicted frequency at an index obtained
// from Reserve.
func (r *Registry) Install(index uint64, value interface{}, freq Frequency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.slots[index]
	s.value = value
	s.freq = freq
	s.generation++
}

// Resolve returns the value at a Ptr's address, type-asserted to T.
func Resolve[T any](r *Registry, p Ptr) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	idx := p.Address()
	if idx >= uint64(len(r.slots)) {
		return zero, false
	}
	v, ok := r.slots[idx].value.(T)
	return v, ok
}

// Frequency returns the predicted access frequency stored for addr.
func (r *Registry) Frequency(addr uint64) (Frequency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if addr >= uint64(len(r.slots)) {
		return Unused, false
	}
	if r.slots[addr].value == nil {
		return Unused, false
	}
	return r.slots[addr].freq, true
}

// Retire marks addr as logically deleted and pending epoch-safe reclaim;
// the epoch manager calls Release once every worker has observed an
// epoch past the retirement epoch.
func (r *Registry) Retire(addr uint64) {
	r.pending.Add(addr)
}

// Release frees the slot for reuse and clears the stored value so the
// garbage collector can reclaim it. Must only be called once the epoch
// manager has confirmed no in-flight optimistic reader can still observe
// the slot.
func (r *Registry) Release(addr uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if addr >= uint64(len(r.slots)) {
		return
	}
	r.slots[addr].value = nil
	r.free = append(r.free, uint32(addr))
	r.pending.Remove(addr)
}

// PendingCount reports how many resources are retired but not yet released.
func (r *Registry) PendingCount() int { return r.pending.Cardinality() }
