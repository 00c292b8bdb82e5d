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

// Package buffer implements the per-worker task buffer: a power-of-two
// ring sitting between the task pool and the executor, interleaving
// prefetch actions ahead of the tasks that need them (spec.md §3 "Task
// buffer", §4.5, §4.6).
package buffer

import (
	"github.com/mxtasking/tasking/metricsx"
	"github.com/mxtasking/tasking/prefetch"
	"github.com/mxtasking/tasking/task"
)

// Source is the minimal draining contract the buffer's Fill pulls from;
// queue.Priority satisfies it (a bare queue.SPSC/MPSC exposes PopFront,
// not Drain).
type Source interface {
	Drain(n int) []task.Task
}

// Slot is one ring cell: an optional task and an optional prefetch item,
// opaque to callers until consumed via Next (spec.md §4.5).
type Slot struct {
	Task     task.Task
	Prefetch prefetch.Item
}

func (s *Slot) reset() {
	s.Task = nil
	s.Prefetch = prefetch.Item{}
}

// Buffer is the fixed-capacity power-of-two ring of Slots.
type Buffer struct {
	slots    []Slot
	mask     uint64
	head     uint64
	tail     uint64
	count    uint64
	pipeline *prefetch.Pipeline

	fillGauge func(value int64)
}

// New returns an empty Buffer with the given capacity (must be a power of
// two, e.g. config.Config.TaskBufferSize) wired to pipeline.
func New(capacity uint32, pipeline *prefetch.Pipeline) *Buffer {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("buffer: capacity must be a power of two")
	}
	return &Buffer{
		slots:    make([]Slot, capacity),
		mask:     uint64(capacity) - 1,
		pipeline: pipeline,
	}
}

// WithMetrics attaches a named fill-level gauge, reported on every Fill
// (spec.md §9 ambient observability; not part of the core algorithm).
func (b *Buffer) WithMetrics(name string) *Buffer {
	gauge := metricsx.Gauge(name)
	b.fillGauge = func(v int64) { metricsx.UpdateIf(gauge, v) }
	return b
}

// Capacity returns the ring's fixed slot count.
func (b *Buffer) Capacity() int { return len(b.slots) }

// Size returns the number of occupied slots.
func (b *Buffer) Size() int { return int(b.count) }

// Empty reports whether the buffer holds no tasks.
func (b *Buffer) Empty() bool { return b.count == 0 }

// AvailableSlots returns the number of free slots (spec.md §4.5).
func (b *Buffer) AvailableSlots() int { return len(b.slots) - int(b.count) }

// RefillThreshold reports the pipeline's refill threshold, used by the
// worker loop's count_to_execute formula (spec.md §4.12 step d).
func (b *Buffer) RefillThreshold() uint8 {
	if b.pipeline == nil {
		return 0
	}
	return b.pipeline.RefillThreshold()
}

// Head returns the index Next will consume, for diagnostics/tests.
func (b *Buffer) Head() int { return int(b.head & b.mask) }

// Next consumes the head slot and advances head, returning the slot's
// contents by value (spec.md §4.5, "reads the head slot and advances
// head. Caller then reads task and issues prefetch").
func (b *Buffer) Next() (Slot, bool) {
	if b.count == 0 {
		return Slot{}, false
	}
	idx := b.head & b.mask
	out := b.slots[idx]
	b.slots[idx].reset()
	b.head++
	b.count--
	return out, true
}

// PeekHead returns the slot currently at head without consuming it, the
// "following slot" the worker loop warms before dispatching the task it
// just consumed (spec.md §4.12 step e, "prefetch the task descriptor
// itself for the following slot").
func (b *Buffer) PeekHead() (Slot, bool) {
	if b.count == 0 {
		return Slot{}, false
	}
	return b.slots[b.head&b.mask], true
}

// resourceHint resolves the task's raw prefetch hint (task.PrefetchHint,
// stored as interface{} to avoid an import cycle) into a concrete
// prefetch.Item.
func resourceHint(t task.Task) prefetch.Item {
	hint := t.Annotation().Prefetch
	if hint == nil {
		return prefetch.Item{}
	}
	desc, ok := hint.Descriptor.(prefetch.Descriptor)
	if !ok {
		return prefetch.Item{}
	}
	return prefetch.Item{Address: hint.Resource.Address(), Descriptor: desc}
}

func cyclesOf(t task.Task, sampled func(traceID uint64) (uint32, bool)) uint32 {
	if sampled != nil {
		if c, ok := sampled(t.TraceID()); ok {
			return c
		}
	}
	return t.Annotation().Cycles
}

// Fill pulls up to max tasks from source into successive tail slots and
// programs their paired prefetch slots per the pipeline's mode
// (spec.md §4.5 fill(), §4.6). sampled, if non-nil, overrides a task's
// annotated cycle hint with the sampler's measured average
// (spec.md §4.7); pass nil to always use the annotation.
func (b *Buffer) Fill(source Source, max int, sampled func(traceID uint64) (uint32, bool)) int {
	if max > b.AvailableSlots() {
		max = b.AvailableSlots()
	}
	if max <= 0 {
		return 0
	}
	pulled := source.Drain(max)
	for _, t := range pulled {
		b.scheduleOne(t, sampled)
	}
	if b.fillGauge != nil {
		b.fillGauge(int64(b.count))
	}
	return len(pulled)
}

// scheduleOne places t into the next tail slot and, if it carries a
// prefetch hint, programs the hint into the slot `distance` positions
// earlier, clamped to the number of slots actually available ahead of it
// (spec.md §4.6 edge policy).
func (b *Buffer) scheduleOne(t task.Task, sampled func(uint64) (uint32, bool)) {
	taskIdx := b.tail & b.mask
	b.slots[taskIdx].Task = t
	b.tail++
	b.count++

	item := resourceHint(t)
	cycles := cyclesOf(t, sampled)
	if b.pipeline == nil {
		return
	}
	// Distance always records cycles into the rolling history, even when
	// this task carries no hint, so the history stays representative of
	// actual task costs for later tasks' distance computations.
	distance := b.pipeline.Distance(item.Descriptor, cycles)
	if item.IsZero() || b.pipeline.Mode() == prefetch.Disabled {
		return
	}

	available := uint8(b.count - 1) // occupied slots ahead of this one, earlier fills included
	if available > uint8(len(b.slots)) {
		available = uint8(len(b.slots))
	}
	distance = prefetch.ClampToFill(distance, available)

	if distance == 0 {
		return
	}
	prefetchIdx := (taskIdx - uint64(distance) + uint64(len(b.slots))) & b.mask
	b.slots[prefetchIdx].Prefetch = item
}
