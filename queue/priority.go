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

package queue

import (
	"github.com/mxtasking/tasking/task"
)

// Backing is the minimal contract both SPSC and MPSC satisfy, letting
// Priority wrap either (spec.md §4.3, "Both are wrapped by a priority
// queue holding exactly two underlying queues").
type Backing interface {
	PushBack(task.Task)
	PopFront(n int) []task.Task
	Len() int
	Empty() bool
}

// mpscBacking adapts an *MPSC to Backing. MPSC.Push is fallible
// (spec.md §4.3, CAS push can fail when the ring is full); this adapter's
// PushBack discards that error, so a push through it onto a full ring
// drops the task. Callers that need to observe ErrRingFull push directly
// against the *MPSC instead.
type mpscBacking struct{ *MPSC }

func (b mpscBacking) PushBack(t task.Task)       { _ = b.MPSC.Push(t) }
func (b mpscBacking) PopFront(n int) []task.Task { return b.MPSC.PopFront(n) }

// WrapMPSC adapts an *MPSC ring to the Backing interface for use as a
// Priority tier.
func WrapMPSC(m *MPSC) Backing { return mpscBacking{m} }

// Priority dispatches pushes and drains between exactly two underlying
// queues, low and normal, keyed on task.Annotation.Priority
// (spec.md §4.3).
type Priority struct {
	normal, low Backing
}

// NewPrioritySPSC wraps two SPSC lists.
func NewPrioritySPSC() *Priority {
	return &Priority{normal: NewSPSC(), low: NewSPSC()}
}

// NewPriorityFrom wraps caller-supplied backings, used when the normal and
// low tiers are MPSC rings instead of SPSC lists.
func NewPriorityFrom(normal, low Backing) *Priority {
	return &Priority{normal: normal, low: low}
}

// PushBack routes t to its tier's backing based on t's own annotation.
func (p *Priority) PushBack(t task.Task) {
	if t.Annotation().Priority == task.Low {
		p.low.PushBack(t)
	} else {
		p.normal.PushBack(t)
	}
}

// Normal returns the normal-priority backing.
func (p *Priority) Normal() Backing { return p.normal }

// Low returns the low-priority backing.
func (p *Priority) Low() Backing { return p.low }

// Drain pulls up to n tasks, normal tier first and low tier only if the
// normal tier was empty (spec.md §4.4 withdraw: "first normal, then low
// (only if the buffer remained empty; this ensures low-priority
// starvation is bounded only by empty buffer states)").
func (p *Priority) Drain(n int) []task.Task {
	out := p.normal.PopFront(n)
	if len(out) == 0 {
		out = p.low.PopFront(n)
	}
	return out
}

// Len returns the combined count across both tiers.
func (p *Priority) Len() int { return p.normal.Len() + p.low.Len() }

// Empty reports whether both tiers are empty.
func (p *Priority) Empty() bool { return p.normal.Empty() && p.low.Empty() }
