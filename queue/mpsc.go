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
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/mxtasking/tasking/task"
)

// ErrRingFull is returned by MPSC.Push when the ring is at capacity
// (spec.md §4.3, "Push is CAS-based, failure returns false"; spec.md §9
// Design Notes' open question on bounded MPSC overflow: "the
// specification requires that overflow surfaces as a push failure to the
// caller").
var ErrRingFull = errors.New("queue: mpsc ring is full")

// MPSC is a fixed-capacity bounded multi-producer, single-consumer ring
// (spec.md §4.3, "MPSC ring"). Capacity must be a power of two. Producers
// race a CAS on the write cursor; only the single designated consumer
// calls Pop/PopFront.
type MPSC struct {
	mask uint64
	buf  []atomic.Pointer[task.Task]

	writeCursor uint64 // next slot a producer may claim
	writeDone   uint64 // high-water mark of slots producers have finished writing
	readCursor  uint64 // next slot the consumer will read
}

// NewMPSC returns an empty MPSC ring; capacity is rounded to the next
// power of two if it isn't one already.
func NewMPSC(capacity uint32) *MPSC {
	if capacity == 0 {
		capacity = 1
	}
	if capacity&(capacity-1) != 0 {
		capacity = nextPowerOfTwo(capacity)
	}
	return &MPSC{
		mask: uint64(capacity - 1),
		buf:  make([]atomic.Pointer[task.Task], capacity),
	}
}

func nextPowerOfTwo(v uint32) uint32 {
	n := uint32(1)
	for n < v {
		n <<= 1
	}
	return n
}

// Push claims the next slot via CAS and installs t. Returns ErrRingFull if
// the ring has no free slot for a producer running concurrently with
// other producers and the consumer (spec.md §4.3).
func (q *MPSC) Push(t task.Task) error {
	capacity := q.mask + 1
	for {
		write := atomic.LoadUint64(&q.writeCursor)
		read := atomic.LoadUint64(&q.readCursor)
		if write-read >= capacity {
			return ErrRingFull
		}
		if atomic.CompareAndSwapUint64(&q.writeCursor, write, write+1) {
			slot := &q.buf[write&q.mask]
			slot.Store(&t)
			// Publish in arrival order so the consumer never observes a
			// gap: spin until writeDone has caught up to this producer's
			// claimed slot, then advance it past ours.
			for !atomic.CompareAndSwapUint64(&q.writeDone, write, write+1) {
			}
			return nil
		}
	}
}

// Pop removes and returns the oldest task, or (nil, false) if empty.
// Only the designated single consumer may call this.
func (q *MPSC) Pop() (task.Task, bool) {
	read := q.readCursor
	done := atomic.LoadUint64(&q.writeDone)
	if read >= done {
		return nil, false
	}
	slot := &q.buf[read&q.mask]
	v := slot.Load()
	if v == nil {
		return nil, false
	}
	t := *v
	slot.Store(nil)
	q.readCursor = read + 1
	return t, true
}

// PopFront drains up to n tasks in FIFO order, the batched variant the
// task buffer's fill() uses.
func (q *MPSC) PopFront(n int) []task.Task {
	if n <= 0 {
		return nil
	}
	out := make([]task.Task, 0, n)
	for i := 0; i < n; i++ {
		t, ok := q.Pop()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// Len returns a snapshot of the number of queued tasks. Racy under
// concurrent producers; intended for telemetry, not control flow.
func (q *MPSC) Len() int {
	done := atomic.LoadUint64(&q.writeDone)
	read := atomic.LoadUint64(&q.readCursor)
	if done <= read {
		return 0
	}
	return int(done - read)
}

// Empty reports whether the ring currently has nothing to pop.
func (q *MPSC) Empty() bool { return q.Len() == 0 }

// Capacity returns the ring's fixed slot count.
func (q *MPSC) Capacity() uint32 { return uint32(q.mask + 1) }
