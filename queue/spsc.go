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

// Package queue implements the backing stores a task pool drains: a
// single-producer-single-consumer list, a bounded multi-producer ring,
// and a two-tier priority wrapper over either (spec.md §4.3 Queue family).
package queue

import "github.com/mxtasking/tasking/task"

// node wraps a task.Task with a next link. The original intrudes this
// link directly into the task descriptor; Go's garbage-collector-managed
// interface values make an intrusive field impractical to express safely,
// so SPSC wraps each task in a pooled node instead, keeping push/pop O(1)
// and allocation-free in steady state via an internal free list.
type node struct {
	t    task.Task
	next *node
}

// SPSC is a singly linked FIFO list touched only by its owning worker:
// that worker pushes and pops both ends without synchronization
// (spec.md §4.3, "Only the owner touches it").
type SPSC struct {
	head, tail *node
	free       *node // recycled nodes, avoids reallocating on steady-state churn
	size       int
}

// NewSPSC returns an empty SPSC list.
func NewSPSC() *SPSC { return &SPSC{} }

func (q *SPSC) allocNode(t task.Task) *node {
	if n := q.free; n != nil {
		q.free = n.next
		n.t, n.next = t, nil
		return n
	}
	return &node{t: t}
}

// PushBack appends a single task, O(1) (spec.md §4.3).
func (q *SPSC) PushBack(t task.Task) {
	n := q.allocNode(t)
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.size++
}

// PushBackAll appends a batch of tasks in order, e.g. when re-queuing a
// flushed squad's contents.
func (q *SPSC) PushBackAll(tasks []task.Task) {
	for _, t := range tasks {
		q.PushBack(t)
	}
}

// PopFront removes and returns up to n tasks as a slice, the batched
// pop_front(n) operation (spec.md §4.5, "the buffer uses the batched
// pop_front(n)"). The remaining tail stays in the queue.
func (q *SPSC) PopFront(n int) []task.Task {
	if n <= 0 || q.head == nil {
		return nil
	}
	out := make([]task.Task, 0, n)
	for i := 0; i < n && q.head != nil; i++ {
		cur := q.head
		out = append(out, cur.t)
		q.head = cur.next
		if q.head == nil {
			q.tail = nil
		}
		q.size--
		cur.t = nil
		cur.next = q.free
		q.free = cur
	}
	return out
}

// Len returns the number of tasks currently queued.
func (q *SPSC) Len() int { return q.size }

// Empty reports whether the queue holds no tasks.
func (q *SPSC) Empty() bool { return q.size == 0 }
