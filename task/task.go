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

// Package task defines the unit of work the scheduler moves between
// queues: the Task interface, its Annotation, and the fixed-size slab
// allocator tasks are carved from (spec.md §3 "Task descriptor",
// §4.2, §4.15 new_task/delete_task).
package task

// Task is the interface every unit of schedulable work implements
// (spec.md §4.2). Execute runs the task body on workerID and returns the
// follow-up action the worker loop should take.
type Task interface {
	Execute(workerID uint16) Result
	Annotation() *Annotation
	// TraceID identifies this task's "type" for the cycle sampler
	// (spec.md §4.7); tasks that don't care about sampling return 0.
	TraceID() uint64
}

// Result is what Execute returns: an optional successor task to spawn and
// a flag telling the worker whether to free this task (spec.md §4.2).
type Result struct {
	// Successor, if non-nil, is spawned immediately after this task
	// completes.
	Successor Task
	// Remove instructs the worker to free this task after dispatch.
	Remove bool
}

// Done returns the common hot-path result: no successor, free this task.
func Done() Result { return Result{Remove: true} }

// Continue returns a result carrying a successor and freeing this task,
// spec.md §4.2's "common hot path".
func Continue(successor Task) Result { return Result{Successor: successor, Remove: true} }

// Requeue returns a result that keeps this task alive with no successor,
// used by tasks that reschedule themselves by other means.
func Requeue() Result { return Result{} }

// stopTask is the sentinel successor that tells the worker loop and
// scheduler to shut the runtime down (spec.md §4.2, "A special 'stop
// runtime' result is constructed by submitting a StopTask as successor").
type stopTask struct{ ann Annotation }

func (s *stopTask) Execute(uint16) Result { return Done() }
func (s *stopTask) Annotation() *Annotation { return &s.ann }
func (s *stopTask) TraceID() uint64         { return 0 }

// Stop returns a result whose successor is the stop-runtime sentinel.
func Stop() Result { return Result{Successor: &stopTask{}, Remove: true} }

// IsStop reports whether t is the stop-runtime sentinel.
func IsStop(t Task) bool {
	_, ok := t.(*stopTask)
	return ok
}

// Restorable is optionally implemented by a task whose state must be
// saved before a speculative optimistic execution and rolled back if a
// concurrent writer invalidates it (spec.md §4.10). Tasks that only ever
// run under primitives without an optimistic retry loop, or that are
// naturally idempotent, need not implement it; the dispatcher then runs
// without a backup/restore pair.
type Restorable interface {
	// Snapshot returns a copy of whatever state Execute would mutate.
	Snapshot() interface{}
	// Restore writes a previously taken Snapshot back onto the task.
	Restore(snapshot interface{})
}
