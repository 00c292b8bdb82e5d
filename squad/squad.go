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

// Package squad implements task squads: a user-addressable batch that
// amortizes routing overhead when a producer has many tasks for the same
// worker (spec.md §3 "Task squad", §4.11).
package squad

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/mxtasking/tasking/queue"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/task"
)

// Squad batches tasks destined for one home worker, dispatched under the
// Batched synchronization primitive (spec.md §4.11).
type Squad struct {
	home resourceptr.Ptr
	// local is only ever touched by the home worker (spec.md §4.11,
	// "Local pushes go to the owner's SPSC list").
	local *queue.SPSC
	// remote collects cross-worker producer pushes ahead of a flush
	// (spec.md §4.11, "Remote pushes go to an MPSC ring owned by the squad").
	remote *queue.MPSC
	// producers tracks the distinct remote worker ids that have pushed
	// into this squad, for telemetry on fan-in breadth.
	producers mapset.Set[uint16]
}

// New returns an empty squad homed at home, with a remote ring sized
// remoteCapacity (power of two).
func New(home resourceptr.Ptr, remoteCapacity uint32) *Squad {
	return &Squad{
		home:      home,
		local:     queue.NewSPSC(),
		remote:    queue.NewMPSC(remoteCapacity),
		producers: mapset.NewSet[uint16](),
	}
}

// Home returns the squad's home resource handle.
func (s *Squad) Home() resourceptr.Ptr { return s.home }

// PushLocal appends t directly to the local list. Only the squad's home
// worker may call this (spec.md §4.11).
func (s *Squad) PushLocal(t task.Task) {
	s.local.PushBack(t)
}

// PushRemote enqueues t on the remote ring, tagging producerWorker for
// fan-in telemetry. Safe for concurrent callers on different workers.
func (s *Squad) PushRemote(t task.Task, producerWorker uint16) error {
	if err := s.remote.Push(t); err != nil {
		return err
	}
	s.producers.Add(producerWorker)
	return nil
}

// Flush moves every entry currently in the remote ring into the local
// list in one pass (spec.md §4.11, "flush() moves everything in the ring
// into the local list in one pass"). Only the home worker may call this.
func (s *Squad) Flush() int {
	drained := s.remote.PopFront(int(s.remote.Capacity()))
	s.local.PushBackAll(drained)
	return len(drained)
}

// DrainAll flushes remote entries and returns every task now queued
// locally, in FIFO order, for the spawn-and-redispatch task
// (spec.md §4.11, "that task flushes and re-dispatches each task").
func (s *Squad) DrainAll() []task.Task {
	s.Flush()
	return s.local.PopFront(s.local.Len())
}

// ProducerCount returns the number of distinct remote workers that have
// pushed into this squad.
func (s *Squad) ProducerCount() int { return s.producers.Cardinality() }

// Len returns the number of tasks queued locally, not counting anything
// still sitting in the remote ring awaiting a Flush.
func (s *Squad) Len() int { return s.local.Len() }

// spawnTask is the one-shot SpawnSquadTask spec.md §4.11 describes: it
// flushes the squad, drains every queued task, and re-dispatches them via
// redispatch, with destination=local on the first element.
type spawnTask struct {
	ann        task.Annotation
	squad      *Squad
	redispatch func(t task.Task, forceLocal bool)
}

// NewSpawnTask returns the one-shot task that, when executed on the
// squad's home worker, flushes and re-dispatches every queued task. Its
// destination targets the home worker directly (task.Worker), not the
// squad's own Batched resource — routing it through the squad again
// would just re-enqueue it instead of draining it.
func NewSpawnTask(s *Squad, redispatch func(t task.Task, forceLocal bool)) task.Task {
	return &spawnTask{
		ann:        task.Annotation{Destination: task.Worker(s.home.WorkerID())},
		squad:      s,
		redispatch: redispatch,
	}
}

func (t *spawnTask) Execute(uint16) task.Result {
	tasks := t.squad.DrainAll()
	for i, next := range tasks {
		t.redispatch(next, i == 0)
	}
	return task.Done()
}

func (t *spawnTask) Annotation() *task.Annotation { return &t.ann }
func (t *spawnTask) TraceID() uint64              { return 0 }
