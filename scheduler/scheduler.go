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

// Package scheduler implements the dispatch façade: resolving a task's
// annotation into a concrete worker (or the shared queue) and pushing it
// there, honoring the SMT boundness remap and the squad short-circuit
// (spec.md §4.14).
package scheduler

import (
	"sync"

	"github.com/mxtasking/tasking/logx"
	"github.com/mxtasking/tasking/metricsx"
	"github.com/mxtasking/tasking/queue"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/squad"
	"github.com/mxtasking/tasking/task"
	"github.com/mxtasking/tasking/topology"
	"github.com/mxtasking/tasking/worker"
)

// Scheduler is the dispatch façade sitting between a worker's successor
// routing / a task squad's spawn and the target worker's task pool.
type Scheduler struct {
	workers []*worker.Worker
	cores   *topology.CoreSet // nil disables SMT boundness remap and NUMA routing
	shared  *queue.Priority   // execution_destination=anywhere sink (spec.md §4.14 rule 6)
	load    *LoadEstimate

	squadsMu sync.RWMutex
	squads   map[resourceptr.Ptr]*squad.Squad
}

// New builds a Scheduler over workers (indexed by worker id) and wires
// each worker's pool to a freshly created shared "anywhere" queue sized
// sharedCapacityNormal/sharedCapacityLow. cores may be nil, in which case
// boundness remap and NUMA-targeted dispatch both degrade to routing on
// the worker id alone (spec.md §4.14 "without SMT pairing, target =
// resource.home").
func New(workers []*worker.Worker, cores *topology.CoreSet, sharedCapacityNormal, sharedCapacityLow uint32) *Scheduler {
	shared := queue.NewPriorityFrom(
		queue.WrapMPSC(queue.NewMPSC(sharedCapacityNormal)),
		queue.WrapMPSC(queue.NewMPSC(sharedCapacityLow)),
	)
	s := &Scheduler{
		workers: workers,
		cores:   cores,
		shared:  shared,
		load:    NewLoadEstimate(len(workers)),
		squads:  make(map[resourceptr.Ptr]*squad.Squad),
	}
	for _, w := range workers {
		w.Pool().SetShared(shared)
	}
	return s
}

// RegisterSquad makes sq reachable from Dispatch under its own home Ptr,
// so that tasks annotated ForResource(sq.Home()) route into it instead of
// being executed directly (spec.md §4.11, §4.14 rule 1).
func (s *Scheduler) RegisterSquad(sq *squad.Squad) {
	s.squadsMu.Lock()
	defer s.squadsMu.Unlock()
	s.squads[sq.Home()] = sq
}

func (s *Scheduler) squadFor(ptr resourceptr.Ptr) (*squad.Squad, bool) {
	s.squadsMu.RLock()
	defer s.squadsMu.RUnlock()
	sq, ok := s.squads[ptr]
	return sq, ok
}

// SpawnSquad enqueues the one-shot SpawnSquadTask for sq, routed directly
// to its home worker (boundness remapped per spec.md §4.14 rule 3, since
// the spawn task's destination is a plain worker id), to be executed the
// next time that worker reaches it (spec.md §4.11 "spawning a squad
// enqueues a special SpawnSquadTask", §4.15 "spawn(squad, local_worker,
// boundness)").
func (s *Scheduler) SpawnSquad(sq *squad.Squad, localWorker uint16, boundness task.Boundness) uint16 {
	redispatch := func(t task.Task, forceLocal bool) {
		if forceLocal {
			t.Annotation().Destination = task.Local()
			s.Dispatch(t, sq.Home().WorkerID())
			return
		}
		s.Dispatch(t, sq.Home().WorkerID())
	}
	spawnTask := squad.NewSpawnTask(sq, redispatch)
	spawnTask.Annotation().Boundness = boundness
	return s.Dispatch(spawnTask, localWorker)
}

// Dispatch routes t according to its annotation's destination precedence
// and returns the worker id it landed on (spec.md §4.14).
func (s *Scheduler) Dispatch(t task.Task, localWorker uint16) uint16 {
	ann := t.Annotation()
	dest := ann.Destination

	if dest.Kind == task.DestResource && !dest.Resource.IsZero() && dest.Resource.Primitive() == resourceptr.Batched {
		metricsx.Counter("scheduler/dispatch/squad").Inc(1)
		return s.dispatchToSquad(t, dest.Resource, localWorker)
	}

	if dest.Kind == task.DestResource && !dest.Resource.IsZero() {
		metricsx.Counter("scheduler/dispatch/resource").Inc(1)
		primitive := dest.Resource.Primitive()
		target := s.boundAware(dest.Resource.WorkerID(), ann.Boundness)
		preferLocal := target == localWorker ||
			primitive == resourceptr.None ||
			nonSerializingRead(primitive, ann.AccessIntent)
		return s.route(t, target, localWorker, preferLocal)
	}

	if dest.Kind == task.DestWorker {
		metricsx.Counter("scheduler/dispatch/worker_id").Inc(1)
		target := s.boundAware(dest.WorkerID, ann.Boundness)
		return s.route(t, target, localWorker, target == localWorker)
	}

	if dest.Kind == task.DestNUMANode {
		metricsx.Counter("scheduler/dispatch/numa_node").Inc(1)
		target := s.pickNUMAWorker(dest.NUMANode, localWorker)
		return s.route(t, target, localWorker, target == localWorker)
	}

	if dest.Kind == task.DestLocal {
		metricsx.Counter("scheduler/dispatch/local").Inc(1)
		target := s.boundAware(localWorker, ann.Boundness)
		return s.route(t, target, localWorker, true)
	}

	// DestAnywhere and DestNone both fall through to the shared queue
	// (spec.md §4.2 "destination carries no hint... treated the same as
	// anywhere").
	metricsx.Counter("scheduler/dispatch/anywhere").Inc(1)
	return s.dispatchShared(t, localWorker)
}

// dispatchToSquad implements rule 1: a Batched resource routes straight
// into its squad's local or remote queue, bypassing ordinary worker pools
// entirely.
func (s *Scheduler) dispatchToSquad(t task.Task, ptr resourceptr.Ptr, localWorker uint16) uint16 {
	home := ptr.WorkerID()
	sq, ok := s.squadFor(ptr)
	if !ok {
		logx.Warn("scheduler: no squad registered for resource, dropping onto home worker instead", "resource", ptr.String())
		return s.route(t, home, localWorker, home == localWorker)
	}
	if home == localWorker {
		sq.PushLocal(t)
		return home
	}
	if err := sq.PushRemote(t, localWorker); err != nil {
		logx.Warn("scheduler: squad remote ring full, task dropped", "resource", ptr.String(), "err", err)
	}
	return home
}

// nonSerializingRead reports whether a read under primitive needs no
// home-worker routing at all, because its synchronization scheme lets any
// worker execute it safely (spec.md §4.14 rule 2, "task is read-only
// under a primitive where readers don't serialize"). The unconditional
// "primitive is None" case from the same rule is handled by the caller.
func nonSerializingRead(primitive resourceptr.Primitive, intent task.AccessIntent) bool {
	if intent != task.Read {
		return false
	}
	switch primitive {
	case resourceptr.ScheduleWriter, resourceptr.OLFIT, resourceptr.ReaderWriterLatch:
		return true
	default:
		return false
	}
}

// route pushes t either onto localWorker's own local queue (preferLocal)
// or onto target's remote shard, tagging localWorker as the producer
// (spec.md §4.14, "push to remote with producer's NUMA/worker tagged").
func (s *Scheduler) route(t task.Task, target, localWorker uint16, preferLocal bool) uint16 {
	if preferLocal {
		s.pushLocal(localWorker, t)
		return localWorker
	}
	if int(target) >= len(s.workers) {
		target = 0
	}
	numa := s.numaOf(localWorker)
	if err := s.workers[target].Pool().PushBackRemote(t, numa, localWorker); err != nil {
		logx.Warn("scheduler: remote push failed", "target", target, "err", err)
	} else {
		s.load.Inc(target)
	}
	return target
}

func (s *Scheduler) pushLocal(worker uint16, t task.Task) {
	if int(worker) >= len(s.workers) {
		logx.Warn("scheduler: local push targets unknown worker, dropping", "worker", worker)
		return
	}
	s.workers[worker].Pool().PushBackLocal(t)
	s.load.Inc(worker)
}

// dispatchShared pushes t onto the process-wide anywhere queue, the Go
// analogue of the original's shared_task_queue (SPEC_FULL.md
// "shared_task_queue.h"), returning localWorker as the nominal target
// since no specific worker owns the push.
func (s *Scheduler) dispatchShared(t task.Task, localWorker uint16) uint16 {
	s.shared.PushBack(t)
	return localWorker
}

// boundAware applies the SMT boundness remap: on a worker whose logical
// core has a sibling sharing the same physical core, memory-bound tasks
// route to the sibling doing memory-bound work and compute-bound tasks to
// the one doing compute-bound work; mixed (or no sibling) keeps home
// (spec.md §4.14 rule 2). The non-SMT thread of a pair is treated as the
// compute-bound half, its SMT thread as the memory-bound half, matching
// the common practice of dedicating the hyperthread to prefetch/memory
// work while the primary thread computes.
func (s *Scheduler) boundAware(home uint16, boundness task.Boundness) uint16 {
	if s.cores == nil || boundness == task.Mixed {
		return home
	}
	sibling, ok := s.cores.SiblingOf(int(home))
	if !ok {
		return home
	}
	homeCore, _ := s.cores.Core(int(home))
	siblingCore, _ := s.cores.Core(sibling)

	computeWorker, memoryWorker := int(home), sibling
	if homeCore.IsSMT && !siblingCore.IsSMT {
		computeWorker, memoryWorker = sibling, int(home)
	}
	switch boundness {
	case task.Memory:
		return uint16(memoryWorker)
	case task.Compute:
		return uint16(computeWorker)
	default:
		return home
	}
}

// pickNUMAWorker returns the least-loaded worker homed on node, or
// localWorker unchanged if no topology was supplied or node has no
// workers (spec.md §4.14 rule 4).
func (s *Scheduler) pickNUMAWorker(node uint8, localWorker uint16) uint16 {
	if s.cores == nil {
		return localWorker
	}
	candidates := s.cores.WorkersOnNUMA(node)
	if len(candidates) == 0 {
		return localWorker
	}
	best := candidates[0]
	bestLoad := s.load.Get(uint16(best))
	for _, c := range candidates[1:] {
		if l := s.load.Get(uint16(c)); l < bestLoad {
			best, bestLoad = c, l
		}
	}
	return uint16(best)
}

func (s *Scheduler) numaOf(workerID uint16) uint8 {
	if s.cores == nil {
		return 0
	}
	return s.cores.NUMAOf(int(workerID))
}

// Shared exposes the anywhere queue as a buffer.Source, for tests and for
// a drain-on-idle sweep outside the ordinary per-worker pool path.
func (s *Scheduler) Shared() *queue.Priority { return s.shared }

