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

// Package pool implements the per-worker task pool: one local SPSC queue
// only the owning worker touches, and one or more remote MPSC queues fed
// by other workers, fanned in according to config.QueueBackend
// (spec.md §3 "Task pool", §4.4).
package pool

import (
	"github.com/pkg/errors"

	"github.com/mxtasking/tasking/buffer"
	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/queue"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/task"
)

// shard is one remote queue's two priority tiers.
type shard struct {
	normal, low *queue.MPSC
}

// Pool is a single worker's task pool.
type Pool struct {
	backend config.QueueBackend
	local   *queue.Priority // SPSC-backed, owner-only
	remotes []shard
	// startIndex is the remote shard index drained first, before
	// round-robining through the rest (spec.md §4.4 "start with the
	// producer's own NUMA shard" / "round-robin starting at the owner's
	// own id").
	startIndex int

	occupancy resourceptr.Occupancy

	// shared is the process-wide execution_destination=anywhere sink
	// (spec.md §4.14 rule 6); nil until the scheduler wires one in.
	shared buffer.Source
}

// New builds a Pool. remoteShardCount is the number of remote queues
// (NUMA domain count for NUMALocal, remote-worker count for WorkerLocal,
// 1 for Single). startIndex is this worker's own index into the shard
// space (its NUMA node id, or its worker id), used to seed drain order.
func New(backend config.QueueBackend, remoteShardCount int, startIndex int, remoteCapacityNormal, remoteCapacityLow uint32) *Pool {
	if remoteShardCount < 1 {
		remoteShardCount = 1
	}
	remotes := make([]shard, remoteShardCount)
	for i := range remotes {
		remotes[i] = shard{
			normal: queue.NewMPSC(remoteCapacityNormal),
			low:    queue.NewMPSC(remoteCapacityLow),
		}
	}
	return &Pool{
		backend:    backend,
		local:      queue.NewPrioritySPSC(),
		remotes:    remotes,
		startIndex: startIndex % remoteShardCount,
	}
}

// PushBackLocal enqueues t on the local queue. Must only be called by the
// pool's owning worker (spec.md §4.4 invariant).
func (p *Pool) PushBackLocal(t task.Task) {
	p.local.PushBack(t)
}

// PushBackLocalBatch enqueues a pre-ordered batch on the local queue in
// order, the Go analogue of push_back_local(first, last).
func (p *Pool) PushBackLocalBatch(tasks []task.Task) {
	for _, t := range tasks {
		p.local.PushBack(t)
	}
}

// shardIndex resolves which remote shard a producer's push lands on.
func (p *Pool) shardIndex(producerNUMA uint8, producerWorkerID uint16) int {
	switch p.backend {
	case config.Single:
		return 0
	case config.WorkerLocal:
		return int(producerWorkerID) % len(p.remotes)
	default: // NUMALocal
		return int(producerNUMA) % len(p.remotes)
	}
}

// PushBackRemote enqueues t on the remote shard selected by the
// producer's NUMA node and worker id, tiered by t's own priority
// (spec.md §4.4 "producer-context-aware routing").
func (p *Pool) PushBackRemote(t task.Task, producerNUMA uint8, producerWorkerID uint16) error {
	s := p.remotes[p.shardIndex(producerNUMA, producerWorkerID)]
	var err error
	if t.Annotation().Priority == task.Low {
		err = s.low.Push(t)
	} else {
		err = s.normal.Push(t)
	}
	if err != nil {
		return errors.Wrap(err, "pool: push_back_remote")
	}
	return nil
}

// roundRobinDrain is a buffer.Source pulling from the local queue first,
// then each remote shard starting at startIndex and wrapping around
// (spec.md §4.4 drain order).
type roundRobinDrain struct {
	pool   *Pool
	picker func(shard) *queue.MPSC // selects normal or low tier from a shard
	local  func(*queue.Priority) queue.Backing
}

func (d roundRobinDrain) Drain(n int) []task.Task {
	out := d.local(d.pool.local).PopFront(n)
	if len(out) >= n {
		return out
	}
	count := len(d.pool.remotes)
	for i := 0; i < count && len(out) < n; i++ {
		idx := (d.pool.startIndex + i) % count
		ring := d.picker(d.pool.remotes[idx])
		out = append(out, ring.PopFront(n-len(out))...)
	}
	return out
}

func normalTier(s shard) *queue.MPSC  { return s.normal }
func lowTier(s shard) *queue.MPSC     { return s.low }
func localNormal(p *queue.Priority) queue.Backing { return p.Normal() }
func localLow(p *queue.Priority) queue.Backing    { return p.Low() }

// Withdraw drains at most buf.AvailableSlots() tasks into buf, normal
// priority first across local-then-remote queues, falling back to low
// priority only if the normal pass filled nothing at all
// (spec.md §4.4 withdraw).
func (p *Pool) Withdraw(buf *buffer.Buffer, sampled func(traceID uint64) (uint32, bool)) int {
	max := buf.AvailableSlots()
	if max == 0 {
		return 0
	}
	filled := buf.Fill(roundRobinDrain{pool: p, picker: normalTier, local: localNormal}, max, sampled)
	if filled == 0 {
		filled = buf.Fill(roundRobinDrain{pool: p, picker: lowTier, local: localLow}, max, sampled)
	}
	if filled == 0 && p.shared != nil {
		filled = buf.Fill(p.shared, max, sampled)
	}
	return filled
}

// SetShared wires the scheduler's global "anywhere" queue as this pool's
// last-resort drain source, consulted only once both the local queue and
// every remote shard have come up empty (spec.md §4.14 rule 6).
func (p *Pool) SetShared(s buffer.Source) { p.shared = s }

// PredictUsage increments the occupancy counter for freq, called when a
// resource is homed to this worker (spec.md §4.4, §4.13).
func (p *Pool) PredictUsage(freq resourceptr.Frequency) { p.occupancy.Predict(freq) }

// Revoke decrements the occupancy counter for freq.
func (p *Pool) Revoke(freq resourceptr.Frequency) { p.occupancy.Revoke(freq) }

// PredictedUsage returns a snapshot of this pool's occupancy vector.
func (p *Pool) PredictedUsage() resourceptr.Snapshot { return p.occupancy.Snapshot() }

// HasExcessiveUsagePrediction reports whether any excessive-frequency
// resource is homed here.
func (p *Pool) HasExcessiveUsagePrediction() bool { return p.occupancy.HasExcessive() }

// Len reports the total number of queued tasks across local and remote
// queues, for telemetry.
func (p *Pool) Len() int {
	n := p.local.Len()
	for _, s := range p.remotes {
		n += s.normal.Len() + s.low.Len()
	}
	return n
}
