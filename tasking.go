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

// Package tasking is the runtime façade: it wires topology, pools,
// buffers, the epoch manager and the scheduler into a set of pinned
// workers, and exposes the public init/spawn/new_resource/start_and_wait
// surface described by spec.md §4.15.
//
// Unlike the original's process-wide singleton, Init returns an
// independent *Runtime value: re-initialization between a Stop and the
// next StartAndWait falls out naturally from constructing a fresh value
// instead of requiring explicit singleton teardown bookkeeping, and
// tests can run more than one Runtime in the same process.
package tasking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/mxtasking/tasking/buffer"
	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/epoch"
	"github.com/mxtasking/tasking/logx"
	"github.com/mxtasking/tasking/metricsx"
	"github.com/mxtasking/tasking/pool"
	"github.com/mxtasking/tasking/prefetch"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/sampler"
	"github.com/mxtasking/tasking/scheduler"
	"github.com/mxtasking/tasking/squad"
	"github.com/mxtasking/tasking/task"
	"github.com/mxtasking/tasking/topology"
	"github.com/mxtasking/tasking/worker"
)

// reclaimTick is how often the periodic reclamation goroutine advances
// the global epoch and sweeps retire lists under
// config.UpdateEpochPeriodically (spec.md §4.8).
const reclaimTick = time.Millisecond

// Runtime is a constructed, not-yet-started (or previously stopped)
// tasking runtime: a fixed worker pool, its shared registry and epoch
// manager, and the scheduler dispatching across them (spec.md §4.15).
type Runtime struct {
	cfg      config.Config
	cores    *topology.CoreSet
	registry *resourceptr.Registry
	epochMgr *epoch.Manager
	sched    *scheduler.Scheduler
	workers  []*worker.Worker

	running uint32

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once

	reclaimStop chan struct{}
	reclaimDone chan struct{}
}

// Init validates cfg, calibrates GOMAXPROCS to the container/cgroup CPU
// quota, and builds the full worker/pool/buffer/scheduler graph over
// cores, without starting any worker goroutines
// (spec.md §4.15 "init(cores, prefetch_distance, use_system_allocator)").
func Init(cores *topology.CoreSet, cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "tasking: invalid config")
	}
	if cores == nil || cores.Len() == 0 {
		return nil, errors.New("tasking: core set must not be empty")
	}
	if cores.Len() > int(cfg.MaxWorkers) {
		return nil, errors.Errorf("tasking: core set has %d cores, exceeds max_workers %d", cores.Len(), cfg.MaxWorkers)
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logx.Debug("tasking: automaxprocs", "msg", fmt.Sprintf(format, args...))
	})); err != nil {
		logx.Warn("tasking: automaxprocs calibration failed, continuing with runtime default", "err", err)
	}

	registry := resourceptr.NewRegistry()
	epochMgr := epoch.NewManager(cfg.ReclamationMode, cores.Len(), registry)

	rt := &Runtime{cfg: cfg, cores: cores, registry: registry, epochMgr: epochMgr}

	// spawn forwards through rt.sched, assigned below once the scheduler
	// exists, and intercepts the stop-runtime sentinel
	// (spec.md §4.2, "A special 'stop runtime' result is constructed by
	// submitting a StopTask as successor") instead of dispatching it like
	// an ordinary task. Safe because no worker goroutine runs before
	// StartAndWait, by which point rt is fully populated.
	spawn := func(t task.Task, localWorker uint16) {
		if task.IsStop(t) {
			rt.Stop(false)
			return
		}
		rt.sched.Dispatch(t, localWorker)
	}

	workers := make([]*worker.Worker, cores.Len())
	for id := 0; id < cores.Len(); id++ {
		core, _ := cores.Core(id)
		shardCount, startIndex := shardLayout(cfg, cores, id)

		p := pool.New(cfg.QueueBackend, shardCount, startIndex, cfg.NUMAMPSCCapacity, cfg.NUMAMPSCCapacity)
		buf := buffer.New(cfg.TaskBufferSize, newPrefetchPipeline(cfg)).WithMetrics(fmt.Sprintf("worker/%d/buffer_fill", id))
		smp := sampler.New(cfg.SamplePeriod, cfg.SamplerCacheCapacity)

		workers[id] = worker.New(uint16(id), core, p, buf, registry, epochMgr, smp, cfg.ReclamationMode, cfg.WorkerMode, cfg.BackupStackDepth, spawn)
	}
	rt.workers = workers
	rt.sched = scheduler.New(workers, cores, cfg.GlobalMPSCCapacity, cfg.GlobalMPSCCapacity)

	return rt, nil
}

// shardLayout returns the remote-shard count and this worker's own index
// into that shard space, per cfg.QueueBackend (spec.md §4.4, §4.15).
func shardLayout(cfg config.Config, cores *topology.CoreSet, workerID int) (shardCount, startIndex int) {
	switch cfg.QueueBackend {
	case config.Single:
		return 1, 0
	case config.WorkerLocal:
		return cores.Len(), workerID
	default: // NUMALocal
		n := cores.CountNUMANodes()
		if n < 1 {
			n = 1
		}
		return n, int(cores.NUMAOf(workerID))
	}
}

// newPrefetchPipeline selects a worker's prefetch.Pipeline mode from
// cfg.PrefetchDistance (spec.md §4.6, §4.15).
func newPrefetchPipeline(cfg config.Config) *prefetch.Pipeline {
	switch {
	case cfg.PrefetchDistance == 0:
		return prefetch.NewDisabled()
	case cfg.PrefetchDistance < 0:
		return prefetch.NewAutomatic(cfg.LatencyPerPrefetchedLineCycles)
	default:
		return prefetch.NewFixed(uint8(cfg.PrefetchDistance))
	}
}

// WorkerCount returns the number of pinned workers this runtime manages.
func (rt *Runtime) WorkerCount() int { return len(rt.workers) }

// Cores returns the core set the runtime was built over.
func (rt *Runtime) Cores() *topology.CoreSet { return rt.cores }

// Registry exposes the shared resource registry, for callers that need
// to resolve a ResourcePtr themselves outside of a task's own dispatch
// (tests, diagnostics).
func (rt *Runtime) Registry() *resourceptr.Registry { return rt.registry }

// Worker returns the worker by id, for tests that want to poke at a
// specific pool directly.
func (rt *Runtime) Worker(id uint16) *worker.Worker { return rt.workers[id] }

// Spawn dispatches t, pretending the call originates on localWorker, and
// returns the worker id it landed on (spec.md §4.15 "spawn(task)",
// "spawn(task, local_worker)").
func (rt *Runtime) Spawn(t task.Task, localWorker uint16) uint16 {
	return rt.sched.Dispatch(t, localWorker)
}

// SpawnAll dispatches tasks in order, as if from localWorker
// (spec.md §4.15 "spawn(first, last, local_worker)").
func (rt *Runtime) SpawnAll(tasks []task.Task, localWorker uint16) {
	for _, t := range tasks {
		rt.sched.Dispatch(t, localWorker)
	}
}

// RegisterSquad makes sq reachable by tasks annotated ForResource(sq.Home()).
func (rt *Runtime) RegisterSquad(sq *squad.Squad) {
	rt.sched.RegisterSquad(sq)
}

// SpawnSquad enqueues sq's one-shot drain-and-redispatch task on its home
// worker (spec.md §4.15 "spawn(squad, local_worker, boundness)").
func (rt *Runtime) SpawnSquad(sq *squad.Squad, localWorker uint16, boundness task.Boundness) uint16 {
	return rt.sched.SpawnSquad(sq, localWorker, boundness)
}

// pickHomeWorker selects the worker with the lowest occupancy-prediction
// vector, compared lexicographically excessive/high/normal
// (spec.md §4.13).
func (rt *Runtime) pickHomeWorker() uint16 {
	best := uint16(0)
	bestSnap := rt.workers[0].Pool().PredictedUsage()
	for i := 1; i < len(rt.workers); i++ {
		snap := rt.workers[i].Pool().PredictedUsage()
		if snap.Less(bestSnap) {
			bestSnap = snap
			best = uint16(i)
		}
	}
	return best
}

// NewResource homes value on the least-loaded worker for freq, installs
// it in the registry, and returns the packed ResourcePtr dispatched
// tasks address it by (spec.md §4.15 "new_resource<T>(size, annotation,
// args...)", §4.13 assignment policy).
func NewResource[T any](rt *Runtime, value *T, freq resourceptr.Frequency, primitive resourceptr.Primitive) resourceptr.Ptr {
	home := rt.pickHomeWorker()
	addr := rt.registry.Reserve()
	rt.registry.Install(addr, value, freq)
	rt.workers[home].Pool().PredictUsage(freq)
	metricsx.Counter("tasking/resource/created").Inc(1)
	return resourceptr.Make(addr, home, primitive, 0)
}

// DeleteResource revokes ptr's occupancy prediction from its home worker
// and retires its registry slot through the epoch manager, tagged with
// workerID as the retiring worker (spec.md §4.15 "delete_resource<T>(ptr):
// destructor + retire via epoch manager").
func DeleteResource(rt *Runtime, ptr resourceptr.Ptr, workerID uint16) {
	addr := ptr.Address()
	if freq, ok := rt.registry.Frequency(addr); ok {
		rt.workers[ptr.WorkerID()].Pool().Revoke(freq)
	}
	rt.epochMgr.Retire(int(workerID), addr)
	metricsx.Counter("tasking/resource/deleted").Inc(1)
}

// Allocator is the fixed-size construction/release pair new_task<T> and
// delete_task<T> resolve to, backed either by a per-type slab (the
// default) or the system allocator (spec.md §4.15).
type Allocator[T any] interface {
	New() *T
	Release(*T)
}

// NewAllocator returns the Allocator[T] selected by
// cfg.UseSystemAllocator (spec.md §4.15 init()'s "use_system_allocator").
// Each call returns a new allocator; slabs are not shared between calls.
func NewAllocator[T any](rt *Runtime) Allocator[T] {
	if rt.cfg.UseSystemAllocator {
		return task.SystemAllocator[T]{}
	}
	return task.NewSlab[T]()
}

// StartAndWait spawns one pinned goroutine per worker (and, under
// UpdateEpochPeriodically, a reclamation goroutine), then blocks until
// Stop is called and every worker goroutine has returned
// (spec.md §4.15 "start_and_wait()"). It is an error to call
// StartAndWait while the runtime is already running.
func (rt *Runtime) StartAndWait() error {
	rt.mu.Lock()
	if rt.started {
		rt.mu.Unlock()
		return errors.New("tasking: runtime already running")
	}
	rt.started = true
	rt.stopOnce = sync.Once{}
	atomic.StoreUint32(&rt.running, 1)
	if rt.cfg.ReclamationMode == config.UpdateEpochPeriodically {
		rt.reclaimStop = make(chan struct{})
		rt.reclaimDone = make(chan struct{})
	}
	rt.mu.Unlock()

	group, _ := errgroup.WithContext(context.Background())
	for _, w := range rt.workers {
		w := w
		group.Go(func() error {
			w.Run(&rt.running)
			return nil
		})
	}
	if rt.reclaimStop != nil {
		group.Go(func() error {
			rt.reclaimLoop()
			return nil
		})
	}

	logx.Info("tasking: runtime started", "workers", len(rt.workers), "reclamation", rt.cfg.ReclamationMode.String())
	err := group.Wait()

	rt.mu.Lock()
	rt.started = false
	rt.mu.Unlock()
	return err
}

// reclaimLoop periodically bumps the global epoch and sweeps every
// worker's retire list, until Stop closes reclaimStop, at which point it
// flushes every pending retirement unconditionally before returning
// (spec.md §4.8 "On runtime shutdown, all retire lists are flushed").
func (rt *Runtime) reclaimLoop() {
	ticker := time.NewTicker(reclaimTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rt.epochMgr.AdvanceGlobal()
			rt.epochMgr.Reclaim()
		case <-rt.reclaimStop:
			rt.epochMgr.FlushAll()
			close(rt.reclaimDone)
			return
		}
	}
}

// Stop clears the running flag; each worker exits after finishing its
// current task, and the reclamation goroutine (if any) flushes retire
// lists before StartAndWait returns (spec.md §4.15 "stop(stop_network)").
// stopNetwork is accepted for interface parity with the original's
// network-server collaborator (§6); this core has no network surface to
// stop.
func (rt *Runtime) Stop(stopNetwork bool) {
	rt.stopOnce.Do(func() {
		logx.Info("tasking: stop requested", "stop_network", stopNetwork)
		atomic.StoreUint32(&rt.running, 0)
		if rt.reclaimStop != nil {
			close(rt.reclaimStop)
		}
	})
}
