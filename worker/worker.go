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

// Package worker implements the pinned per-worker loop: withdraw from the
// pool into the buffer, issue prefetches, dispatch through the
// synchronization wrapper, and route successors (spec.md §4.12).
package worker

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/mxtasking/tasking/backup"
	"github.com/mxtasking/tasking/buffer"
	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/epoch"
	"github.com/mxtasking/tasking/latch"
	"github.com/mxtasking/tasking/logx"
	"github.com/mxtasking/tasking/metricsx"
	"github.com/mxtasking/tasking/pool"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/sampler"
	"github.com/mxtasking/tasking/task"
	"github.com/mxtasking/tasking/topology"
)

// Spawn is how a worker routes a task's successor and, on shutdown, stop
// sentinels: implemented by the scheduler façade (spec.md §4.12 step e,
// §4.14).
type Spawn func(t task.Task, localWorker uint16)

// Tracer optionally receives one call per executed task, after dispatch,
// with the worker id, the task's trace id and its annotated Cycles hint
// (not a measured duration), the Go analogue of
// original_source/src/mx/tasking/profiling/task_tracer.h; nil disables
// tracing entirely with no overhead beyond the nil check.
type Tracer interface {
	Trace(workerID uint16, traceID uint64, cycles uint32)
}

// Worker owns one pinned OS thread, its task pool, its task buffer, and
// the per-worker bookkeeping (local epoch, backup stack, sampler) spec.md
// §3's "Worker identity" and §4.12 describe.
type Worker struct {
	id   uint16
	core topology.Core

	pool   *pool.Pool
	buf    *buffer.Buffer
	sample *sampler.Sampler

	registry *resourceptr.Registry
	epochMgr *epoch.Manager
	backups  *backup.Stack[interface{}]

	reclaim config.ReclamationMode
	mode    config.WorkerMode

	spawn  Spawn
	tracer Tracer

	taskCounter uint32

	executed gometricsCounter
	idle     gometricsCounter
}

// gometricsCounter is the narrow slice of rcrowley/go-metrics.Counter this
// package touches, kept as an interface so tests can stub it without
// importing the metrics library.
type gometricsCounter interface {
	Inc(int64)
}

// New builds a Worker. backupDepth sizes its optimistic-retry backup
// stack (spec.md §4.10); pass 0 to disable optimistic-retry backup
// support entirely (tasks implementing task.Restorable will simply not
// have their state saved/restored, relying on idempotent execution).
func New(id uint16, core topology.Core, p *pool.Pool, buf *buffer.Buffer, registry *resourceptr.Registry, epochMgr *epoch.Manager, smp *sampler.Sampler, reclaim config.ReclamationMode, mode config.WorkerMode, backupDepth int, spawn Spawn) *Worker {
	w := &Worker{
		id:       id,
		core:     core,
		pool:     p,
		buf:      buf,
		sample:   smp,
		registry: registry,
		epochMgr: epochMgr,
		backups:  backup.NewStack[interface{}](backupDepth),
		reclaim:  reclaim,
		mode:     mode,
		spawn:    spawn,
		executed: metricsx.Counter("worker/executed"),
		idle:     metricsx.Counter("worker/idle"),
	}
	return w
}

// WithTracer attaches a Tracer, returning w for chaining.
func (w *Worker) WithTracer(t Tracer) *Worker {
	w.tracer = t
	return w
}

// ID returns the worker's id.
func (w *Worker) ID() uint16 { return w.id }

// Pool returns the worker's task pool, the push target for annotations
// resolving to this worker (spec.md §4.14).
func (w *Worker) Pool() *pool.Pool { return w.pool }

// pin locks the calling goroutine to its OS thread and restricts that
// thread's scheduling affinity to the worker's assigned logical core
// (spec.md §4.12 step 1). Must be called from the goroutine that will run
// Run, before Run's main loop.
func (w *Worker) pin() error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(w.core.LogicalID)
	return unix.SchedSetaffinity(0, &set)
}

// Run pins the calling goroutine to this worker's core, spins until
// running becomes non-zero, then loops withdrawing and executing tasks
// until running returns to zero (spec.md §4.12). Intended to be the body
// of a dedicated goroutine; the caller must not reuse that goroutine for
// anything else.
func (w *Worker) Run(running *uint32) {
	if err := w.pin(); err != nil {
		logx.Warn("worker: failed to pin to core, continuing unpinned", "worker", w.id, "core", w.core.LogicalID, "err", err)
	}
	defer runtime.UnlockOSThread()

	tid := unix.Gettid()
	topology.SetCurrent(tid, int(w.id))
	defer topology.ClearCurrent(tid)

	for atomic.LoadUint32(running) == 0 {
		runtime.Gosched()
	}

	for atomic.LoadUint32(running) != 0 {
		w.runOnce(running)
	}

	if w.reclaim != config.None {
		w.epochMgr.LeaveEpoch(int(w.id))
	}
}

// runOnce executes one withdraw-then-drain cycle (spec.md §4.12 step 3).
func (w *Worker) runOnce(running *uint32) {
	if w.reclaim == config.UpdateEpochPeriodically {
		w.epochMgr.EnterEpoch(int(w.id))
	}

	filled := w.pool.Withdraw(w.buf, w.sampledCycles)
	if filled == 0 {
		w.idle.Inc(1)
	}
	for filled == 0 && atomic.LoadUint32(running) != 0 {
		builtinPause(w.mode)
		filled = w.pool.Withdraw(w.buf, w.sampledCycles)
	}
	if atomic.LoadUint32(running) == 0 {
		return
	}

	if w.reclaim == config.UpdateEpochPeriodically {
		w.epochMgr.EnterEpoch(int(w.id))
	}

	threshold := int(w.buf.RefillThreshold())
	toExecute := maxInt(filled-threshold, minInt(filled, threshold))

	prefetching := w.buf.RefillThreshold() > 0
	for i := 0; i < toExecute; i++ {
		w.executeOne(prefetching)
	}
}

// executeOne consumes the head buffer slot, issues its prefetch action
// (and a best-effort warm of the following slot's task descriptor),
// dispatches under the resource's synchronization primitive, and routes
// the result (spec.md §4.12 step e). On a sampled dispatch the value
// recorded into the sampler is the task's annotated Cycles; no cycle
// counter is read around Execute.
func (w *Worker) executeOne(prefetching bool) {
	slot, ok := w.buf.Next()
	if !ok {
		return
	}
	t := slot.Task

	if prefetching {
		if next, ok := w.buf.PeekHead(); ok && next.Task != nil {
			w.touchTaskDescriptor(next.Task)
		}
		if !slot.Prefetch.IsZero() {
			slot.Prefetch.Descriptor.Issue(slot.Prefetch.Address, w.touchMemory)
		}
	}

	w.taskCounter++
	isSampling := w.sample != nil && w.sample.ShouldSample()

	result := w.dispatch(t)

	if isSampling {
		w.sample.Record(t.TraceID(), t.Annotation().Cycles)
	}
	if w.tracer != nil {
		w.tracer.Trace(w.id, t.TraceID(), t.Annotation().Cycles)
	}

	w.executed.Inc(1)

	if result.Successor != nil {
		w.spawn(result.Successor, w.id)
	}
	if result.Remove {
		// The concrete task type owns its own slab; nothing generic to
		// release here beyond letting the garbage collector reclaim t
		// once the caller drops the last reference (spec.md §9 Design
		// Notes, Go substitutes GC-managed slab pooling for delete_task).
		_ = t
	}
}

// dispatch resolves the task's synchronization primitive from its
// annotated resource, if any, and routes Execute through latch.Dispatch
// (spec.md §4.9, §4.12).
func (w *Worker) dispatch(t task.Task) task.Result {
	ann := t.Annotation()
	primitive := resourceptr.None
	var resource interface{}
	if ann.Destination.Kind == task.DestResource && !ann.Destination.Resource.IsZero() {
		ptr := ann.Destination.Resource
		primitive = ptr.Primitive()
		if v, ok := resourceptr.Resolve[interface{}](w.registry, ptr); ok {
			resource = v
		}
	}

	if w.reclaim == config.UpdateEpochOnRead && ann.AccessIntent == task.Read &&
		(primitive == resourceptr.ScheduleWriter || primitive == resourceptr.OLFIT) {
		w.epochMgr.EnterEpoch(int(w.id))
		defer w.epochMgr.LeaveEpoch(int(w.id))
	}

	backupFn, restoreFn := w.backupHooks(t)
	return latch.Dispatch(primitive, resource, ann.AccessIntent, w.id, func() task.Result {
		return t.Execute(w.id)
	}, backupFn, restoreFn)
}

// backupHooks wires t's optional task.Restorable implementation onto this
// worker's private backup stack (spec.md §4.10).
func (w *Worker) backupHooks(t task.Task) (func(), func()) {
	r, ok := t.(task.Restorable)
	if !ok {
		return nil, nil
	}
	backupFn := func() {
		if err := w.backups.Backup(r.Snapshot()); err != nil {
			logx.Warn("worker: backup stack overflow", "worker", w.id, "err", err)
		}
	}
	restoreFn := func() {
		v, err := w.backups.Restore()
		if err != nil {
			logx.Warn("worker: backup stack underflow", "worker", w.id, "err", err)
			return
		}
		r.Restore(v)
	}
	return backupFn, restoreFn
}

// sampledCycles adapts this worker's sampler to the (traceID) -> (cycles,
// ok) signature buffer.Fill expects (spec.md §4.7's "fall back to
// annotation.cycles" handled inside buffer.cyclesOf when ok is false).
func (w *Worker) sampledCycles(traceID uint64) (uint32, bool) {
	if w.sample == nil {
		return 0, false
	}
	return w.sample.Estimate(traceID)
}

// touchTaskDescriptor performs a best-effort warm of the task's
// annotation, standing in for the hardware "prefetch the next task
// descriptor" step: Go tasks are heap objects behind interfaces with no
// stable address to issue a real cache-line prefetch against, so this
// dereferences the annotation (the part of the task every dispatch path
// reads first) to pull it into cache the ordinary way the CPU already
// would on first access.
func (w *Worker) touchTaskDescriptor(t task.Task) {
	_ = t.Annotation()
}

// touchMemory is the prefetch.Descriptor.Issue touch callback: address
// here is a resourceptr.Ptr-encoded registry index, not a raw pointer, so
// there is no byte range to read. The call is retained (and counted) so a
// future native-allocation backend (spec.md §9 Design Notes' "arena
// allocator" alternative) can slot in a real memory read without changing
// any call site.
func (w *Worker) touchMemory(_ uint64, _ uint64) {
	metricsx.MarkIf(metricsx.Meter("worker/prefetch_issued"), 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
