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

package latch

import (
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/syncobj"
	"github.com/mxtasking/tasking/task"
)

// Dispatch wraps exec according to primitive, the table in spec.md §4.9.
// resource is the user's registered object, type-asserted against the
// syncobj contracts; a resource that doesn't implement the contract a
// primitive requires is a caller configuration error and falls through to
// calling exec directly. backup/restore save and roll back the task's own
// state around an optimistic retry (spec.md §4.10, wired by the worker
// loop through a backup.Stack).
func Dispatch(
	primitive resourceptr.Primitive,
	resource interface{},
	intent task.AccessIntent,
	currentWorker uint16,
	exec func() task.Result,
	backup func(),
	restore func(),
) task.Result {
	switch primitive {
	case resourceptr.None, resourceptr.ScheduleAll, resourceptr.Batched:
		// No wrapper: ScheduleAll/Batched rely on the scheduler routing
		// every access to the resource's home worker for serialization
		// (spec.md §4.9).
		return exec()

	case resourceptr.ExclusiveLatch:
		if ex, ok := resource.(syncobj.Exclusive); ok {
			ex.Lock()
			defer ex.Unlock()
		}
		return exec()

	case resourceptr.ReaderWriterLatch:
		if rw, ok := resource.(syncobj.ReaderWriter); ok {
			if intent == task.Read {
				rw.RLock()
				defer rw.RUnlock()
			} else {
				rw.Lock()
				defer rw.Unlock()
			}
		}
		return exec()

	case resourceptr.ScheduleWriter:
		return dispatchScheduleWriter(resource, intent, currentWorker, exec, backup, restore)

	case resourceptr.OLFIT:
		return dispatchOLFIT(resource, intent, exec, backup, restore)

	case resourceptr.RestrictedTransactionalMemory:
		// No hardware transactional memory intrinsic exists in Go; per
		// spec.md §4.9 the abort-fallback policy is explicitly "out of
		// scope here; treat as serial", so every call serializes through
		// an exclusive latch if the resource carries one.
		if ex, ok := resource.(syncobj.Exclusive); ok {
			ex.Lock()
			defer ex.Unlock()
		}
		return exec()

	default:
		return exec()
	}
}

func dispatchScheduleWriter(resource interface{}, intent task.AccessIntent, currentWorker uint16, exec func() task.Result, backup, restore func()) task.Result {
	if intent == task.Read {
		if home, ok := resource.(syncobj.HomeAware); ok && home.HomeWorkerID() == currentWorker {
			return exec() // writer-exclusion by home serialization
		}
		if ver, ok := resource.(syncobj.Versioned); ok {
			return optimisticExecResult(ver, exec, backup, restore)
		}
		return exec()
	}
	// Writer path.
	if ver, ok := resource.(syncobj.Versioned); ok {
		ver.BeginWrite()
		defer ver.EndWrite()
	}
	return exec()
}

func dispatchOLFIT(resource interface{}, intent task.AccessIntent, exec func() task.Result, backup, restore func()) task.Result {
	ver, hasVersion := resource.(syncobj.Versioned)
	if !hasVersion {
		return exec()
	}
	if intent == task.Read {
		return optimisticExecResult(ver, exec, backup, restore)
	}
	for !ver.TryBeginWrite() {
	}
	defer ver.EndWrite()
	return exec()
}

// optimisticExecResult adapts optimisticRead's interface{} result back to
// task.Result without an extra type assertion at every call site.
func optimisticExecResult(ver syncobj.Versioned, exec func() task.Result, backup, restore func()) task.Result {
	result := optimisticRead(ver, func() interface{} { return exec() }, backup, restore)
	return result.(task.Result)
}
