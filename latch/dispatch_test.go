package latch

import (
	"sync"
	"testing"

	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/task"
)

// counterResource embeds Exclusive and Version (not ReaderWriter
// simultaneously: both Exclusive and ReaderWriter declare Lock/Unlock, and
// embedding both would make the promoted method ambiguous and drop it
// from the method set entirely).
type counterResource struct {
	Exclusive
	Version
	home  uint16
	value int
}

func (c *counterResource) HomeWorkerID() uint16 { return c.home }

func incrementResult(c *counterResource) task.Result {
	c.value++
	return task.Done()
}

type rwResource struct {
	ReaderWriter
}

func TestDispatchNoneCallsDirect(t *testing.T) {
	r := Dispatch(resourceptr.None, nil, task.Write, 0, func() task.Result { return task.Done() }, nil, nil)
	if !r.Remove {
		t.Fatalf("Dispatch(None) result = %+v, want Remove=true", r)
	}
}

func TestDispatchExclusiveLatchSerializes(t *testing.T) {
	res := &counterResource{}
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			Dispatch(resourceptr.ExclusiveLatch, res, task.Write, 0, func() task.Result {
				return incrementResult(res)
			}, nil, nil)
		}()
	}
	wg.Wait()
	if res.value != n {
		t.Fatalf("value = %d, want %d (exclusive latch must serialize increments)", res.value, n)
	}
}

func TestDispatchReaderWriterLatchReadPath(t *testing.T) {
	res := &rwResource{}
	called := false
	Dispatch(resourceptr.ReaderWriterLatch, res, task.Read, 0, func() task.Result {
		called = true
		return task.Done()
	}, nil, nil)
	if !called {
		t.Fatalf("exec was not called under ReaderWriterLatch read path")
	}
}

func TestDispatchScheduleWriterLocalReadIsDirect(t *testing.T) {
	res := &counterResource{home: 3}
	execCount := 0
	Dispatch(resourceptr.ScheduleWriter, res, task.Read, 3, func() task.Result {
		execCount++
		return task.Done()
	}, func() {}, func() {})
	if execCount != 1 {
		t.Fatalf("execCount = %d, want 1 (local read on home worker runs directly, no retry loop)", execCount)
	}
}

func TestDispatchScheduleWriterRemoteReadValidatesVersion(t *testing.T) {
	res := &counterResource{home: 3}
	execCount := 0
	r := Dispatch(resourceptr.ScheduleWriter, res, task.Read, 0 /* not home */, func() task.Result {
		execCount++
		return task.Done()
	}, func() {}, func() {})
	if execCount != 1 {
		t.Fatalf("execCount = %d, want 1 (no concurrent writer, should succeed first try)", execCount)
	}
	if !r.Remove {
		t.Fatalf("result = %+v, want Remove=true", r)
	}
}

func TestDispatchScheduleWriterWriteBumpsVersionAroundExec(t *testing.T) {
	res := &counterResource{}
	var observed uint64
	Dispatch(resourceptr.ScheduleWriter, res, task.Write, 0, func() task.Result {
		observed = res.ReadVersion()
		return task.Done()
	}, nil, nil)
	if observed&1 == 0 {
		t.Fatalf("version during write = %d, want odd (mid-write)", observed)
	}
	if res.ReadVersion()&1 != 0 {
		t.Fatalf("version after write = %d, want even (write complete)", res.ReadVersion())
	}
}

func TestDispatchOLFITWriterUsesCAS(t *testing.T) {
	res := &counterResource{}
	Dispatch(resourceptr.OLFIT, res, task.Write, 0, func() task.Result { return task.Done() }, nil, nil)
	if res.ReadVersion()&1 != 0 {
		t.Fatalf("version after OLFIT write = %d, want even", res.ReadVersion())
	}
}

func TestDispatchOLFITReaderAcceptsNilBackupRestore(t *testing.T) {
	res := &counterResource{}
	execCount := 0
	r := Dispatch(resourceptr.OLFIT, res, task.Read, 0, func() task.Result {
		execCount++
		return task.Done()
	}, nil, nil)
	if execCount != 1 {
		t.Fatalf("execCount = %d, want 1", execCount)
	}
	if !r.Remove {
		t.Fatalf("result = %+v, want Remove=true", r)
	}
}

// TestDispatchScheduleWriterRemoteReadAcceptsNilBackupRestore guards
// against a regression where optimisticRead called backup/restore
// unconditionally: a task that doesn't implement task.Restorable (spec.md
// §4.10) has backup/restore supplied as nil by the worker's backupHooks,
// and a remote read under ScheduleWriter must not panic on that.
func TestDispatchScheduleWriterRemoteReadAcceptsNilBackupRestore(t *testing.T) {
	res := &counterResource{home: 3}
	execCount := 0
	r := Dispatch(resourceptr.ScheduleWriter, res, task.Read, 0 /* not home */, func() task.Result {
		execCount++
		return task.Done()
	}, nil, nil)
	if execCount != 1 {
		t.Fatalf("execCount = %d, want 1", execCount)
	}
	if !r.Remove {
		t.Fatalf("result = %+v, want Remove=true", r)
	}
}

func TestDispatchRTMFallsBackToExclusive(t *testing.T) {
	res := &counterResource{}
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			Dispatch(resourceptr.RestrictedTransactionalMemory, res, task.Write, 0, func() task.Result {
				return incrementResult(res)
			}, nil, nil)
		}()
	}
	wg.Wait()
	if res.value != n {
		t.Fatalf("value = %d, want %d (RTM fallback must serialize)", res.value, n)
	}
}

func TestDispatchBatchedNoWrapper(t *testing.T) {
	called := false
	Dispatch(resourceptr.Batched, nil, task.Write, 0, func() task.Result {
		called = true
		return task.Done()
	}, nil, nil)
	if !called {
		t.Fatalf("exec was not called under Batched primitive")
	}
}
