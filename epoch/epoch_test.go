package epoch

import (
	"testing"
	"time"

	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/resourceptr"
)

func TestNoneModeReleasesImmediately(t *testing.T) {
	reg := resourceptr.NewRegistry()
	idx := reg.Reserve()
	reg.Install(idx, "value", resourceptr.Normal)

	m := NewManager(config.None, 2, reg)
	m.Retire(0, idx)

	if m.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0 under ReclamationMode.None", m.PendingCount())
	}
	if _, ok := resourceptr.Resolve[string](reg, resourceptr.Make(idx, 0, resourceptr.None, 0)); ok {
		t.Fatalf("resource still resolvable after immediate release")
	}
}

func TestRetireAndReclaimAfterEpochAdvance(t *testing.T) {
	reg := resourceptr.NewRegistry()
	idx := reg.Reserve()
	reg.Install(idx, "value", resourceptr.Normal)

	m := NewManager(config.UpdateEpochOnRead, 2, reg)
	defer m.FlushAll()

	m.EnterEpoch(0)
	m.EnterEpoch(1)
	m.Retire(0, idx)
	if m.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", m.PendingCount())
	}

	// Reclaim immediately: every local epoch equals the retirement epoch,
	// not strictly greater, so nothing should be freed yet.
	m.Reclaim()
	if m.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d after premature reclaim, want 1", m.PendingCount())
	}

	// Both workers observe a later epoch; now reclamation should proceed.
	m.AdvanceGlobal()
	m.EnterEpoch(0)
	m.EnterEpoch(1)
	m.Reclaim()

	waitUntil(t, func() bool { return m.PendingCount() == 0 })
}

func TestLeaveEpochDoesNotBlockReclamation(t *testing.T) {
	reg := resourceptr.NewRegistry()
	idx := reg.Reserve()
	reg.Install(idx, "value", resourceptr.Normal)

	m := NewManager(config.UpdateEpochOnRead, 2, reg)
	defer m.FlushAll()

	m.EnterEpoch(0)
	m.LeaveEpoch(1) // worker 1 is idle, must not pin the epoch floor
	m.Retire(0, idx)
	m.AdvanceGlobal()
	m.EnterEpoch(0)
	m.Reclaim()

	waitUntil(t, func() bool { return m.PendingCount() == 0 })
}

func TestFlushAllReclaimsRegardlessOfEpoch(t *testing.T) {
	reg := resourceptr.NewRegistry()
	idx := reg.Reserve()
	reg.Install(idx, "value", resourceptr.Normal)

	m := NewManager(config.UpdateEpochPeriodically, 1, reg)
	m.Retire(0, idx)
	m.FlushAll()

	if m.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d after FlushAll, want 0", m.PendingCount())
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
