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

// Package epoch implements epoch-based reclamation for resources retired
// while optimistic readers may still be mid-flight (spec.md §4.8).
package epoch

import (
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/resourceptr"
)

// retired is one pending reclamation: a registry slot tagged with the
// global epoch at which it became unreachable.
type retired struct {
	addr  uint64
	epoch uint64
}

// Manager coordinates the global epoch counter, each worker's local
// epoch, and per-worker retire lists (spec.md §3 "Epoch state").
type Manager struct {
	mode config.ReclamationMode

	global uint64 // atomic

	mu     sync.Mutex
	local  []uint64 // per-worker local epoch, atomic-accessed through helpers
	retire [][]retired

	registry *resourceptr.Registry
	workers  *ants.Pool // drains retire lists off the hot path
}

// NewManager returns a Manager for workerCount workers, mode selecting
// one of the three reclamation strategies (spec.md §4.8). registry is the
// resource registry objects are ultimately released back to.
func NewManager(mode config.ReclamationMode, workerCount int, registry *resourceptr.Registry) *Manager {
	pool, err := ants.NewPool(maxInt(1, workerCount/4))
	if err != nil {
		panic(err)
	}
	return &Manager{
		mode:     mode,
		local:    make([]uint64, workerCount),
		retire:   make([][]retired, workerCount),
		registry: registry,
		workers:  pool,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GlobalEpoch returns the current global epoch.
func (m *Manager) GlobalEpoch() uint64 { return atomic.LoadUint64(&m.global) }

// AdvanceGlobal bumps the global epoch by one, called periodically by the
// reclamation goroutine under UpdateEpochPeriodically.
func (m *Manager) AdvanceGlobal() uint64 { return atomic.AddUint64(&m.global, 1) }

// EnterEpoch publishes workerID's local epoch as caught up to the current
// global epoch (spec.md §4.8, both UpdateEpochOnRead and
// UpdateEpochPeriodically call this, at different points in the worker loop).
func (m *Manager) EnterEpoch(workerID int) {
	atomic.StoreUint64(&m.local[workerID], atomic.LoadUint64(&m.global))
}

// LeaveEpoch marks workerID as not currently observing any epoch, so it
// no longer blocks reclamation of objects retired after this point.
// Represented as the maximum uint64, always ">" any real retirement epoch.
func (m *Manager) LeaveEpoch(workerID int) {
	atomic.StoreUint64(&m.local[workerID], ^uint64(0))
}

// LocalEpoch returns workerID's last-published local epoch.
func (m *Manager) LocalEpoch(workerID int) uint64 {
	return atomic.LoadUint64(&m.local[workerID])
}

// Mode returns the selected reclamation strategy.
func (m *Manager) Mode() config.ReclamationMode { return m.mode }

// Retire marks a registry address as logically deleted, tagged with the
// epoch at which it became unreachable (spec.md §3 "Retire list").
// Under ReclamationMode.None it releases immediately instead, per
// spec.md §4.8 ("immediate free... the client must not use optimistic sync").
func (m *Manager) Retire(workerID int, addr uint64) {
	if m.mode == config.None {
		m.registry.Release(addr)
		return
	}
	m.registry.Retire(addr)
	m.mu.Lock()
	m.retire[workerID] = append(m.retire[workerID], retired{addr: addr, epoch: m.GlobalEpoch()})
	m.mu.Unlock()
}

// Reclaim scans every worker's retire list and releases entries whose
// epoch every active local epoch has surpassed (spec.md §4.8 reclamation
// rule: "an object retired at epoch E may be freed when every active
// local epoch is > E"). Work is dispatched onto the ants pool so a slow
// release (arbitrary destructor-equivalent) never blocks the caller.
func (m *Manager) Reclaim() {
	if m.mode == config.None {
		return
	}
	floor := m.minLocalEpoch()

	m.mu.Lock()
	defer m.mu.Unlock()
	for w := range m.retire {
		kept := m.retire[w][:0]
		for _, r := range m.retire[w] {
			if r.epoch < floor {
				addr := r.addr
				_ = m.workers.Submit(func() { m.registry.Release(addr) })
			} else {
				kept = append(kept, r)
			}
		}
		m.retire[w] = kept
	}
}

func (m *Manager) minLocalEpoch() uint64 {
	min := ^uint64(0)
	for i := range m.local {
		v := atomic.LoadUint64(&m.local[i])
		if v < min {
			min = v
		}
	}
	return min
}

// FlushAll reclaims every retired object unconditionally, regardless of
// local epochs, used on runtime shutdown (spec.md §4.8, "On runtime
// shutdown, all retire lists are flushed").
func (m *Manager) FlushAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for w := range m.retire {
		for _, r := range m.retire[w] {
			m.registry.Release(r.addr)
		}
		m.retire[w] = nil
	}
	m.workers.Release()
}

// PendingCount reports the total number of objects awaiting reclamation,
// for telemetry and tests.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, list := range m.retire {
		n += len(list)
	}
	return n
}
