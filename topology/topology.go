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

// Package topology maps worker ids onto logical cores and NUMA nodes and
// detects SMT sibling pairs, the way the host CPU set descriptor in
// spec.md §4.15's init() does. Discovery is best-effort via gopsutil;
// callers may also build a CoreSet by hand for tests or unusual layouts.
package topology

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/cpu"
)

// Core describes one logical CPU assigned to a worker.
type Core struct {
	// LogicalID is the OS-visible logical core id (sched_setaffinity target).
	LogicalID int
	// PhysicalID identifies the physical core; two logical cores sharing a
	// PhysicalID are SMT siblings.
	PhysicalID int
	// NUMANode is the NUMA domain the core belongs to.
	NUMANode int
	// IsSMT marks a logical core that is not thread 0 of its physical core.
	IsSMT bool
}

// CoreSet is the ordered list of logical cores workers are pinned to,
// worker id == index (spec.md §4.15, "CPU core set descriptor").
type CoreSet struct {
	cores []Core
	// siblings maps a worker id to its SMT sibling worker id, if any.
	siblings map[int]int
}

// Build constructs a CoreSet from an explicit, caller-supplied core list.
// Workers are numbered densely 0..len(cores)-1 in list order.
func Build(cores []Core) (*CoreSet, error) {
	if len(cores) == 0 {
		return nil, errors.New("topology: core set must not be empty")
	}
	cs := &CoreSet{cores: append([]Core(nil), cores...), siblings: map[int]int{}}
	byPhysical := map[int][]int{}
	for workerID, c := range cs.cores {
		byPhysical[c.PhysicalID] = append(byPhysical[c.PhysicalID], workerID)
	}
	for _, workers := range byPhysical {
		if len(workers) != 2 {
			continue
		}
		cs.siblings[workers[0]] = workers[1]
		cs.siblings[workers[1]] = workers[0]
	}
	return cs, nil
}

// Discover probes the host via gopsutil and builds a CoreSet using one
// worker per logical CPU, up to maxWorkers. NUMA node assignment follows
// gopsutil's per-CPU PhysicalID: cores are bucketed into maxNUMANodes
// domains round-robin over physical ids, since gopsutil does not expose
// NUMA node ids directly on every platform.
func Discover(maxWorkers uint16, maxNUMANodes uint8) (*CoreSet, error) {
	infos, err := cpu.Info()
	if err != nil {
		return nil, errors.Wrap(err, "topology: discovering cpu info")
	}
	if len(infos) == 0 {
		return nil, errors.New("topology: no CPUs reported")
	}

	n := len(infos)
	if n > int(maxWorkers) {
		n = int(maxWorkers)
	}

	physicalSeen := map[string]int{}
	nextPhysical := 0
	cores := make([]Core, 0, n)
	for i := 0; i < n; i++ {
		info := infos[i%len(infos)]
		key := info.PhysicalID
		if key == "" {
			key = info.CoreID
		}
		physID, ok := physicalSeen[key]
		if !ok {
			physID = nextPhysical
			physicalSeen[key] = physID
			nextPhysical++
		}
		numaNode := 0
		if maxNUMANodes > 0 {
			numaNode = physID % int(maxNUMANodes)
		}
		cores = append(cores, Core{
			LogicalID:  i,
			PhysicalID: physID,
			NUMANode:   numaNode,
		})
	}
	markSMT(cores)
	return Build(cores)
}

// markSMT flags every logical core after the first seen for a given
// PhysicalID as an SMT thread.
func markSMT(cores []Core) {
	seen := map[int]bool{}
	for i := range cores {
		if seen[cores[i].PhysicalID] {
			cores[i].IsSMT = true
		}
		seen[cores[i].PhysicalID] = true
	}
}

// Len returns the number of workers in the set.
func (cs *CoreSet) Len() int { return len(cs.cores) }

// Core returns the logical core assigned to workerID.
func (cs *CoreSet) Core(workerID int) (Core, bool) {
	if workerID < 0 || workerID >= len(cs.cores) {
		return Core{}, false
	}
	return cs.cores[workerID], true
}

// NUMAOf returns the NUMA node a worker runs on.
func (cs *CoreSet) NUMAOf(workerID int) uint8 {
	c, ok := cs.Core(workerID)
	if !ok {
		return 0
	}
	return uint8(c.NUMANode)
}

// IsSMT reports whether a worker's logical core is an SMT sibling thread.
func (cs *CoreSet) IsSMT(workerID int) bool {
	c, ok := cs.Core(workerID)
	return ok && c.IsSMT
}

// SiblingOf returns the SMT sibling worker id sharing workerID's physical
// core, if one exists (spec.md §4.14 boundness remap).
func (cs *CoreSet) SiblingOf(workerID int) (int, bool) {
	sib, ok := cs.siblings[workerID]
	return sib, ok
}

// CountNUMANodes returns the number of distinct NUMA nodes in use.
func (cs *CoreSet) CountNUMANodes() int {
	seen := map[int]bool{}
	for _, c := range cs.cores {
		seen[c.NUMANode] = true
	}
	return len(seen)
}

// WorkersOnNUMA returns the worker ids homed to a NUMA node, in ascending order.
func (cs *CoreSet) WorkersOnNUMA(node uint8) []int {
	var out []int
	for workerID, c := range cs.cores {
		if uint8(c.NUMANode) == node {
			out = append(out, workerID)
		}
	}
	return out
}

// current holds the thread-local worker id for the pinned OS thread that
// calls SetCurrent. Go has no true thread-local storage, so this is keyed
// by OS thread id (unix.Gettid(), supplied by the caller) the way the
// worker loop establishes it once after runtime.LockOSThread().
var current sync.Map // map[int]int: os tid -> worker id

// SetCurrent records the worker id owning the calling OS thread, identified
// by osThreadID (typically unix.Gettid()). Call once per pinned worker
// goroutine, after runtime.LockOSThread().
func SetCurrent(osThreadID, workerID int) { current.Store(osThreadID, workerID) }

// CurrentWorker returns the worker id previously recorded for osThreadID,
// or -1 if none was set (e.g. called from a non-worker goroutine).
func CurrentWorker(osThreadID int) int {
	v, ok := current.Load(osThreadID)
	if !ok {
		return -1
	}
	return v.(int)
}

// ClearCurrent forgets the worker id recorded for osThreadID, used by tests
// and on worker shutdown.
func ClearCurrent(osThreadID int) { current.Delete(osThreadID) }
