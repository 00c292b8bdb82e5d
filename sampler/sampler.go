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

// Package sampler records a cycle cost for every Nth dispatched task and
// maintains a per-trace-id running average. The prefetch pipeline's
// automatic distance computation uses that average in place of a task's
// annotated cycle hint, and falls back to the annotation for trace ids
// with no sample (spec.md §4.7). The worker records the task's annotated
// Cycles value as the sample; no cycle counter is read around Execute.
package sampler

import (
	lru "github.com/hashicorp/golang-lru"
)

// sample is the running {count, sum} pair for one trace id.
type sample struct {
	count uint64
	sum   uint64
}

// Sampler decides, on every Nth executed task, whether to record its
// cycle cost and folds that value into a bounded per-trace-id table.
// Unlike the original's unbounded robin_map, the table here is an LRU
// cache capped at a fixed capacity (config.Config.SamplerCacheCapacity):
// a long-running service with an open-ended trace id space should not
// grow this table forever.
type Sampler struct {
	period  uint32
	counter uint32
	table   *lru.Cache
}

// New returns a Sampler that measures every period-th call to Observe
// (period must be a power of two, e.g. config.Config.SamplePeriod) and
// bounds its trace-id table to capacity entries.
func New(period uint32, capacity int) *Sampler {
	if period == 0 {
		period = 1
	}
	cache, err := lru.New(capacity)
	if err != nil {
		// Only invalid (<=0) capacity reaches here; a programming error.
		panic(err)
	}
	return &Sampler{period: period, table: cache}
}

// ShouldSample reports whether the next call is due for sampling and
// advances the internal counter (spec.md §4.7, "On every Nth executed task").
func (s *Sampler) ShouldSample() bool {
	s.counter++
	return s.counter&(s.period-1) == 0
}

// Record folds a cycle cost into traceID's running average.
func (s *Sampler) Record(traceID uint64, cycles uint32) {
	var sm sample
	if v, ok := s.table.Get(traceID); ok {
		sm = v.(sample)
	}
	sm.count++
	sm.sum += uint64(cycles)
	s.table.Add(traceID, sm)
}

// Estimate returns the running average cycle cost for traceID, or
// (0, false) if nothing has been sampled for it yet (spec.md §4.7,
// "If a task has no sampled entry, fall back to annotation.cycles").
func (s *Sampler) Estimate(traceID uint64) (uint32, bool) {
	v, ok := s.table.Get(traceID)
	if !ok {
		return 0, false
	}
	sm := v.(sample)
	if sm.count == 0 {
		return 0, false
	}
	return uint32(sm.sum / sm.count), true
}

// Len returns the number of distinct trace ids currently tracked.
func (s *Sampler) Len() int { return s.table.Len() }
