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

package prefetch

// HistorySize is the number of rolling slots the automatic distance
// algorithm walks (spec.md §4.6, "Maintain an 8-slot history").
const HistorySize = 8

// History is the per-worker rolling record of the last HistorySize tasks'
// cycle costs, indexed so slots[0] is the most recently pushed (i.e. the
// cost of the task about to run next) and slots[HistorySize-1] the oldest.
type History struct {
	slots [HistorySize]uint32
}

// Push records a newly scheduled task's cycle estimate, shifting the
// history and discarding the oldest sample.
func (h *History) Push(cycles uint32) {
	copy(h.slots[1:], h.slots[:HistorySize-1])
	h.slots[0] = cycles
}

// Distance walks the history from the immediately-next slot outward,
// accumulating cycles, and returns the smallest d such that the
// accumulated cycles are >= needed. If the full history is insufficient,
// distance clamps to HistorySize (spec.md §4.6 and Scenario C: a history
// of cycles=100 per slot and needed=1600 computes an unclamped distance
// of 16, but the history only has 8 slots to walk, so the implementation
// clamps to 8).
func (h *History) Distance(needed uint32) uint8 {
	var cycles uint32
	for d := 0; d < HistorySize; d++ {
		if cycles >= needed {
			return uint8(d)
		}
		cycles += h.slots[d]
	}
	return HistorySize
}

// Mode selects how the pipeline positions a task's prefetch relative to
// its own slot (spec.md §4.6, "Three modes").
type Mode uint8

const (
	// Disabled schedules tasks without ever issuing a prefetch.
	Disabled Mode = iota
	// Fixed issues every prefetch a constant number of slots ahead.
	Fixed
	// Automatic computes a per-task distance from the rolling History.
	Automatic
)

// Pipeline decides, for each newly scheduled task, how many slots ahead of
// its own slot its prefetch action should be issued.
type Pipeline struct {
	mode                mode
	fixedDistance       uint8
	latencyPerLineCycle uint32
	history             History
}

type mode = Mode

// NewDisabled returns a pipeline that never prefetches
// (spec.md §4.6 mode 1, selected by `prefetch_distance=0`).
func NewDisabled() *Pipeline { return &Pipeline{mode: Disabled} }

// NewFixed returns a pipeline that always prefetches exactly distance
// slots ahead (spec.md §4.6 mode 2).
func NewFixed(distance uint8) *Pipeline { return &Pipeline{mode: Fixed, fixedDistance: distance} }

// NewAutomatic returns a pipeline that computes distance per task from the
// rolling cycle history (spec.md §4.6 mode 3). latencyPerLineCycle is the
// compile-time LATENCY_PER_PREFETCHED_LINE_CYCLES constant
// (config.Config.LatencyPerPrefetchedLineCycles).
func NewAutomatic(latencyPerLineCycle uint32) *Pipeline {
	return &Pipeline{mode: Automatic, latencyPerLineCycle: latencyPerLineCycle}
}

// Mode returns the pipeline's selected mode.
func (p *Pipeline) Mode() Mode { return p.mode }

// RefillThreshold returns the buffer fill level below which a worker
// should trigger a refill (spec.md §4.15 step 2d: history_size when
// automatic, fixedDistance when fixed; prefetching contributes nothing to
// refill pressure when disabled).
func (p *Pipeline) RefillThreshold() uint8 {
	switch p.mode {
	case Automatic:
		return HistorySize
	case Fixed:
		return p.fixedDistance
	default:
		return 0
	}
}

// Distance computes how many slots ahead of the task's own slot its
// prefetch (if any) should be issued, and records the task's own cycle
// estimate into the rolling history for future computations. desc.IsNone()
// callers should skip issuing a prefetch altogether but must still record
// cycles so the history stays populated.
func (p *Pipeline) Distance(desc Descriptor, cycles uint32) uint8 {
	var d uint8
	switch p.mode {
	case Disabled:
		d = 0
	case Fixed:
		d = p.fixedDistance
	case Automatic:
		needed := desc.Lines() * p.latencyPerLineCycle
		d = p.history.Distance(needed)
	}
	p.history.Push(cycles)
	return d
}

// ClampToFill applies the edge policy from spec.md §4.6: "if the computed
// d exceeds buffer capacity - buffer fill, the prefetch is issued as early
// as possible". available is the number of occupied slots ahead of the new
// task's slot at fill time.
func ClampToFill(distance uint8, available uint8) uint8 {
	if distance > available {
		return available
	}
	return distance
}
