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

// Package config holds the tunable constants of the tasking runtime and
// loads overrides from a TOML file.
package config

import (
	"os"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// QueueBackend selects how remote (cross-worker) queues fan in to a worker.
type QueueBackend uint8

const (
	// Single gives every worker exactly one remote MPSC queue.
	Single QueueBackend = iota
	// NUMALocal gives every worker one remote MPSC queue per NUMA domain.
	NUMALocal
	// WorkerLocal gives every worker one remote MPSC queue per remote worker.
	WorkerLocal
)

func (b QueueBackend) String() string {
	switch b {
	case Single:
		return "single"
	case NUMALocal:
		return "numa-local"
	case WorkerLocal:
		return "worker-local"
	default:
		return "unknown"
	}
}

// ReclamationMode selects the epoch-based reclamation strategy (spec.md §4.8).
type ReclamationMode uint8

const (
	// None frees retired objects immediately; unsafe for optimistic readers.
	None ReclamationMode = iota
	// UpdateEpochOnRead advances a worker's local epoch around each optimistic read.
	UpdateEpochOnRead
	// UpdateEpochPeriodically advances a worker's local epoch once per pool-drain cycle,
	// alongside a dedicated goroutine that periodically bumps the global epoch.
	UpdateEpochPeriodically
)

func (m ReclamationMode) String() string {
	switch m {
	case None:
		return "none"
	case UpdateEpochOnRead:
		return "update-epoch-on-read"
	case UpdateEpochPeriodically:
		return "update-epoch-periodically"
	default:
		return "unknown"
	}
}

// WorkerMode selects how a worker behaves when its pool withdraws zero tasks.
type WorkerMode uint8

const (
	// Performance spins (pause-loop) until the pool has tasks.
	Performance WorkerMode = iota
	// PowerSave sleeps a short static duration between pool polls.
	PowerSave
)

// Config carries every tunable constant named in spec.md §6, plus the
// implementation-level knobs spec.md §9's Open Questions recommend making
// configurable (sample period, queue backend, reclamation mode).
type Config struct {
	// MaxWorkers bounds the number of pinned worker goroutines (spec.md §6, default 64).
	MaxWorkers uint16 `toml:"max_workers"`

	// TaskSize is the fixed byte budget used to size the task slab allocator
	// and the optimistic-retry backup stack (spec.md §6, default 128).
	TaskSize uint32 `toml:"task_size"`

	// BackupStackDepth bounds how many nested optimistic-retry snapshots a
	// worker keeps on its backup stack (spec.md §4.10); 0 disables
	// backup/restore entirely.
	BackupStackDepth int `toml:"backup_stack_depth"`

	// TaskBufferSize is the per-worker ring capacity between pool and
	// executor; must be a power of two (spec.md §6, default 64).
	TaskBufferSize uint32 `toml:"task_buffer_size"`

	// MaxNUMANodes bounds the NUMA-local remote-queue fan-in; must be a
	// power of two for cheap modulo routing (spec.md §6).
	MaxNUMANodes uint8 `toml:"max_numa_nodes"`

	// MaxSMTThreads bounds how many logical cores may share one physical core.
	MaxSMTThreads uint8 `toml:"max_smt_threads"`

	// LatencyPerPrefetchedLineCycles is the compile-time constant used by
	// the automatic prefetch-distance algorithm (spec.md §4.6, §6).
	LatencyPerPrefetchedLineCycles uint32 `toml:"latency_per_prefetched_line_cycles"`

	// PrefetchDistance selects the per-worker prefetch pipeline's mode
	// (spec.md §4.15 init()'s "prefetch_distance" parameter): 0 disables
	// prefetching entirely, a positive value fixes the prefetch distance
	// at that many slots, and -1 selects the automatic, history-driven
	// distance computation (spec.md §4.6 mode 3).
	PrefetchDistance int `toml:"prefetch_distance"`

	// SamplePeriod is "every Nth executed task" sampled by the cycle
	// sampler; must be a power of two (spec.md §4.7, default 4096).
	SamplePeriod uint32 `toml:"sample_period"`

	// SamplerCacheCapacity bounds the sampler's per-trace-id LRU table.
	SamplerCacheCapacity int `toml:"sampler_cache_capacity"`

	// GlobalMPSCCapacity bounds the shared "anywhere" queue (spec.md §4.3, default 2^22).
	GlobalMPSCCapacity uint32 `toml:"global_mpsc_capacity"`

	// NUMAMPSCCapacity bounds each per-NUMA remote queue (spec.md §4.3, default 2^20).
	NUMAMPSCCapacity uint32 `toml:"numa_mpsc_capacity"`

	// QueueBackend selects the task pool's remote-queue fan-in layout (spec.md §3).
	QueueBackend QueueBackend `toml:"-"`

	// ConsiderResourceBoundWorkers enables the SMT memory/compute boundness remap (spec.md §4.14).
	ConsiderResourceBoundWorkers bool `toml:"consider_resource_bound_workers"`

	// ReclamationMode selects the epoch reclamation strategy (spec.md §4.8).
	ReclamationMode ReclamationMode `toml:"-"`

	// WorkerMode selects the idle-poll behavior (spec.md §9 Design Notes, worker_mode).
	WorkerMode WorkerMode `toml:"-"`

	// UseSystemAllocator, when true, makes tasking.NewAllocator (new_task/
	// delete_task) return plain heap allocation instead of a pooled slab
	// (spec.md §4.15 init()); NewResource is not affected.
	UseSystemAllocator bool `toml:"use_system_allocator"`
}

// Default returns the spec.md §6-documented defaults.
func Default() Config {
	return Config{
		MaxWorkers:                     64,
		TaskSize:                       128,
		BackupStackDepth:               8,
		TaskBufferSize:                 64,
		MaxNUMANodes:                   8,
		MaxSMTThreads:                  2,
		LatencyPerPrefetchedLineCycles: 400,
		PrefetchDistance:               -1,
		SamplePeriod:                   4096,
		SamplerCacheCapacity:           4096,
		GlobalMPSCCapacity:             1 << 22,
		NUMAMPSCCapacity:               1 << 20,
		QueueBackend:                   NUMALocal,
		ConsiderResourceBoundWorkers:   false,
		ReclamationMode:                None,
		WorkerMode:                     Performance,
		UseSystemAllocator:             false,
	}
}

// Validate rejects configurations that would violate the runtime's
// power-of-two and sizing invariants.
func (c Config) Validate() error {
	if !isPowerOfTwo(c.TaskBufferSize) {
		return errors.Errorf("task buffer size %d must be a power of two", c.TaskBufferSize)
	}
	if !isPowerOfTwo(uint32(c.MaxNUMANodes)) {
		return errors.Errorf("max numa nodes %d must be a power of two", c.MaxNUMANodes)
	}
	if !isPowerOfTwo(c.SamplePeriod) {
		return errors.Errorf("sample period %d must be a power of two", c.SamplePeriod)
	}
	if c.TaskSize == 0 {
		return errors.New("task size must be > 0")
	}
	if c.MaxWorkers == 0 {
		return errors.New("max workers must be > 0")
	}
	return nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && (v&(v-1)) == 0
}

// Load reads a TOML file and overlays it on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %q", path)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}
