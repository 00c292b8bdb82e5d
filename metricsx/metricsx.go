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

// Package metricsx registers runtime counters, gauges, meters and timers
// with rcrowley/go-metrics, the library the teacher's own (internal,
// non-importable) metrics package wraps. Naming follows the teacher's
// "subsystem/component/measurement" convention, e.g. trie_prefetcher.go's
// "trie/prefetch/<namespace>/account/load".
package metricsx

import (
	gometrics "github.com/rcrowley/go-metrics"
)

// Enabled gates metric recording the way the teacher's metrics.Enabled does;
// flip to false to avoid the bookkeeping cost in latency-sensitive builds.
var Enabled = true

// Registry is the process-wide metrics registry.
var Registry = gometrics.NewRegistry()

// Counter returns (creating if necessary) a named counter.
func Counter(name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter(name, Registry)
}

// Gauge returns (creating if necessary) a named gauge.
func Gauge(name string) gometrics.Gauge {
	return gometrics.GetOrRegisterGauge(name, Registry)
}

// Meter returns (creating if necessary) a named meter.
func Meter(name string) gometrics.Meter {
	return gometrics.GetOrRegisterMeter(name, Registry)
}

// Timer returns (creating if necessary) a named timer.
func Timer(name string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer(name, Registry)
}

// IncIf increments a counter by delta only when Enabled, avoiding an
// allocation-free but still branchy hot-path cost when metrics are off.
func IncIf(c gometrics.Counter, delta int64) {
	if Enabled {
		c.Inc(delta)
	}
}

// UpdateIf sets a gauge's value only when Enabled.
func UpdateIf(g gometrics.Gauge, value int64) {
	if Enabled {
		g.Update(value)
	}
}

// MarkIf marks a meter only when Enabled.
func MarkIf(m gometrics.Meter, count int64) {
	if Enabled {
		m.Mark(count)
	}
}
