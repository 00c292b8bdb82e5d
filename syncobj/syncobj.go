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

// Package syncobj declares the contract a user resource type implements
// to be dispatched under any of the seven synchronization primitives
// (spec.md §4.9). Declaring it separately from latch avoids latch having
// to import every concrete resource type, and avoids resourceptr having
// to import latch.
package syncobj

// Exclusive is implemented by resources dispatched under ExclusiveLatch.
type Exclusive interface {
	Lock()
	Unlock()
}

// ReaderWriter is implemented by resources dispatched under
// ReaderWriterLatch.
type ReaderWriter interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// Versioned is implemented by resources dispatched under ScheduleWriter
// or OLFIT: a monotonically increasing version counter readers validate
// against and writers bump around their critical section
// (spec.md §4.9 "Optimistic read protocol").
type Versioned interface {
	// ReadVersion returns the current version, observed before and after
	// an optimistic read.
	ReadVersion() uint64
	// BeginWrite increments the version to the next odd value and
	// returns it, marking the resource as mid-write.
	BeginWrite() uint64
	// EndWrite increments the version to the next even value, marking
	// the write complete.
	EndWrite()
	// TryBeginWrite attempts a compare-exchange from an even version to
	// the next odd value, used by OLFIT where writers may race from any
	// worker. Returns false if the version changed concurrently.
	TryBeginWrite() bool
}

// HomeAware is implemented by resources that know their own scheduler
// home worker id, needed by ScheduleWriter's "resource's home == current
// worker" fast path (spec.md §4.9).
type HomeAware interface {
	HomeWorkerID() uint16
}
