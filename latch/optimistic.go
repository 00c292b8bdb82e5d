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

import "sync/atomic"

// Version is a CAS-based monotonic version counter satisfying
// syncobj.Versioned. An even value means "quiescent"; an odd value means
// "a writer is mid-critical-section" (spec.md §4.9, "increment version to
// odd, call, increment to even").
type Version struct {
	v uint64
}

func (ver *Version) ReadVersion() uint64 { return atomic.LoadUint64(&ver.v) }

func (ver *Version) BeginWrite() uint64 { return atomic.AddUint64(&ver.v, 1) }

func (ver *Version) EndWrite() { atomic.AddUint64(&ver.v, 1) }

// TryBeginWrite CASes from the current even version to the next odd
// value, the OLFIT writer entry point (spec.md §4.9, "Writer uses
// compare-exchange on the version").
func (ver *Version) TryBeginWrite() bool {
	cur := atomic.LoadUint64(&ver.v)
	if cur&1 != 0 {
		return false // another writer is already in its critical section
	}
	return atomic.CompareAndSwapUint64(&ver.v, cur, cur+1)
}

// optimisticRead implements spec.md §4.9's "Optimistic read protocol":
// back up, loop { v = version; r = execute(); if version unchanged return
// r; restore }. backup/restore are caller-supplied because the task bytes
// being protected are type-erased to latch; either may be nil when the
// task doesn't implement task.Restorable (spec.md §4.10), in which case
// the corresponding step is skipped.
func optimisticRead(ver interface {
	ReadVersion() uint64
}, exec func() (result interface{}), backup func(), restore func()) interface{} {
	if backup != nil {
		backup()
	}
	for {
		before := ver.ReadVersion()
		if before&1 != 0 {
			continue // writer in progress, retry without consuming a result
		}
		result := exec()
		after := ver.ReadVersion()
		if before == after {
			return result
		}
		if restore != nil {
			restore()
		}
	}
}
