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

// Package resourceptr implements the packed 64-bit resource handle
// (spec.md §3 "Resource handle", §4.1): identity, home worker and
// synchronization mode fused into one machine word, plus the typed
// registry codegen-adjacent callers resolve it through.
package resourceptr

import "fmt"

// Primitive is the closed set of eight synchronization primitives a
// resource may be dispatched under (spec.md §4.9).
type Primitive uint8

const (
	// None calls Execute directly; no synchronization is applied.
	None Primitive = iota
	// ExclusiveLatch serializes all accessors behind one exclusive latch.
	ExclusiveLatch
	// ReaderWriterLatch takes a shared latch for readers, exclusive for writers.
	ReaderWriterLatch
	// ScheduleWriter routes local same-worker reads directly, validates
	// remote/cross-worker reads optimistically, and serializes writers
	// through a version counter.
	ScheduleWriter
	// OLFIT lets readers run fully optimistically while writers CAS a version.
	OLFIT
	// RestrictedTransactionalMemory wraps execution in a hardware
	// transaction, falling back to serial execution on abort.
	RestrictedTransactionalMemory
	// ScheduleAll routes every access to the resource's home worker,
	// converting contention into FIFO serialization by dispatch alone.
	ScheduleAll
	// Batched marks the resource as a task squad; only its home worker may
	// pop from the squad's local queue.
	Batched
)

func (p Primitive) String() string {
	switch p {
	case None:
		return "none"
	case ExclusiveLatch:
		return "exclusive-latch"
	case ReaderWriterLatch:
		return "reader-writer-latch"
	case ScheduleWriter:
		return "schedule-writer"
	case OLFIT:
		return "olfit"
	case RestrictedTransactionalMemory:
		return "rtm"
	case ScheduleAll:
		return "schedule-all"
	case Batched:
		return "batched"
	default:
		return "unknown"
	}
}

// Bit budget: spec.md §4.1 requires the address field to dominate the low
// 48 bits so a raw-pointer dereference via mask stays valid, and the
// worker id field is documented as "~14 bits" (a hedge, not an exact
// count). With address pinned at exactly 48 bits and 3 bits spent on the
// synchronization primitive enum (8 values), only 13 bits remain for the
// worker id and auxiliary flags combined; this implementation spends 11
// of those on the worker id (up to 2047 workers, well above MaxWorkers'
// default of 64) and the remaining 2 as flag bits.
const (
	addressBits   = 48
	workerIDBits  = 11
	primitiveBits = 3
	flagsBits     = 2

	addressShift   = 0
	flagsShift     = addressBits
	workerIDShift  = addressBits + flagsBits
	primitiveShift = addressBits + flagsBits + workerIDBits

	addressMask   = (uint64(1) << addressBits) - 1
	workerIDMask  = (uint64(1) << workerIDBits) - 1
	primitiveMask = (uint64(1) << primitiveBits) - 1
	flagsMask     = (uint64(1) << flagsBits) - 1
)

// FlagBatchedInfo marks the squad "info" tag bit the batched dispatcher
// uses to distinguish a spawn-carrying push from a plain data push
// (spec.md §3 "remainder encodes auxiliary flags").
const FlagBatchedInfo uint8 = 1 << 0

// Ptr is the 64-bit fat resource handle: {address/slab-index:48,
// flags:2, home worker id:11, synchronization primitive:3}. The
// "address" field does not hold a raw pointer — per spec.md §9 Design
// Notes' guidance for an ownership-strict target language it holds an
// index into the typed registry (see Reserve/Install/Resolve), keeping the
// bitwise layout ABI-stable for codegen-style consumers while staying
// memory-safe under the Go garbage collector. Ptr is immutable once made.
type Ptr uint64

// Make packs an address/slab-index, home worker id, synchronization
// primitive and auxiliary flags into a Ptr.
func Make(address uint64, workerID uint16, primitive Primitive, flags uint8) Ptr {
	v := (address & addressMask) << addressShift
	v |= (uint64(flags) & flagsMask) << flagsShift
	v |= (uint64(workerID) & workerIDMask) << workerIDShift
	v |= (uint64(primitive) & primitiveMask) << primitiveShift
	return Ptr(v)
}

// Address returns the packed address/slab-index.
func (p Ptr) Address() uint64 { return (uint64(p) >> addressShift) & addressMask }

// Flags returns the packed auxiliary flag bits.
func (p Ptr) Flags() uint8 { return uint8((uint64(p) >> flagsShift) & flagsMask) }

// WorkerID returns the packed home worker id.
func (p Ptr) WorkerID() uint16 { return uint16((uint64(p) >> workerIDShift) & workerIDMask) }

// Primitive returns the packed synchronization primitive.
func (p Ptr) Primitive() Primitive { return Primitive((uint64(p) >> primitiveShift) & primitiveMask) }

// HasFlag reports whether every bit set in mask is set on p.
func (p Ptr) HasFlag(mask uint8) bool { return p.Flags()&mask == mask }

// IsZero reports whether p is the zero value (no resource annotated).
func (p Ptr) IsZero() bool { return p == 0 }

// String renders a Ptr for logs and test failure messages.
func (p Ptr) String() string {
	return fmt.Sprintf("Ptr{addr=%d worker=%d sync=%s flags=%02b}", p.Address(), p.WorkerID(), p.Primitive(), p.Flags())
}
