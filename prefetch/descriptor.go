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

// Package prefetch implements the software-prefetch descriptor and the
// rolling cycle history that drives the automatic prefetch-distance
// algorithm (spec.md §4.2 PrefetchDescriptor, §4.6 Prefetch pipeline).
package prefetch

import "math/bits"

// CacheLineBytes is the assumed cache line size used to derive a line
// count from a byte range (spec.md §4.6, "K derived... Size / LINE").
const CacheLineBytes = 64

// Type is the four-bit tag of a PrefetchDescriptor's tagged union.
type Type uint8

const (
	// None skips prefetching entirely.
	None Type = iota
	SizeTemporal
	SizeNonTemporal
	SizeWrite
	MaskTemporal
	MaskNonTemporal
	MaskWrite
	CallbackAny
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case SizeTemporal:
		return "size-temporal"
	case SizeNonTemporal:
		return "size-non-temporal"
	case SizeWrite:
		return "size-write"
	case MaskTemporal:
		return "mask-temporal"
	case MaskNonTemporal:
		return "mask-non-temporal"
	case MaskWrite:
		return "mask-write"
	case CallbackAny:
		return "callback"
	default:
		return "unknown"
	}
}

// Callback is user code that performs a complex-shape prefetch, given the
// resource's address and a caller-supplied size hint.
type Callback func(address uint64, size uint64)

// Descriptor is a tagged-union prefetch action: a 64-bit payload sized to
// the real C++ variant's bit budget (4-bit type tag, 60-bit payload), plus
// an out-of-band callback function pointer Go cannot pack into a machine
// word. Descriptor is immutable once made.
type Descriptor struct {
	kind     Type
	payload  uint64 // size in bytes, or a 60-bit cache-line bitmap
	callback Callback
	callSize uint64
}

// dataWithoutDescriptorBits masks payload down to the 60 bits the real
// tagged union reserves for it (spec.md §4.2, "four-bit type and 60-bit payload").
const dataWithoutDescriptorBits = (uint64(1) << 60) - 1

// MakeSize builds a Size{temporal|non-temporal|write} descriptor over a
// contiguous byte range starting at the resource's address.
func MakeSize(kind Type, bytes uint64) Descriptor {
	if kind != SizeTemporal && kind != SizeNonTemporal && kind != SizeWrite {
		panic("prefetch: MakeSize requires a Size* type")
	}
	return Descriptor{kind: kind, payload: bytes & dataWithoutDescriptorBits}
}

// MakeMask builds a Mask{temporal|non-temporal|write} descriptor; each set
// bit in lines is a cache-line offset relative to the object's address.
func MakeMask(kind Type, lines uint64) Descriptor {
	if kind != MaskTemporal && kind != MaskNonTemporal && kind != MaskWrite {
		panic("prefetch: MakeMask requires a Mask* type")
	}
	return Descriptor{kind: kind, payload: lines & dataWithoutDescriptorBits}
}

// MakeCallback builds a Callback descriptor; size is an opaque hint passed
// through to fn and also used to derive the prefetch-distance line count.
func MakeCallback(size uint64, fn Callback) Descriptor {
	return Descriptor{kind: CallbackAny, callback: fn, callSize: size}
}

// Type returns the descriptor's tag.
func (d Descriptor) Type() Type { return d.kind }

// IsNone reports whether the descriptor is the no-op variant.
func (d Descriptor) IsNone() bool { return d.kind == None }

// Lines returns the number of cache lines this descriptor's hint covers,
// the K in spec.md §4.6's `needed_cycles = K * LATENCY_PER_LINE`.
func (d Descriptor) Lines() uint32 {
	switch d.kind {
	case SizeTemporal, SizeNonTemporal, SizeWrite:
		return uint32((d.payload + CacheLineBytes - 1) / CacheLineBytes)
	case MaskTemporal, MaskNonTemporal, MaskWrite:
		return uint32(bits.OnesCount64(d.payload))
	case CallbackAny:
		return uint32((d.callSize + CacheLineBytes - 1) / CacheLineBytes)
	default:
		return 0
	}
}

// Issue performs the prefetch action against address, a best-effort memory
// touch standing in for the hardware prefetch intrinsic the original
// targets: Go exposes no `__builtin_prefetch` equivalent, so Size/Mask
// variants hand each targeted range to the caller-supplied touch function
// (one call for Size, one call per set mask bit for Mask) and Callback
// variants defer entirely to user code.
func (d Descriptor) Issue(address uint64, touch func(addr uint64, length uint64)) {
	if touch == nil {
		return
	}
	switch d.kind {
	case SizeTemporal, SizeNonTemporal, SizeWrite:
		touch(address, d.payload)
	case MaskTemporal, MaskNonTemporal, MaskWrite:
		mask := d.payload
		for mask != 0 {
			line := bits.TrailingZeros64(mask)
			touch(address+uint64(line)*CacheLineBytes, CacheLineBytes)
			mask &= mask - 1
		}
	case CallbackAny:
		if d.callback != nil {
			d.callback(address, d.callSize)
		}
	}
}

// Item pairs a prefetch action with the resource it targets, the unit
// scheduled into a task buffer slot (spec.md §3 "Task buffer",
// "An optional prefetch item (ResourcePtr, PrefetchDescriptor)").
type Item struct {
	Address    uint64
	Descriptor Descriptor
}

// IsZero reports whether the item carries no prefetch action.
func (it Item) IsZero() bool { return it.Descriptor.IsNone() }
