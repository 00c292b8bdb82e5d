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

package task

import "github.com/mxtasking/tasking/resourceptr"

// AccessIntent is whether a task reads or writes the resource it targets
// (spec.md §3 Annotation, "writer by default").
type AccessIntent uint8

const (
	Write AccessIntent = iota
	Read
)

// Priority is the two-tier scheduling class every task carries
// (spec.md §3 Annotation, §4.3 priority queue).
type Priority uint8

const (
	Normal Priority = iota
	Low
)

// Boundness is the advisory SMT-sibling routing hint (spec.md §3
// "resource_boundness", §4.14 boundness remap).
type Boundness uint8

const (
	Mixed Boundness = iota
	Memory
	Compute
)

// DestinationKind tags which field of Destination is meaningful
// (spec.md §3 Annotation "destination").
type DestinationKind uint8

const (
	// DestNone means the task carries no destination hint at all; the
	// scheduler treats it the same as DestAnywhere (spec.md §4.2 policy).
	DestNone DestinationKind = iota
	DestWorker
	DestNUMANode
	DestResource
	DestLocal
	DestAnywhere
)

// Destination is the tagged union spec.md §3 documents as "one of
// worker_id u16, numa_node u8, ResourcePtr, or symbolic {local, anywhere}".
type Destination struct {
	Kind     DestinationKind
	WorkerID uint16
	NUMANode uint8
	Resource resourceptr.Ptr
}

// Local returns the execution_destination=local symbolic destination.
func Local() Destination { return Destination{Kind: DestLocal} }

// Anywhere returns the execution_destination=anywhere symbolic destination.
func Anywhere() Destination { return Destination{Kind: DestAnywhere} }

// Worker returns a destination pinning the task to a specific worker id.
func Worker(id uint16) Destination { return Destination{Kind: DestWorker, WorkerID: id} }

// NUMANode returns a destination routing to a NUMA domain's shared queue.
func NUMANode(node uint8) Destination { return Destination{Kind: DestNUMANode, NUMANode: node} }

// ForResource returns a destination following a resource's home worker
// and synchronization primitive.
func ForResource(ptr resourceptr.Ptr) Destination { return Destination{Kind: DestResource, Resource: ptr} }

// PrefetchHint pairs a resource address with the prefetch action to issue
// before this task's slot is consumed (spec.md §3 "prefetch_hint").
type PrefetchHint struct {
	Resource resourceptr.Ptr
	// Descriptor is typed as interface{} here to avoid task importing
	// prefetch for a single field; callers type-assert to
	// prefetch.Descriptor. The buffer package, which already depends on
	// both packages, does this assertion when consuming the hint.
	Descriptor interface{}
}

// Annotation is the packed record attached to every task (spec.md §3).
type Annotation struct {
	AccessIntent AccessIntent
	Priority     Priority
	Boundness    Boundness
	// Cycles is a hint in CPU cycles used when cycle sampling is off
	// (spec.md §4.6, §4.7).
	Cycles      uint32
	Destination Destination
	// Prefetch is the optional (ResourcePtr, PrefetchDescriptor) pair;
	// nil means no prefetch hint.
	Prefetch *PrefetchHint
}

// NewAnnotation returns a writer, normal-priority, mixed-boundness,
// anywhere-destination annotation, the Annotation's zero-ish default.
func NewAnnotation() Annotation {
	return Annotation{Destination: Anywhere()}
}
