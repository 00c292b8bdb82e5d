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

// Package backup implements the per-worker optimistic-retry backup stack
// (spec.md §4.10): a task's state is saved before a speculative execution
// and restored if a concurrent writer invalidated it mid-flight.
package backup

import "github.com/pkg/errors"

// ErrStackOverflow is returned when a worker's nesting of optimistic
// retries exceeds the stack's fixed depth, which would indicate either a
// runaway retry loop or a configuration with too shallow a stack.
var ErrStackOverflow = errors.New("backup: stack depth exceeded")

// ErrStackUnderflow is returned by Restore against an empty stack,
// always a caller bug (unbalanced Backup/Restore calls).
var ErrStackUnderflow = errors.New("backup: stack is empty")

// Stack is a fixed-depth, per-worker LIFO of saved task snapshots.
// It is single-owner and uses no synchronization (spec.md §4.10, "The
// stack is private to its worker; no synchronization").
type Stack[T any] struct {
	frames []T
	depth  int
}

// NewStack returns a Stack with room for maxDepth nested backups.
func NewStack[T any](maxDepth int) *Stack[T] {
	return &Stack[T]{frames: make([]T, maxDepth)}
}

// Backup saves a copy of v onto the stack ("memcpys the task bytes",
// spec.md §4.10; for a Go value type T this is the natural copy semantics
// of assignment).
func (s *Stack[T]) Backup(v T) error {
	if s.depth >= len(s.frames) {
		return ErrStackOverflow
	}
	s.frames[s.depth] = v
	s.depth++
	return nil
}

// Restore pops the most recent backup and returns it, for the caller to
// copy back over the live task ("restore(task) memcpys them back").
func (s *Stack[T]) Restore() (T, error) {
	var zero T
	if s.depth == 0 {
		return zero, ErrStackUnderflow
	}
	s.depth--
	v := s.frames[s.depth]
	s.frames[s.depth] = zero
	return v, nil
}

// Depth returns the number of currently backed-up frames.
func (s *Stack[T]) Depth() int { return s.depth }

// Empty reports whether the stack holds no backups.
func (s *Stack[T]) Empty() bool { return s.depth == 0 }
