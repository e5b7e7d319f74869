// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package action

// stack is an unbounded LIFO backed by a slice.
//
// # Description
//
// Holds the undo and redo sequences. Push and Pop are O(1) amortized and
// the whole stack can be cleared without reallocating.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type stack[T any] struct {
	items []T
}

// Push appends an item on top of the stack.
func (s *stack[T]) Push(item T) {
	s.items = append(s.items, item)
}

// Pop removes and returns the top item.
//
// # Outputs
//
//   - T: The most recently pushed item.
//   - bool: False if the stack is empty.
func (s *stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	top := s.items[len(s.items)-1]
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
	return top, true
}

// Peek returns the top item without removing it.
func (s *stack[T]) Peek() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Len returns the number of items on the stack.
func (s *stack[T]) Len() int { return len(s.items) }

// Clear drops every item, keeping the backing array for reuse.
func (s *stack[T]) Clear() {
	var zero T
	for i := range s.items {
		s.items[i] = zero
	}
	s.items = s.items[:0]
}
