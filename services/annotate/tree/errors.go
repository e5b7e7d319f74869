// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tree package.
var (
	// ErrDuplicateID is returned when registering an id that is already taken
	// for the same node kind.
	ErrDuplicateID = errors.New("id already registered")

	// ErrNotFound is returned when a lookup references an unknown id.
	ErrNotFound = errors.New("node not found")

	// ErrCyclicMove is returned when a move target is the moved node itself
	// or one of its descendants.
	ErrCyclicMove = errors.New("move target is a descendant of the moved node")

	// ErrNotRemovable is returned when remove is called on a node whose
	// removable flag is false.
	ErrNotRemovable = errors.New("node is not removable")

	// ErrNotRenamable is returned when rename is called on a node whose
	// renamable flag is false.
	ErrNotRenamable = errors.New("node is not renamable")

	// ErrNotEditable is returned when a boundary change is attempted on a
	// segment whose editable flag is false.
	ErrNotEditable = errors.New("segment is not editable")

	// ErrInvalidParent is returned when a node is attached under a parent
	// that cannot hold its kind (segments belong to groups, groups belong
	// to group containers).
	ErrInvalidParent = errors.New("parent cannot hold this node kind")

	// ErrInvalidInterval is returned when a segment interval has a negative
	// span or negative start time.
	ErrInvalidInterval = errors.New("invalid time interval")

	// ErrMaxNodesExceeded is returned when adding a node would exceed the
	// configured node limit.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrInvariant is returned by Validate when the duration sums or the
	// hidden/visible partition disagree with the children. It indicates a
	// defect in this package, not a caller error.
	ErrInvariant = errors.New("tree invariant violated")
)

// IDError wraps an error with the node id that caused it.
type IDError struct {
	ID  string
	Err error
}

// Error returns the error message.
func (e *IDError) Error() string {
	return fmt.Sprintf("node %q: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *IDError) Unwrap() error {
	return e.Err
}

// NewIDError creates an IDError.
func NewIDError(id string, err error) *IDError {
	return &IDError{ID: id, Err: err}
}

// CyclicMoveError provides the ancestor path that makes a move cyclic.
type CyclicMoveError struct {
	// NodeID is the node that was being moved.
	NodeID string

	// TargetID is the requested destination.
	TargetID string

	// Path is the chain from NodeID down to TargetID.
	Path []string
}

// Error returns the cycle description.
func (e *CyclicMoveError) Error() string {
	return fmt.Sprintf("cannot move %q into its own subtree (path %v)", e.NodeID, e.Path)
}

// Unwrap lets errors.Is match ErrCyclicMove.
func (e *CyclicMoveError) Unwrap() error {
	return ErrCyclicMove
}

// NewCyclicMoveError creates a CyclicMoveError.
func NewCyclicMoveError(nodeID, targetID string, path []string) *CyclicMoveError {
	return &CyclicMoveError{NodeID: nodeID, TargetID: targetID, Path: path}
}
