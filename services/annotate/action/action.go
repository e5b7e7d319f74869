// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package action wraps every structural tree mutation in a reversible
// command object and maintains the undo/redo history over them. Actions
// hold ids and snapshots rather than live items, and capture the inverse
// state at apply time, so undoing after unrelated mutations still resolves
// correctly through the tree's registry.
package action

import (
	"github.com/google/uuid"

	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// Action is one reversible structural mutation. Do applies the mutation,
// both on first execution and on redo. Undo reverses a previously applied
// Do. A failed Do must leave the tree unchanged; a failed Undo or redo
// poisons the owning History.
type Action interface {
	// Name returns a short label for logs and error messages.
	Name() string

	Do(t *tree.Tree) error
	Undo(t *tree.Tree) error
}

// ====== Add ======

// Add creates an item, or a whole subtree, from a snapshot.
type Add struct {
	Spec NodeSpec
}

// NewAdd builds an add action. Missing ids in the spec are assigned now so
// that redo after undo recreates the exact same ids, keeping later actions
// that reference them valid. Items an Add creates should be removable, or
// undoing the add will fail.
func NewAdd(spec NodeSpec) *Add {
	ensureIDs(&spec)
	return &Add{Spec: spec}
}

func ensureIDs(spec *NodeSpec) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	for i := range spec.Children {
		ensureIDs(&spec.Children[i])
	}
}

// Name returns "add <kind>".
func (a *Add) Name() string { return "add " + a.Spec.Kind.String() }

// Do creates the item and its snapshot subtree.
func (a *Add) Do(t *tree.Tree) error { return restore(t, a.Spec) }

// Undo removes the created item, taking its subtree with it.
func (a *Add) Undo(t *tree.Tree) error { return t.Remove(a.Spec.ID) }

// ====== Remove ======

// Remove deletes an item and its subtree, remembering enough to rebuild it.
type Remove struct {
	ID string

	snapshot NodeSpec
	index    int
}

// NewRemove builds a remove action for the item with the given id.
func NewRemove(id string) *Remove {
	return &Remove{ID: id, index: -1}
}

// Name returns "remove".
func (a *Remove) Name() string { return "remove" }

// Do snapshots the subtree and its sibling position, then removes it.
func (a *Remove) Do(t *tree.Tree) error {
	snap, err := SnapshotNode(t, a.ID)
	if err != nil {
		return err
	}
	idx := siblingIndex(t, a.ID)
	if err := t.Remove(a.ID); err != nil {
		return err
	}
	a.snapshot = snap
	a.index = idx
	return nil
}

// Undo rebuilds the removed subtree at its original sibling position.
func (a *Remove) Undo(t *tree.Tree) error {
	if err := restore(t, a.snapshot); err != nil {
		return err
	}
	// Segments re-sort by start time on their own; containers need their
	// recorded position back.
	if a.snapshot.Kind != tree.KindSegment && a.index >= 0 {
		return t.MoveAt(a.ID, a.snapshot.Parent, a.index)
	}
	return nil
}

// ====== Move ======

// Move relocates an item under a new parent.
type Move struct {
	ID string
	To string

	from      string
	fromIndex int
}

// NewMove builds a move action relocating id under the parent to.
func NewMove(id, to string) *Move {
	return &Move{ID: id, To: to, fromIndex: -1}
}

// Name returns "move".
func (a *Move) Name() string { return "move" }

// Do records the current position and moves the item.
func (a *Move) Do(t *tree.Tree) error {
	it, ok := t.Get(a.ID)
	if !ok {
		return tree.NewIDError(a.ID, tree.ErrNotFound)
	}
	from := it.Parent()
	fromIndex := siblingIndex(t, a.ID)
	if err := t.Move(a.ID, a.To); err != nil {
		return err
	}
	a.from = from
	a.fromIndex = fromIndex
	return nil
}

// Undo moves the item back to its recorded parent and position.
func (a *Move) Undo(t *tree.Tree) error {
	return t.MoveAt(a.ID, a.from, a.fromIndex)
}

// ====== Copy ======

// Copy duplicates a segment, or a group's segments, into a destination
// group.
type Copy struct {
	ID   string
	Dest string

	created []string
}

// NewCopy builds a copy action duplicating id into the group dest.
func NewCopy(id, dest string) *Copy {
	return &Copy{ID: id, Dest: dest}
}

// Name returns "copy".
func (a *Copy) Name() string { return "copy" }

// Do performs the copy and records what was created. A copy where every
// boundary already exists creates nothing and undoes to a no-op.
func (a *Copy) Do(t *tree.Tree) error {
	created, err := t.Copy(a.ID, a.Dest)
	if err != nil {
		return err
	}
	a.created = a.created[:0]
	for _, s := range created {
		a.created = append(a.created, s.ID())
	}
	return nil
}

// Undo removes the created copies, newest first.
func (a *Copy) Undo(t *tree.Tree) error {
	for i := len(a.created) - 1; i >= 0; i-- {
		if err := t.Remove(a.created[i]); err != nil {
			return err
		}
	}
	return nil
}

// Created returns the ids of the segments the last Do created.
func (a *Copy) Created() []string {
	return append([]string(nil), a.created...)
}

// ====== Rename ======

// Rename changes an item's display text.
type Rename struct {
	ID string
	To string

	from string
}

// NewRename builds a rename action setting id's text to to.
func NewRename(id, to string) *Rename {
	return &Rename{ID: id, To: to}
}

// Name returns "rename".
func (a *Rename) Name() string { return "rename" }

// Do records the current text and renames the item.
func (a *Rename) Do(t *tree.Tree) error {
	it, ok := t.Get(a.ID)
	if !ok {
		return tree.NewIDError(a.ID, tree.ErrNotFound)
	}
	from := it.Text()
	if err := t.Rename(a.ID, a.To); err != nil {
		return err
	}
	a.from = from
	return nil
}

// Undo restores the recorded text.
func (a *Rename) Undo(t *tree.Tree) error {
	return t.Rename(a.ID, a.from)
}

// ====== Resize ======

// Resize changes a segment's interval boundaries, the model half of a
// drag-resize gesture.
type Resize struct {
	ID    string
	Start float64
	End   float64

	fromStart float64
	fromEnd   float64
}

// NewResize builds a resize action setting id's boundaries.
func NewResize(id string, start, end float64) *Resize {
	return &Resize{ID: id, Start: start, End: end}
}

// Name returns "resize".
func (a *Resize) Name() string { return "resize" }

// Do records the current boundaries and applies the new ones.
func (a *Resize) Do(t *tree.Tree) error {
	s, ok := t.Segment(a.ID)
	if !ok {
		return tree.NewIDError(a.ID, tree.ErrNotFound)
	}
	fromStart, fromEnd := s.Start(), s.End()
	if err := t.Resize(a.ID, a.Start, a.End); err != nil {
		return err
	}
	a.fromStart = fromStart
	a.fromEnd = fromEnd
	return nil
}

// Undo restores the recorded boundaries.
func (a *Resize) Undo(t *tree.Tree) error {
	return t.Resize(a.ID, a.fromStart, a.fromEnd)
}

// siblingIndex returns the item's position among its parent's children, or
// among the roots for a top-level item. Unknown ids report -1.
func siblingIndex(t *tree.Tree, id string) int {
	it, ok := t.Get(id)
	if !ok {
		return -1
	}
	if it.Parent() == "" {
		for i, r := range t.Roots() {
			if r.ID() == id {
				return i
			}
		}
		return -1
	}
	p, ok := t.Get(it.Parent())
	if !ok {
		return -1
	}
	for i, cid := range p.Children() {
		if cid == id {
			return i
		}
	}
	return -1
}
