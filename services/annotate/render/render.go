// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render defines the visual tree renderer contract consumed by the
// annotation tree model. The real renderer lives on the client side of a
// session transport; this package also provides Nop and Recorder
// implementations for headless use and tests.
package render

import "fmt"

// Handle identifies one visual row owned by a renderer. Zero is never a
// valid handle.
type Handle int64

// TreeRenderer is the narrow surface the tree model needs from a visual
// tree. Implementations must tolerate calls for handles they have already
// removed (imports and undo replay can race ahead of a slow client).
type TreeRenderer interface {
	// CreateVisualNode creates a row for the item under the given parent
	// row and returns its handle. A zero parent creates a top-level row.
	CreateVisualNode(parent Handle, id, text string) Handle

	// RemoveVisualNode removes the row and everything nested under it.
	RemoveVisualNode(h Handle)

	// MoveVisualNode reattaches the row under a new parent at the given
	// child position. A negative index appends.
	MoveVisualNode(h, newParent Handle, index int)

	// SetChecked updates the row's checkbox state.
	SetChecked(h Handle, on bool)

	// SetActive highlights (true) or unhighlights (false) the row, used
	// for the currently playing item and the primary ranked group.
	SetActive(h Handle, on bool)

	// SetText updates the row's display label.
	SetText(h Handle, text string)

	// SetTooltip updates the row's hover text.
	SetTooltip(h Handle, tip string)

	// ReorderChildren repositions the rows under parent to the given order.
	ReorderChildren(parent Handle, ordered []Handle)
}

// Nop is a TreeRenderer that does nothing beyond issuing handles. Used for
// headless operations such as batch import and ranking from the CLI.
type Nop struct {
	next Handle
}

// NewNop creates a Nop renderer.
func NewNop() *Nop {
	return &Nop{}
}

// CreateVisualNode issues the next handle.
func (n *Nop) CreateVisualNode(Handle, string, string) Handle {
	n.next++
	return n.next
}

// RemoveVisualNode does nothing.
func (n *Nop) RemoveVisualNode(Handle) {}

// MoveVisualNode does nothing.
func (n *Nop) MoveVisualNode(Handle, Handle, int) {}

// SetChecked does nothing.
func (n *Nop) SetChecked(Handle, bool) {}

// SetActive does nothing.
func (n *Nop) SetActive(Handle, bool) {}

// SetText does nothing.
func (n *Nop) SetText(Handle, string) {}

// SetTooltip does nothing.
func (n *Nop) SetTooltip(Handle, string) {}

// ReorderChildren does nothing.
func (n *Nop) ReorderChildren(Handle, []Handle) {}

// Recorder is a TreeRenderer that records every call as a formatted string.
// Tests assert on the call log to verify ordering and batching.
//
// Thread Safety: NOT safe for concurrent use.
type Recorder struct {
	next Handle

	// Calls holds one entry per renderer invocation, oldest first.
	Calls []string

	// ByHandle maps issued handles back to the item id they were created
	// for, so tests can decode reorder calls.
	ByHandle map[Handle]string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{ByHandle: make(map[Handle]string)}
}

// CreateVisualNode issues a handle and records the creation.
func (r *Recorder) CreateVisualNode(parent Handle, id, text string) Handle {
	r.next++
	r.ByHandle[r.next] = id
	r.record("create %s in %s %q", id, r.name(parent), text)
	return r.next
}

// RemoveVisualNode records the removal.
func (r *Recorder) RemoveVisualNode(h Handle) {
	r.record("remove %s", r.ByHandle[h])
}

// MoveVisualNode records the reattachment.
func (r *Recorder) MoveVisualNode(h, newParent Handle, index int) {
	r.record("move %s to %s at %d", r.ByHandle[h], r.name(newParent), index)
}

// SetChecked records the checkbox update.
func (r *Recorder) SetChecked(h Handle, on bool) {
	r.record("checked %s %t", r.ByHandle[h], on)
}

// SetActive records the expand/collapse update.
func (r *Recorder) SetActive(h Handle, on bool) {
	r.record("active %s %t", r.ByHandle[h], on)
}

// SetText records the label update.
func (r *Recorder) SetText(h Handle, text string) {
	r.record("text %s %q", r.ByHandle[h], text)
}

// SetTooltip records the tooltip update.
func (r *Recorder) SetTooltip(h Handle, tip string) {
	r.record("tooltip %s %q", r.ByHandle[h], tip)
}

// ReorderChildren records the new child order.
func (r *Recorder) ReorderChildren(parent Handle, ordered []Handle) {
	ids := make([]string, len(ordered))
	for i, h := range ordered {
		ids[i] = r.ByHandle[h]
	}
	r.record("reorder %s %v", r.name(parent), ids)
}

// Reset clears the call log without invalidating issued handles.
func (r *Recorder) Reset() {
	r.Calls = nil
}

func (r *Recorder) record(format string, args ...any) {
	r.Calls = append(r.Calls, fmt.Sprintf(format, args...))
}

// name resolves a handle for the call log. The zero handle reads as "root".
func (r *Recorder) name(h Handle) string {
	if h == 0 {
		return "root"
	}
	return r.ByHandle[h]
}
