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
	"github.com/evfinkn/speechviz-sub000/services/annotate/render"
)

// Kind identifies the concrete type of a tree item.
type Kind int

const (
	// KindGroup is a group holding segment children directly.
	KindGroup Kind = iota

	// KindGroups is a container holding only Group/Groups children.
	KindGroups

	// KindSegment is a leaf wrapping one labeled time interval.
	KindSegment
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindGroups:
		return "groups"
	case KindSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Item is the capability set shared by Group, Groups and Segment.
//
// Description:
//
//	Items form a parent/child hierarchy stored in a Tree arena. Parent and
//	child links are ids resolved through the tree's registry, never live
//	references, so persisted actions and rebuilt trees resolve the same way.
//	The set of implementations is closed: dispatch happens on Kind().
//
// Thread Safety:
//
//	NOT safe for concurrent use; the owning Tree must be confined to a
//	single goroutine or externally synchronized.
type Item interface {
	// ID returns the unique id of the item within its kind.
	ID() string

	// Kind returns the concrete kind used for dispatch.
	Kind() Kind

	// Parent returns the parent id, or "" for a root item.
	Parent() string

	// Children returns the child ids in display order. The returned slice
	// is the live backing slice; callers must not mutate it.
	Children() []string

	// Text returns the display label.
	Text() string

	// Duration returns the total duration in seconds of all descendant
	// segments, hidden or visible.
	Duration() float64

	// Checked reports whether the item is currently toggled on.
	Checked() bool

	// Removable reports whether Remove is permitted for this item.
	Removable() bool

	// Renamable reports whether Rename is permitted for this item.
	Renamable() bool

	// Visual returns the renderer handle for this item's row.
	Visual() render.Handle

	setParent(id string)
	setText(text string)
	setChecked(on bool)
	setVisual(h render.Handle)
	addDuration(delta float64)
	addChild(id string)
	insertChildAt(id string, index int)
	removeChild(id string)
	childIndex(id string) int
}

// base carries the fields common to all item kinds. Concrete kinds embed it.
type base struct {
	id        string
	parent    string
	children  []string
	text      string
	duration  float64
	checked   bool
	removable bool
	renamable bool
	visual    render.Handle
}

func (b *base) ID() string            { return b.id }
func (b *base) Parent() string        { return b.parent }
func (b *base) Children() []string    { return b.children }
func (b *base) Text() string          { return b.text }
func (b *base) Duration() float64     { return b.duration }
func (b *base) Checked() bool         { return b.checked }
func (b *base) Removable() bool       { return b.removable }
func (b *base) Renamable() bool       { return b.renamable }
func (b *base) Visual() render.Handle { return b.visual }

func (b *base) setParent(id string)       { b.parent = id }
func (b *base) setText(text string)       { b.text = text }
func (b *base) setChecked(on bool)        { b.checked = on }
func (b *base) setVisual(h render.Handle) { b.visual = h }
func (b *base) addDuration(delta float64) { b.duration += delta }

func (b *base) addChild(id string) {
	b.children = append(b.children, id)
}

func (b *base) insertChildAt(id string, index int) {
	if index < 0 || index > len(b.children) {
		index = len(b.children)
	}
	b.children = append(b.children, "")
	copy(b.children[index+1:], b.children[index:])
	b.children[index] = id
}

func (b *base) removeChild(id string) {
	for i, c := range b.children {
		if c == id {
			b.children = append(b.children[:i], b.children[i+1:]...)
			return
		}
	}
}

func (b *base) childIndex(id string) int {
	for i, c := range b.children {
		if c == id {
			return i
		}
	}
	return -1
}

// Group is a tree item holding segment children directly. It tracks the
// hidden/visible partition of those children and an optional SNR metric
// used for display ranking.
type Group struct {
	base

	snr     *float64
	hidden  map[string]struct{}
	visible map[string]struct{}
	moveTo  []string
	copyTo  []string
}

// Kind returns KindGroup.
func (g *Group) Kind() Kind { return KindGroup }

// SNR returns the signal-to-noise metric and whether one is set.
func (g *Group) SNR() (float64, bool) {
	if g.snr == nil {
		return 0, false
	}
	return *g.snr, true
}

// MoveTo returns the declared move destination ids.
func (g *Group) MoveTo() []string { return g.moveTo }

// CopyTo returns the declared copy destination ids.
func (g *Group) CopyTo() []string { return g.copyTo }

// VisibleSegments returns the ids currently in the visible set, in child
// order.
func (g *Group) VisibleSegments() []string {
	return g.partitionInOrder(g.visible)
}

// HiddenSegments returns the ids currently in the hidden set, in child order.
func (g *Group) HiddenSegments() []string {
	return g.partitionInOrder(g.hidden)
}

// partitionInOrder filters children by partition membership, preserving
// child order so engine batches stay deterministic.
func (g *Group) partitionInOrder(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, id := range g.children {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (g *Group) markVisible(id string) {
	delete(g.hidden, id)
	g.visible[id] = struct{}{}
}

func (g *Group) markHidden(id string) {
	delete(g.visible, id)
	g.hidden[id] = struct{}{}
}

func (g *Group) dropFromPartition(id string) {
	delete(g.visible, id)
	delete(g.hidden, id)
}

func (g *Group) inVisible(id string) bool {
	_, ok := g.visible[id]
	return ok
}

// Groups is a pure structural container holding Group and Groups children.
// It has no partition of its own; visibility recurses into children, and
// child order is insertion order.
type Groups struct {
	base
}

// Kind returns KindGroups.
func (g *Groups) Kind() Kind { return KindGroups }

// Segment is a leaf item wrapping one labeled time interval
// [start, end) in seconds.
type Segment struct {
	base

	start      float64
	end        float64
	editable   bool
	color      string
	labelText  string
	externalID string
}

// Kind returns KindSegment.
func (s *Segment) Kind() Kind { return KindSegment }

// Duration returns end - start. Segments have no children; their duration
// is derived from the interval boundaries.
func (s *Segment) Duration() float64 { return s.end - s.start }

// Start returns the interval start time in seconds.
func (s *Segment) Start() float64 { return s.start }

// End returns the exclusive interval end time in seconds.
func (s *Segment) End() float64 { return s.end }

// Editable reports whether boundary changes are permitted.
func (s *Segment) Editable() bool { return s.editable }

// Color returns the marker color.
func (s *Segment) Color() string { return s.color }

// LabelText returns the label shown on the waveform marker.
func (s *Segment) LabelText() string { return s.labelText }

// ExternalID returns the waveform engine id for the segment's marker, or ""
// while the marker is not present in the engine.
func (s *Segment) ExternalID() string { return s.externalID }

func (s *Segment) addDuration(float64) {
	// Segment duration is derived from boundaries; bubbled deltas stop at
	// the segment's ancestors.
}

func (s *Segment) setInterval(start, end float64) {
	s.start = start
	s.end = end
}

func (s *Segment) setExternalID(id string) { s.externalID = id }

// effectiveLabel is the label handed to the waveform engine: LabelText when
// set, the display text otherwise.
func (s *Segment) effectiveLabel() string {
	if s.labelText != "" {
		return s.labelText
	}
	return s.text
}
