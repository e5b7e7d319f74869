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
	"testing"
)

func TestMove_SegmentBetweenGroups(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "alice", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "bob", Parent: "speakers"})
	s := mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "alice", Start: 0, End: 2})

	if err := tr.Move("s", "bob"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if s.Parent() != "bob" {
		t.Errorf("parent = %q, want bob", s.Parent())
	}
	alice, _ := tr.Group("alice")
	bob, _ := tr.Group("bob")
	if alice.Duration() != 0 || bob.Duration() != 2 {
		t.Errorf("durations alice=%v bob=%v, want 0 and 2", alice.Duration(), bob.Duration())
	}
	speakers, _ := tr.GroupList("speakers")
	if speakers.Duration() != 2 {
		t.Errorf("root duration = %v, want 2 (unchanged by internal move)", speakers.Duration())
	}
	if len(alice.Children()) != 0 || len(bob.Children()) != 1 {
		t.Error("children lists not updated by move")
	}
	if !bob.inVisible("s") {
		t.Error("segment should be visible under the checked destination")
	}
	mustValidate(t, tr)
}

func TestMove_SegmentIntoUncheckedGroupHidesMarker(t *testing.T) {
	tr, _, er := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "alice", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "bob", Parent: "speakers"})
	s := mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "alice", Start: 0, End: 2})
	if _, err := tr.Toggle("bob", nil); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	er.Reset()

	if err := tr.Move("s", "bob"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if s.ExternalID() != "" {
		t.Error("marker should be removed when moving under an unchecked group")
	}
	if n := countPrefix(er.Calls(), "remove"); n != 1 {
		t.Errorf("engine removes = %d, want 1", n)
	}
	bob, _ := tr.Group("bob")
	if bob.inVisible("s") {
		t.Error("segment should land in the hidden set")
	}
	mustValidate(t, tr)
}

func TestMove_CycleRejected(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "outer"})
	mustGroups(t, tr, GroupsSpec{ID: "inner", Parent: "outer"})

	err := tr.Move("outer", "inner")
	if !errors.Is(err, ErrCyclicMove) {
		t.Fatalf("expected ErrCyclicMove, got: %v", err)
	}
	var cycErr *CyclicMoveError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected CyclicMoveError, got: %T", err)
	}
	if len(cycErr.Path) != 2 || cycErr.Path[0] != "outer" || cycErr.Path[1] != "inner" {
		t.Errorf("cycle path = %v, want [outer inner]", cycErr.Path)
	}
	inner, _ := tr.GroupList("inner")
	if inner.Parent() != "outer" {
		t.Error("rejected move changed the tree")
	}
	mustValidate(t, tr)
}

func TestMove_IntoItselfRejected(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "a"})

	err := tr.Move("a", "a")
	if !errors.Is(err, ErrCyclicMove) {
		t.Fatalf("expected ErrCyclicMove, got: %v", err)
	}
}

func TestMove_SegmentToRootRejected(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroup(t, tr, GroupSpec{ID: "g"})
	mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "g", Start: 0, End: 1})

	err := tr.Move("s", "")
	if !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got: %v", err)
	}
}

func TestMove_SegmentLandsAtStartOrder(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "alice", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "bob", Parent: "speakers"})
	mustSegment(t, tr, SegmentSpec{ID: "b1", Parent: "bob", Start: 0, End: 1})
	mustSegment(t, tr, SegmentSpec{ID: "b2", Parent: "bob", Start: 5, End: 6})
	mustSegment(t, tr, SegmentSpec{ID: "mid", Parent: "alice", Start: 2, End: 3})

	if err := tr.Move("mid", "bob"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	bob, _ := tr.Group("bob")
	want := []string{"b1", "mid", "b2"}
	for i, id := range want {
		if bob.Children()[i] != id {
			t.Fatalf("children = %v, want %v", bob.Children(), want)
		}
	}
}

func TestMoveAt_InsertsAtIndex(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "a", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "b", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "c", Parent: "speakers"})

	// Reorder c to the front of its own parent.
	if err := tr.MoveAt("c", "speakers", 0); err != nil {
		t.Fatalf("MoveAt: %v", err)
	}
	speakers, _ := tr.GroupList("speakers")
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if speakers.Children()[i] != id {
			t.Fatalf("children = %v, want %v", speakers.Children(), want)
		}
	}
	mustValidate(t, tr)
}

func TestCopy_Segment(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "alice", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "bob", Parent: "speakers"})
	src := mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "alice", Text: "hello", Start: 0, End: 2})

	created, err := tr.Copy("s", "bob")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d segments, want 1", len(created))
	}
	cp := created[0]
	if cp.ID() == src.ID() {
		t.Error("copy must get a fresh id")
	}
	if cp.Start() != 0 || cp.End() != 2 || cp.Text() != "hello" {
		t.Errorf("copy fields start=%v end=%v text=%q", cp.Start(), cp.End(), cp.Text())
	}
	if !cp.Removable() {
		t.Error("copies are user content and must be removable")
	}
	if src.Parent() != "alice" {
		t.Error("copy mutated the source")
	}
	bob, _ := tr.Group("bob")
	if bob.Duration() != 2 {
		t.Errorf("destination duration = %v, want 2", bob.Duration())
	}
	mustValidate(t, tr)
}

func TestCopy_AlreadyPresent(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "alice", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "bob", Parent: "speakers"})
	mustSegment(t, tr, SegmentSpec{Parent: "alice", Start: 0, End: 2})
	mustSegment(t, tr, SegmentSpec{Parent: "bob", Start: 0, End: 2})
	before := tr.Len()

	created, err := tr.Copy("alice", "bob")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created %d segments, want 0 for identical boundaries", len(created))
	}
	if tr.Len() != before {
		t.Error("no-op copy changed the tree size")
	}
}

func TestCopy_GroupCopiesMissingSegments(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "alice", Parent: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "bob", Parent: "speakers"})
	mustSegment(t, tr, SegmentSpec{Parent: "alice", Start: 0, End: 1})
	mustSegment(t, tr, SegmentSpec{Parent: "alice", Start: 2, End: 3})
	mustSegment(t, tr, SegmentSpec{Parent: "bob", Start: 0, End: 1})

	created, err := tr.Copy("alice", "bob")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d segments, want only the missing one", len(created))
	}
	if created[0].Start() != 2 || created[0].End() != 3 {
		t.Errorf("copied wrong segment [%v, %v)", created[0].Start(), created[0].End())
	}
	mustValidate(t, tr)
}

func TestCopy_IntoContainerRejected(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "g", Parent: "speakers"})
	mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "g", Start: 0, End: 1})

	_, err := tr.Copy("s", "speakers")
	if !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got: %v", err)
	}
}

func TestExpandMoveTo(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "labels"})
	mustGroup(t, tr, GroupSpec{ID: "noise", Parent: "labels"})
	mustGroup(t, tr, GroupSpec{ID: "music", Parent: "labels"})
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{
		ID:     "alice",
		Parent: "speakers",
		MoveTo: []string{"labels", "alice"},
	})
	mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "alice", Start: 0, End: 1})

	dests, err := tr.ExpandMoveTo("s")
	if err != nil {
		t.Fatalf("ExpandMoveTo: %v", err)
	}
	ids := make([]string, len(dests))
	for i, g := range dests {
		ids[i] = g.ID()
	}
	if len(ids) != 2 || ids[0] != "noise" || ids[1] != "music" {
		t.Errorf("destinations = %v, want [noise music] with the parent excluded", ids)
	}
}

func TestExpandMoveTo_GrowsWithNewGroups(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "labels"})
	mustGroup(t, tr, GroupSpec{ID: "alice", MoveTo: []string{"labels"}})
	mustSegment(t, tr, SegmentSpec{ID: "s", Parent: "alice", Start: 0, End: 1})

	dests, err := tr.ExpandMoveTo("s")
	if err != nil {
		t.Fatalf("ExpandMoveTo: %v", err)
	}
	if len(dests) != 0 {
		t.Fatalf("destinations = %d, want 0 before any label exists", len(dests))
	}

	// Destinations are expanded lazily, so a label created later shows up.
	mustGroup(t, tr, GroupSpec{ID: "noise", Parent: "labels"})
	dests, err = tr.ExpandMoveTo("s")
	if err != nil {
		t.Fatalf("ExpandMoveTo: %v", err)
	}
	if len(dests) != 1 || dests[0].ID() != "noise" {
		t.Errorf("destinations after label creation = %v, want [noise]", dests)
	}
}
