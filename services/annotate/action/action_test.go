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

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/evfinkn/speechviz-sub000/services/annotate/peaks"
	"github.com/evfinkn/speechviz-sub000/services/annotate/render"
	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

func newTestTree() (*tree.Tree, *peaks.Recorder) {
	er := peaks.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := tree.NewTree(
		tree.WithRenderer(render.NewRecorder()),
		tree.WithEngine(er),
		tree.WithLogger(logger),
	)
	return tr, er
}

// dumpTree renders the full observable tree state, everything a round trip
// must restore: membership and order, text, checked state, durations,
// boundaries and partitions. Engine ids are deliberately absent since a
// restored marker legitimately gets a fresh one.
func dumpTree(tr *tree.Tree) string {
	var b strings.Builder
	var walk func(it tree.Item, depth int)
	walk = func(it tree.Item, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(&b, "%s%s %s %q checked=%t removable=%t dur=%.3f",
			indent, it.Kind(), it.ID(), it.Text(), it.Checked(), it.Removable(), it.Duration())
		switch v := it.(type) {
		case *tree.Segment:
			fmt.Fprintf(&b, " [%.3f,%.3f) editable=%t", v.Start(), v.End(), v.Editable())
		case *tree.Group:
			fmt.Fprintf(&b, " visible=%v hidden=%v", v.VisibleSegments(), v.HiddenSegments())
		}
		b.WriteByte('\n')
		for _, cid := range it.Children() {
			if c, ok := tr.Get(cid); ok {
				walk(c, depth+1)
			}
		}
	}
	for _, r := range tr.Roots() {
		walk(r, 0)
	}
	return b.String()
}

func checkRoundTrip(t *testing.T, tr *tree.Tree, a Action) {
	t.Helper()
	before := dumpTree(tr)
	if err := a.Do(tr); err != nil {
		t.Fatalf("%s do: %v", a.Name(), err)
	}
	after := dumpTree(tr)
	if err := tr.Validate(); err != nil {
		t.Fatalf("invariants broken after %s: %v", a.Name(), err)
	}

	if err := a.Undo(tr); err != nil {
		t.Fatalf("%s undo: %v", a.Name(), err)
	}
	if got := dumpTree(tr); got != before {
		t.Fatalf("%s undo did not restore the prior state\nbefore:\n%s\nafter undo:\n%s",
			a.Name(), before, got)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("invariants broken after undoing %s: %v", a.Name(), err)
	}

	if err := a.Do(tr); err != nil {
		t.Fatalf("%s redo: %v", a.Name(), err)
	}
	if got := dumpTree(tr); got != after {
		t.Fatalf("%s redo did not restore the applied state\nafter do:\n%s\nafter redo:\n%s",
			a.Name(), after, got)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("invariants broken after redoing %s: %v", a.Name(), err)
	}
}

func seedSpeakers(t *testing.T, tr *tree.Tree) {
	t.Helper()
	on := true
	if _, err := tr.AddGroups(tree.GroupsSpec{ID: "speakers", Removable: &on}); err != nil {
		t.Fatalf("seed speakers: %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		_, err := tr.AddGroup(tree.GroupSpec{ID: id, Parent: "speakers", Removable: &on})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestAdd_RoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)

	a := NewAdd(NodeSpec{
		Kind:      tree.KindSegment,
		Parent:    "alice",
		Text:      "hello",
		Start:     1,
		End:       2.5,
		Checked:   true,
		Removable: true,
		Editable:  true,
	})
	checkRoundTrip(t, tr, a)
}

func TestAdd_SubtreeRoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)

	a := NewAdd(NodeSpec{
		Kind:      tree.KindGroup,
		ID:        "carol",
		Parent:    "speakers",
		Text:      "Carol",
		Checked:   true,
		Removable: true,
		Children: []NodeSpec{
			{Kind: tree.KindSegment, Parent: "carol", Start: 0, End: 1, Checked: true, Removable: true},
			{Kind: tree.KindSegment, Parent: "carol", Start: 2, End: 3, Checked: true, Removable: true},
		},
	})
	checkRoundTrip(t, tr, a)
}

func TestNewAdd_AssignsStableIDs(t *testing.T) {
	a := NewAdd(NodeSpec{Kind: tree.KindSegment, Parent: "g", Start: 0, End: 1})
	if a.Spec.ID == "" {
		t.Fatal("NewAdd must assign an id up front")
	}
	first := a.Spec.ID

	tr, _ := newTestTree()
	on := true
	if _, err := tr.AddGroup(tree.GroupSpec{ID: "g", Removable: &on}); err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	if err := a.Do(tr); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := a.Undo(tr); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if err := a.Do(tr); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if _, ok := tr.Segment(first); !ok {
		t.Error("redo must recreate the same id")
	}
}

func TestRemove_RoundTripRestoresPosition(t *testing.T) {
	tr, _ := newTestTree()
	on := true
	if _, err := tr.AddGroups(tree.GroupsSpec{ID: "speakers"}); err != nil {
		t.Fatalf("AddGroups: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := tr.AddGroup(tree.GroupSpec{ID: id, Parent: "speakers", Removable: &on}); err != nil {
			t.Fatalf("AddGroup: %v", err)
		}
	}
	if _, err := tr.AddSegment(tree.SegmentSpec{Parent: "b", Start: 0, End: 2}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	// Removing the middle group must restore it in the middle, not at the
	// end, with its segment intact.
	checkRoundTrip(t, tr, NewRemove("b"))
}

func TestRemove_MissingID(t *testing.T) {
	tr, _ := newTestTree()
	err := NewRemove("ghost").Do(tr)
	if !errors.Is(err, tree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestMove_RoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)
	if _, err := tr.AddSegment(tree.SegmentSpec{ID: "s", Parent: "alice", Start: 0, End: 2}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if _, err := tr.AddSegment(tree.SegmentSpec{ID: "s2", Parent: "alice", Start: 3, End: 4}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	checkRoundTrip(t, tr, NewMove("s", "bob"))
}

func TestMove_IntoUncheckedGroupRoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)
	if _, err := tr.AddSegment(tree.SegmentSpec{ID: "s", Parent: "alice", Start: 0, End: 2}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if _, err := tr.Toggle("bob", nil); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	// Moving into an unchecked group hides the marker; undo brings it back.
	checkRoundTrip(t, tr, NewMove("s", "bob"))
}

func TestCopy_RoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)
	if _, err := tr.AddSegment(tree.SegmentSpec{ID: "s", Parent: "alice", Text: "hi", Start: 0, End: 2}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	a := NewCopy("s", "bob")
	before := dumpTree(tr)
	if err := a.Do(tr); err != nil {
		t.Fatalf("do: %v", err)
	}
	bob, _ := tr.Group("bob")
	if len(bob.Children()) != 1 {
		t.Fatalf("copy created %d children under bob, want 1", len(bob.Children()))
	}
	if err := a.Undo(tr); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := dumpTree(tr); got != before {
		t.Fatalf("undo did not remove the copies\nbefore:\n%s\nafter:\n%s", before, got)
	}
	if err := a.Do(tr); err != nil {
		t.Fatalf("redo: %v", err)
	}
	bob, _ = tr.Group("bob")
	if len(bob.Children()) != 1 {
		t.Error("redo did not recreate the copy")
	}
}

func TestCopy_NoOpRoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)
	if _, err := tr.AddSegment(tree.SegmentSpec{Parent: "alice", Start: 0, End: 2}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if _, err := tr.AddSegment(tree.SegmentSpec{Parent: "bob", Start: 0, End: 2}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	// Identical boundaries exist, so the copy creates nothing and the undo
	// has nothing to remove.
	checkRoundTrip(t, tr, NewCopy("alice", "bob"))
}

func TestRename_RoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	on := true
	if _, err := tr.AddGroup(tree.GroupSpec{ID: "g", Text: "Before", Renamable: &on}); err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	checkRoundTrip(t, tr, NewRename("g", "After"))
}

func TestRename_NotRenamableLeavesTreeUntouched(t *testing.T) {
	tr, _ := newTestTree()
	if _, err := tr.AddGroup(tree.GroupSpec{ID: "g", Text: "Before"}); err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	before := dumpTree(tr)

	err := NewRename("g", "After").Do(tr)
	if !errors.Is(err, tree.ErrNotRenamable) {
		t.Fatalf("expected ErrNotRenamable, got: %v", err)
	}
	if got := dumpTree(tr); got != before {
		t.Error("failed rename changed the tree")
	}
}

func TestResize_RoundTrip(t *testing.T) {
	tr, _ := newTestTree()
	seedSpeakers(t, tr)
	on := true
	if _, err := tr.AddSegment(tree.SegmentSpec{ID: "s", Parent: "alice", Start: 1, End: 2, Editable: &on}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if _, err := tr.AddSegment(tree.SegmentSpec{ID: "s2", Parent: "alice", Start: 3, End: 4}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	// The resize drags s past s2, so the round trip also covers the
	// re-sorting of siblings.
	checkRoundTrip(t, tr, NewResize("s", 5, 7))
}
