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
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

func newTestHistory(t *testing.T) (*History, *tree.Tree) {
	t.Helper()
	tr, _ := newTestTree()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHistory(tr, WithLogger(logger)), tr
}

func groupAdd(id string) *Add {
	return NewAdd(NodeSpec{
		Kind:      tree.KindGroup,
		ID:        id,
		Text:      id,
		Checked:   true,
		Removable: true,
	})
}

func TestHistory_ApplyPushesUndo(t *testing.T) {
	h, tr := newTestHistory(t)

	if err := h.Apply(groupAdd("a")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !h.CanUndo() || h.UndoLen() != 1 {
		t.Error("applied action missing from the undo stack")
	}
	if h.CanRedo() {
		t.Error("redo stack should be empty after a fresh apply")
	}
	if _, ok := tr.Group("a"); !ok {
		t.Error("apply did not mutate the tree")
	}
}

func TestHistory_ApplyFailureRecordsNothing(t *testing.T) {
	h, tr := newTestHistory(t)
	if err := h.Apply(groupAdd("a")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err := h.Apply(groupAdd("a"))
	if !errors.Is(err, tree.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got: %v", err)
	}
	if h.UndoLen() != 1 {
		t.Errorf("failed apply changed undo depth to %d", h.UndoLen())
	}
	if tr.Len() != 1 {
		t.Errorf("failed apply changed the tree to %d items", tr.Len())
	}
}

func TestHistory_NewApplyClearsRedo(t *testing.T) {
	h, _ := newTestHistory(t)
	if err := h.Apply(groupAdd("a")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := h.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !h.CanRedo() {
		t.Fatal("redo should be available after undo")
	}

	if err := h.Apply(groupAdd("b")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if h.CanRedo() || h.RedoLen() != 0 {
		t.Error("pushing a new action must empty the redo stack")
	}
}

func TestHistory_EmptyStacks(t *testing.T) {
	h, _ := newTestHistory(t)

	if err := h.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got: %v", err)
	}
	if err := h.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("expected ErrNothingToRedo, got: %v", err)
	}
}

func TestHistory_UndoRedoSequence(t *testing.T) {
	h, tr := newTestHistory(t)
	if err := h.Apply(groupAdd("a")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := h.Apply(groupAdd("b")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	snapshot := dumpTree(tr)

	if err := h.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if err := h.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("tree has %d items after undoing everything", tr.Len())
	}
	if err := h.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if err := h.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if got := dumpTree(tr); got != snapshot {
		t.Fatalf("redo all did not rebuild the tree\nwant:\n%s\ngot:\n%s", snapshot, got)
	}
}

func TestHistory_ReplayFailureDisables(t *testing.T) {
	h, _ := newTestHistory(t)

	// An add of a non-removable item cannot be undone; that is history
	// corruption and must poison the stacks rather than pass silently.
	bad := NewAdd(NodeSpec{Kind: tree.KindGroup, ID: "locked", Checked: true})
	if err := h.Apply(bad); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err := h.Undo()
	if !errors.Is(err, tree.ErrNotRemovable) {
		t.Fatalf("expected ErrNotRemovable, got: %v", err)
	}
	if !h.Disabled() {
		t.Fatal("history should be disabled after a replay failure")
	}
	if err := h.Undo(); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("expected ErrHistoryDisabled, got: %v", err)
	}
	if err := h.Redo(); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("expected ErrHistoryDisabled, got: %v", err)
	}
	if h.CanUndo() || h.CanRedo() {
		t.Error("disabled history still reports replayable actions")
	}
}

func TestHistory_EndToEndScenario(t *testing.T) {
	tr, engine := newTestTree()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHistory(tr, WithLogger(logger))

	if err := h.Apply(groupAdd("speaker1")); err != nil {
		t.Fatalf("add group: %v", err)
	}
	if err := h.Apply(NewAdd(NodeSpec{
		Kind:      tree.KindSegment,
		Parent:    "speaker1",
		Start:     0,
		End:       2,
		Checked:   true,
		Removable: true,
	})); err != nil {
		t.Fatalf("add segment: %v", err)
	}

	engine.Reset()
	off := false
	changed, err := tr.Toggle("speaker1", &off)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !changed {
		t.Fatal("toggle off should change state")
	}
	g, _ := tr.Group("speaker1")
	if len(g.HiddenSegments()) != 1 || len(g.VisibleSegments()) != 0 {
		t.Fatal("segment should have moved to the hidden set")
	}
	removes := 0
	for _, c := range engine.Calls() {
		if strings.HasPrefix(c, "remove") {
			removes++
		}
	}
	if removes != 1 {
		t.Fatalf("engine remove calls = %d, want exactly 1", removes)
	}

	if err := h.Undo(); err != nil {
		t.Fatalf("undo segment add: %v", err)
	}
	if err := h.Undo(); err != nil {
		t.Fatalf("undo group add: %v", err)
	}
	if tr.Len() != 0 || len(tr.Roots()) != 0 {
		t.Fatalf("tree not empty after undoing everything: %d items", tr.Len())
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
