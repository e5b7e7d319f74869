// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"testing"

	"github.com/evfinkn/speechviz-sub000/pkg/logging"
	"github.com/evfinkn/speechviz-sub000/services/annotate"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want logging.Level
	}{
		{"debug", logging.LevelDebug},
		{"info", logging.LevelInfo},
		{"WARN", logging.LevelWarn},
		{"warning", logging.LevelWarn},
		{"error", logging.LevelError},
		{"", logging.LevelInfo},
		{"bogus", logging.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTreeModelRows(t *testing.T) {
	state := &annotate.StateResponse{
		Name: "interview-04",
		Nodes: []annotate.NodeView{
			{
				ID:   "Speakers",
				Kind: "groups",
				Text: "Speakers",
				Children: []annotate.NodeView{
					{ID: "Speaker 1", Kind: "group", Text: "Speaker 1",
						Children: []annotate.NodeView{
							{ID: "Segment#1", Kind: "segment", Text: "Segment 1"},
						}},
				},
			},
			{ID: "VAD", Kind: "group", Text: "VAD"},
		},
	}

	t.Run("collapsed children stay hidden", func(t *testing.T) {
		m := treeModel{state: state, expanded: map[string]bool{}}
		m.rebuildRows()
		if len(m.rows) != 2 {
			t.Fatalf("got %d rows, want 2", len(m.rows))
		}
	})

	t.Run("expanding a node reveals its children at deeper indent", func(t *testing.T) {
		m := treeModel{state: state, expanded: map[string]bool{
			"Speakers":  true,
			"Speaker 1": true,
		}}
		m.rebuildRows()
		if len(m.rows) != 4 {
			t.Fatalf("got %d rows, want 4", len(m.rows))
		}
		if m.rows[1].node.ID != "Speaker 1" || m.rows[1].depth != 1 {
			t.Errorf("row 1 = %s depth %d, want Speaker 1 depth 1",
				m.rows[1].node.ID, m.rows[1].depth)
		}
		if m.rows[2].node.ID != "Segment#1" || m.rows[2].depth != 2 {
			t.Errorf("row 2 = %s depth %d, want Segment#1 depth 2",
				m.rows[2].node.ID, m.rows[2].depth)
		}
	})

	t.Run("cursor clamps to available rows", func(t *testing.T) {
		m := treeModel{state: state, expanded: map[string]bool{}, cursor: 5}
		m.rebuildRows()
		if _, ok := m.currentRow(); ok {
			t.Error("expected no row for an out-of-range cursor")
		}
	})
}
