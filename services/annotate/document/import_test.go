// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

func newDocTree() *tree.Tree {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return tree.NewTree(tree.WithLogger(logger))
}

func newDocImporter(opts ...ImporterOption) *Importer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImporter(append([]ImporterOption{WithImportLogger(logger)}, opts...)...)
}

const legacyDoc = `[
  ["Speakers", [
    ["Speaker 1", [
      {"id": "seg1", "startTime": 0, "endTime": 2.5, "labelText": "hello", "editable": true},
      {"id": "seg2", "startTime": 3, "endTime": 4}
    ], 7.5],
    ["Speaker 2", [
      {"id": "seg3", "startTime": 1, "endTime": 2}
    ], 4.2]
  ], null],
  ["Notes", [], null]
]`

func TestImport_LegacyTuples(t *testing.T) {
	tr := newDocTree()
	res, err := newDocImporter().Import(context.Background(), tr, []byte(legacyDoc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Version != "v1" {
		t.Errorf("version = %q, want v1", res.Version)
	}
	if res.Containers != 1 || res.Groups != 3 || res.Segments != 3 {
		t.Errorf("counts = %d containers, %d groups, %d segments, want 1/3/3",
			res.Containers, res.Groups, res.Segments)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("unexpected skips: %v", res.Skipped)
	}

	if _, ok := tr.GroupList("Speakers"); !ok {
		t.Fatal("Speakers should be a container")
	}
	sp1, ok := tr.Group("Speaker 1")
	if !ok {
		t.Fatal("Speaker 1 should be a group")
	}
	if snr, ok := sp1.SNR(); !ok || snr != 7.5 {
		t.Errorf("Speaker 1 snr = %v %v, want 7.5 true", snr, ok)
	}
	if notes, ok := tr.Group("Notes"); !ok {
		t.Error("Notes should be a leaf group")
	} else if _, ok := notes.SNR(); ok {
		t.Error("Notes should have no snr")
	}
	seg, ok := tr.Segment("seg1")
	if !ok {
		t.Fatal("seg1 missing")
	}
	if seg.LabelText() != "hello" || seg.End() != 2.5 {
		t.Errorf("seg1 = [%v, %v) label %q", seg.Start(), seg.End(), seg.LabelText())
	}
	if res.LoadedParents["seg3"] != "Speaker 2" {
		t.Errorf("loaded parent of seg3 = %q, want Speaker 2", res.LoadedParents["seg3"])
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestImport_LegacyMixedChildrenSkipped(t *testing.T) {
	doc := `[["Broken", [["Nested", [], null], {"id": "s", "startTime": 0, "endTime": 1}], null]]`
	tr := newDocTree()
	res, err := newDocImporter().Import(context.Background(), tr, []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("skipped = %v, want one mixed-children reason", res.Skipped)
	}
	if tr.Len() != 0 {
		t.Errorf("tree has %d nodes, want none", tr.Len())
	}
}

const typedDoc = `{
  "formatVersion": "v2",
  "annotations": [
    {"type": "Groups", "arguments": ["Speakers"], "options": {
      "children": [
        {"type": "Group", "arguments": ["Speaker 1"], "options": {"snr": 7.5, "children": [
          {"type": "Segment", "arguments": ["seg1"],
           "options": {"startTime": 0, "endTime": 2.5, "labelText": "hello"}}
        ]}},
        {"type": "Group", "arguments": ["Speaker 2"], "options": {"snr": 4.2, "copyTo": ["Notes"]}}
      ],
      "childrenOptions": {"removable": true, "moveTo": ["Speakers"]}
    }},
    {"type": "Group", "arguments": ["Notes"], "options": {}},
    {"type": "Segment", "arguments": ["seg2"],
     "options": {"parent": "Speaker 2", "startTime": 1, "endTime": 2, "editable": true}}
  ]
}`

func TestImport_TypedDocument(t *testing.T) {
	tr := newDocTree()
	res, err := newDocImporter().Import(context.Background(), tr, []byte(typedDoc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Version != "v2" {
		t.Errorf("version = %q, want v2", res.Version)
	}
	if res.Containers != 1 || res.Groups != 3 || res.Segments != 2 {
		t.Errorf("counts = %d containers, %d groups, %d segments, want 1/3/2",
			res.Containers, res.Groups, res.Segments)
	}

	sp2, ok := tr.Group("Speaker 2")
	if !ok {
		t.Fatal("Speaker 2 missing")
	}
	if sp2.Parent() != "Speakers" {
		t.Errorf("Speaker 2 parent = %q, want Speakers", sp2.Parent())
	}
	seg2, ok := tr.Segment("seg2")
	if !ok {
		t.Fatal("seg2 missing")
	}
	if seg2.Parent() != "Speaker 2" || !seg2.Editable() {
		t.Errorf("seg2 parent %q editable %t, want Speaker 2 true", seg2.Parent(), seg2.Editable())
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestImport_ChildrenOptionsDefaults(t *testing.T) {
	tr := newDocTree()
	if _, err := newDocImporter().Import(context.Background(), tr, []byte(typedDoc)); err != nil {
		t.Fatalf("Import: %v", err)
	}

	// childrenOptions marked both speaker groups removable with a moveTo
	// list; explicit options on a child still win.
	for _, id := range []string{"Speaker 1", "Speaker 2"} {
		g, ok := tr.Group(id)
		if !ok {
			t.Fatalf("%s missing", id)
		}
		if !g.Removable() {
			t.Errorf("%s should inherit removable from childrenOptions", id)
		}
		if len(g.MoveTo()) != 1 || g.MoveTo()[0] != "Speakers" {
			t.Errorf("%s moveTo = %v, want [Speakers]", id, g.MoveTo())
		}
	}
	sp2, _ := tr.Group("Speaker 2")
	if len(sp2.CopyTo()) != 1 || sp2.CopyTo()[0] != "Notes" {
		t.Errorf("Speaker 2 copyTo = %v, want its own [Notes]", sp2.CopyTo())
	}

	// Defaults do not cascade past direct children.
	seg1, _ := tr.Segment("seg1")
	if seg1.Removable() {
		t.Error("seg1 should not inherit removable from its grandparent's childrenOptions")
	}
}

func TestImport_VersionGate(t *testing.T) {
	testCases := []struct {
		name    string
		version string
		wantErr error
	}{
		{name: "newer major rejected", version: "v3", wantErr: ErrUnsupportedVersion},
		{name: "newer full version rejected", version: "v3.0.1", wantErr: ErrUnsupportedVersion},
		{name: "missing v prefix rejected", version: "2.0.0", wantErr: ErrUnsupportedVersion},
		{name: "current minor accepted", version: "v2.1.5"},
		{name: "empty means current", version: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := `{"formatVersion": "` + tc.version + `", "annotations": []}`
			if tc.version == "" {
				doc = `{"annotations": []}`
			}
			res, err := newDocImporter().Import(context.Background(), newDocTree(), []byte(doc))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if res.Version == "" {
				t.Error("resolved version should not be empty")
			}
		})
	}
}

func TestImport_VersionedLegacyAnnotations(t *testing.T) {
	doc := `{"formatVersion": "v1.0.0", "annotations": [["Words", [
      {"id": "w1", "startTime": 0.5, "endTime": 0.9}
    ], null]]}`
	tr := newDocTree()
	res, err := newDocImporter().Import(context.Background(), tr, []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Groups != 1 || res.Segments != 1 {
		t.Errorf("counts = %d groups, %d segments, want 1/1", res.Groups, res.Segments)
	}
	if _, ok := tr.Group("Words"); !ok {
		t.Error("Words group missing; v1 envelopes should decode as tuples")
	}
}

func TestImport_SecondImportTreatedAsLoaded(t *testing.T) {
	tr := newDocTree()
	im := newDocImporter()
	if _, err := im.Import(context.Background(), tr, []byte(legacyDoc)); err != nil {
		t.Fatalf("first Import: %v", err)
	}
	before := tr.Len()

	res, err := im.Import(context.Background(), tr, []byte(legacyDoc))
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if res.imported() != 0 {
		t.Errorf("second import created %d nodes, want none", res.imported())
	}
	if len(res.Skipped) == 0 {
		t.Error("second import should report already-loaded skips")
	}
	if tr.Len() != before {
		t.Errorf("tree grew from %d to %d nodes", before, tr.Len())
	}
}

func TestImport_UnknownTypeSkipped(t *testing.T) {
	doc := `{"annotations": [
      {"type": "Waveform", "arguments": ["w"], "options": {}},
      {"type": "Group", "arguments": ["Kept"], "options": {}}
    ]}`
	tr := newDocTree()
	res, err := newDocImporter().Import(context.Background(), tr, []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Skipped) != 1 {
		t.Errorf("skipped = %v, want the unknown type only", res.Skipped)
	}
	if _, ok := tr.Group("Kept"); !ok {
		t.Error("entries after a skipped one should still import")
	}
}

func TestImport_StrictFailsOnSkip(t *testing.T) {
	doc := `{"annotations": [{"type": "Waveform", "arguments": ["w"], "options": {}}]}`
	_, err := newDocImporter(WithStrict()).Import(context.Background(), newDocTree(), []byte(doc))
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("err = %v, want ErrMalformedDocument", err)
	}
}

func TestImport_EmptyAndMalformed(t *testing.T) {
	testCases := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "empty", data: "", wantErr: ErrEmptyDocument},
		{name: "whitespace", data: " \n\t ", wantErr: ErrEmptyDocument},
		{name: "not json", data: "annotations", wantErr: ErrMalformedDocument},
		{name: "truncated array", data: "[1, 2", wantErr: ErrMalformedDocument},
		{name: "truncated object", data: `{"annotations": `, wantErr: ErrMalformedDocument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newDocImporter().Import(context.Background(), newDocTree(), []byte(tc.data))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestImport_SegmentAtTopLevelNeedsParent(t *testing.T) {
	doc := `{"annotations": [{"type": "Segment", "arguments": ["s"],
      "options": {"startTime": 0, "endTime": 1}}]}`
	tr := newDocTree()
	res, err := newDocImporter().Import(context.Background(), tr, []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Skipped) != 1 || res.Segments != 0 {
		t.Errorf("segment without a parent should be skipped, got %+v", res)
	}
}
