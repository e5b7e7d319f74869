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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// SegmentRecord is the flat saved form of one segment. Path is the
// slash-joined chain of ancestor ids, root first; ids are stable under
// rename and ranking where display texts are not.
type SegmentRecord struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Editable  bool    `json:"editable"`
	Color     string  `json:"color,omitempty"`
	LabelText string  `json:"labelText,omitempty"`
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	TreeText  string  `json:"treeText"`
	Removable bool    `json:"removable"`
}

// MovedSegment records a segment whose parent group changed after load.
type MovedSegment struct {
	ID           string `json:"id"`
	LoadedParent string `json:"loadedParent"`
	Parent       string `json:"parent"`
}

// SavePayload is the persisted form of a document's annotations: every
// segment as a flat record, sorted by path then start time, plus the
// moved-segment deltas.
type SavePayload struct {
	FormatVersion string          `json:"formatVersion"`
	Segments      []SegmentRecord `json:"segments"`
	Moved         []MovedSegment  `json:"movedSegments,omitempty"`
}

// Encode walks the tree and builds its save payload. loadedParents is the
// map captured by Import; segments whose current parent differs from their
// loaded one produce moved-segment deltas. Segments created after load are
// never reported as moved. A nil map is allowed.
func Encode(ctx context.Context, t *tree.Tree, loadedParents map[string]string) (*SavePayload, error) {
	ctx, span := startEncodeSpan(ctx)
	defer span.End()
	start := time.Now()

	if t == nil {
		return nil, fmt.Errorf("%w: tree must not be nil", ErrInvalidInput)
	}

	payload := &SavePayload{FormatVersion: SupportedVersion}
	var walk func(it tree.Item) error
	walk = func(it tree.Item) error {
		if s, ok := it.(*tree.Segment); ok {
			rec, err := segmentRecord(t, s)
			if err != nil {
				return err
			}
			payload.Segments = append(payload.Segments, rec)
			if from, ok := loadedParents[s.ID()]; ok && from != s.Parent() {
				payload.Moved = append(payload.Moved, MovedSegment{
					ID:           s.ID(),
					LoadedParent: from,
					Parent:       s.Parent(),
				})
			}
			return nil
		}
		for _, cid := range it.Children() {
			child, ok := t.Get(cid)
			if !ok {
				return fmt.Errorf("child %q of %q is not registered: %w", cid, it.ID(), tree.ErrNotFound)
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range t.Roots() {
		if err := walk(root); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(payload.Segments, func(i, j int) bool {
		a, b := payload.Segments[i], payload.Segments[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.StartTime < b.StartTime
	})
	sort.Slice(payload.Moved, func(i, j int) bool {
		return payload.Moved[i].ID < payload.Moved[j].ID
	})

	span.SetAttributes(
		attribute.Int("document.segments", len(payload.Segments)),
		attribute.Int("document.moved", len(payload.Moved)),
	)
	recordEncodeMetrics(ctx, time.Since(start), len(payload.Segments))
	return payload, nil
}

// EncodeJSON encodes the tree's save payload as indented JSON.
func EncodeJSON(ctx context.Context, t *tree.Tree, loadedParents map[string]string) ([]byte, error) {
	payload, err := Encode(ctx, t, loadedParents)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal save payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a save payload produced by Encode, gating its
// declared format version.
func DecodePayload(data []byte) (*SavePayload, error) {
	if _, ok := firstByte(data); !ok {
		return nil, ErrEmptyDocument
	}
	var payload SavePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	version, err := resolveVersion(payload.FormatVersion)
	if err != nil {
		return nil, err
	}
	payload.FormatVersion = version
	return &payload, nil
}

func segmentRecord(t *tree.Tree, s *tree.Segment) (SegmentRecord, error) {
	ancestors, err := t.Path(s.ID())
	if err != nil {
		return SegmentRecord{}, err
	}
	return SegmentRecord{
		StartTime: s.Start(),
		EndTime:   s.End(),
		Editable:  s.Editable(),
		Color:     s.Color(),
		LabelText: s.LabelText(),
		ID:        s.ID(),
		Path:      strings.Join(ancestors, "/"),
		TreeText:  s.Text(),
		Removable: s.Removable(),
	}, nil
}

// ApplyResult reports what replaying a save payload did.
type ApplyResult struct {
	Created int
	Updated int
	Moved   int
	Skipped []string
}

// Apply replays a save payload onto the tree. Records whose segment id
// already exists get their saved boundaries and text restored; unknown ids
// are created along their saved path, with missing ancestors added as
// containers and the direct parent as a group. Moved-segment deltas then
// re-home segments whose parent still differs from the saved one. Loading
// a document is Import of the base annotations followed by Apply of the
// last save.
func (im *Importer) Apply(ctx context.Context, t *tree.Tree, payload *SavePayload) (*ApplyResult, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: tree must not be nil", ErrInvalidInput)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: payload must not be nil", ErrInvalidInput)
	}
	_, span := startApplySpan(ctx, len(payload.Segments), len(payload.Moved))
	defer span.End()

	if _, err := resolveVersion(payload.FormatVersion); err != nil {
		return nil, err
	}

	res := &ApplyResult{}
	for _, rec := range payload.Segments {
		if err := im.applyRecord(t, rec, res); err != nil {
			return nil, err
		}
	}
	for _, mv := range payload.Moved {
		if err := im.applyMove(t, mv, res); err != nil {
			return nil, err
		}
	}

	im.logger.Info("save payload applied",
		"created", res.Created,
		"updated", res.Updated,
		"moved", res.Moved,
		"skipped", len(res.Skipped))
	return res, nil
}

func (im *Importer) applyRecord(t *tree.Tree, rec SegmentRecord, res *ApplyResult) error {
	if s, ok := t.Segment(rec.ID); ok {
		return im.updateSegment(t, s, rec, res)
	}

	if rec.Path == "" {
		return im.applySkip(res, "segment %q has an empty path", rec.ID)
	}
	parts := strings.Split(rec.Path, "/")
	parentID := ""
	for i, part := range parts {
		if part == "" {
			return im.applySkip(res, "segment %q has an empty path component", rec.ID)
		}
		if _, ok := t.Get(part); ok {
			parentID = part
			continue
		}
		// The direct parent holds segments; higher levels hold groups.
		var err error
		if i == len(parts)-1 {
			_, err = t.AddGroup(tree.GroupSpec{ID: part, Parent: parentID})
		} else {
			_, err = t.AddGroups(tree.GroupsSpec{ID: part, Parent: parentID})
		}
		if err != nil {
			return im.applySkip(res, "segment %q: recreate ancestor %q: %v", rec.ID, part, err)
		}
		parentID = part
	}

	_, err := t.AddSegment(tree.SegmentSpec{
		ID:        rec.ID,
		Parent:    parentID,
		Text:      rec.TreeText,
		Start:     rec.StartTime,
		End:       rec.EndTime,
		Editable:  &rec.Editable,
		Removable: &rec.Removable,
		Color:     rec.Color,
		LabelText: rec.LabelText,
	})
	if err != nil {
		return im.applySkip(res, "segment %q: %v", rec.ID, err)
	}
	res.Created++
	return nil
}

// updateSegment restores saved boundaries and text on a live segment. The
// editable and renamable gates stay in force; a saved record that disagrees
// with a locked segment is reported, not forced.
func (im *Importer) updateSegment(t *tree.Tree, s *tree.Segment, rec SegmentRecord, res *ApplyResult) error {
	changed := false
	if s.Start() != rec.StartTime || s.End() != rec.EndTime {
		if err := t.Resize(s.ID(), rec.StartTime, rec.EndTime); err != nil {
			return im.applySkip(res, "segment %q boundaries: %v", s.ID(), err)
		}
		changed = true
	}
	if rec.TreeText != "" && s.Text() != rec.TreeText {
		if err := t.Rename(s.ID(), rec.TreeText); err != nil {
			return im.applySkip(res, "segment %q text: %v", s.ID(), err)
		}
		changed = true
	}
	if changed {
		res.Updated++
	}
	return nil
}

func (im *Importer) applyMove(t *tree.Tree, mv MovedSegment, res *ApplyResult) error {
	s, ok := t.Segment(mv.ID)
	if !ok {
		return im.applySkip(res, "moved segment %q is not in the tree", mv.ID)
	}
	if s.Parent() == mv.Parent {
		return nil
	}
	if err := t.Move(mv.ID, mv.Parent); err != nil {
		if errors.Is(err, tree.ErrNotFound) {
			return im.applySkip(res, "moved segment %q: destination %q is not in the tree", mv.ID, mv.Parent)
		}
		return im.applySkip(res, "moved segment %q: %v", mv.ID, err)
	}
	res.Moved++
	return nil
}

// applySkip mirrors skip for the apply path.
func (im *Importer) applySkip(res *ApplyResult, format string, args ...any) error {
	reason := fmt.Sprintf(format, args...)
	if im.strict {
		return fmt.Errorf("%w: %s", ErrMalformedDocument, reason)
	}
	im.logger.Warn("skipping saved record", "reason", reason)
	res.Skipped = append(res.Skipped, reason)
	return nil
}
