// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document reads and writes annotation documents.
//
// Two import formats are supported. The legacy v1 format is a bare JSON
// array of [groupId, children, snrOrNull] tuples, where children holds
// either nested tuples or segment objects. The v2 format is an envelope
// {formatVersion, annotations} whose entries are typed node descriptions
// {type, arguments, options}. Version strings are semantic versions; a
// document declaring a major version newer than SupportedVersion is
// rejected.
//
// Saving produces a flat list of segment records sorted by path and start
// time, plus deltas for segments whose parent changed since load.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/mod/semver"

	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// SupportedVersion is the newest document format version this build reads
// and the version it writes.
const SupportedVersion = "v2"

// envelope frames a versioned annotation document.
type envelope struct {
	FormatVersion string            `json:"formatVersion"`
	Annotations   []json.RawMessage `json:"annotations"`
}

// typedNode is one entry of the v2 format. Arguments carries the positional
// constructor arguments, of which only the id is used; everything else
// lives in Options.
type typedNode struct {
	Type      string            `json:"type"`
	Arguments []json.RawMessage `json:"arguments"`
	Options   nodeOptions       `json:"options"`
}

// nodeOptions holds the option fields of a typed node. ChildrenOptions
// supplies defaults merged into each direct child's options; it does not
// cascade to grandchildren.
type nodeOptions struct {
	Parent          string       `json:"parent,omitempty"`
	Text            string       `json:"text,omitempty"`
	Children        []typedNode  `json:"children,omitempty"`
	ChildrenOptions *nodeOptions `json:"childrenOptions,omitempty"`

	SNR       *float64 `json:"snr,omitempty"`
	Checked   *bool    `json:"checked,omitempty"`
	Removable *bool    `json:"removable,omitempty"`
	Renamable *bool    `json:"renamable,omitempty"`
	MoveTo    []string `json:"moveTo,omitempty"`
	CopyTo    []string `json:"copyTo,omitempty"`

	StartTime *float64 `json:"startTime,omitempty"`
	EndTime   *float64 `json:"endTime,omitempty"`
	Editable  *bool    `json:"editable,omitempty"`
	Color     string   `json:"color,omitempty"`
	LabelText string   `json:"labelText,omitempty"`
}

// legacySegment is a segment object of the v1 tuple format.
type legacySegment struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Editable  bool    `json:"editable"`
	Color     string  `json:"color"`
	LabelText string  `json:"labelText"`
	TreeText  string  `json:"treeText"`
	Removable *bool   `json:"removable"`
	Renamable *bool   `json:"renamable"`
	Checked   *bool   `json:"checked"`
}

// Result reports what an import did.
type Result struct {
	// Version is the resolved format version of the document.
	Version string

	// Groups, Containers and Segments count the nodes created.
	Groups     int
	Containers int
	Segments   int

	// Skipped holds one human-readable reason per entry the import left out.
	Skipped []string

	// LoadedParents maps each imported segment id to its parent group id at
	// load time. Save encoding diffs current parents against this map to
	// produce moved-segment deltas.
	LoadedParents map[string]string
}

func (r *Result) imported() int { return r.Groups + r.Containers + r.Segments }

// Importer decodes annotation documents into a tree. Entries that cannot be
// imported are skipped with a recorded reason; duplicate ids are treated as
// already loaded.
type Importer struct {
	logger *slog.Logger
	strict bool
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImportLogger sets the logger used for skipped entries.
func WithImportLogger(logger *slog.Logger) ImporterOption {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

// WithStrict makes the importer fail on the first entry it would otherwise
// skip. The tree may hold a partial import when a strict import fails;
// callers import into a fresh tree and discard it on error.
func WithStrict() ImporterOption {
	return func(im *Importer) {
		im.strict = true
	}
}

// NewImporter creates an Importer.
func NewImporter(opts ...ImporterOption) *Importer {
	im := &Importer{logger: slog.Default()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import decodes the document in data and builds its nodes in t.
//
// Description:
//
//	Sniffs the payload format (bare array = v1 tuples, object envelope =
//	versioned), gates the declared version against SupportedVersion, and
//	adds every decodable entry to the tree. Unknown types, malformed
//	entries and duplicate ids are skipped and reported in the Result
//	unless the importer is strict.
//
// Outputs:
//
//	*Result - Counts, skip reasons and loaded parent map. Never nil on
//	success.
//	error - Non-nil when the payload is empty, malformed at the top level,
//	or declares an unsupported version.
func (im *Importer) Import(ctx context.Context, t *tree.Tree, data []byte) (*Result, error) {
	ctx, span := startImportSpan(ctx, len(data))
	defer span.End()
	start := time.Now()

	res, err := im.importDocument(t, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		recordImportMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, err
	}

	setImportSpanResult(span, res.Version, res.imported(), len(res.Skipped))
	recordImportMetrics(ctx, time.Since(start), res.imported(), len(res.Skipped), true)
	im.logger.Info("annotation document imported",
		"version", res.Version,
		"groups", res.Groups,
		"containers", res.Containers,
		"segments", res.Segments,
		"skipped", len(res.Skipped))
	return res, nil
}

func (im *Importer) importDocument(t *tree.Tree, data []byte) (*Result, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: tree must not be nil", ErrInvalidInput)
	}
	lead, ok := firstByte(data)
	if !ok {
		return nil, ErrEmptyDocument
	}

	res := &Result{LoadedParents: make(map[string]string)}
	switch lead {
	case '[':
		res.Version = "v1"
		var tuples []json.RawMessage
		if err := json.Unmarshal(data, &tuples); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		for _, raw := range tuples {
			if err := im.addTuple(t, raw, "", res); err != nil {
				return nil, err
			}
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		version, err := resolveVersion(env.FormatVersion)
		if err != nil {
			return nil, err
		}
		res.Version = version
		legacy := semver.Compare(semver.Major(version), "v1") <= 0
		for _, raw := range env.Annotations {
			if legacy {
				err = im.addTuple(t, raw, "", res)
			} else {
				err = im.addTypedRaw(t, raw, res)
			}
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: document must be a JSON array or object", ErrMalformedDocument)
	}
	return res, nil
}

// resolveVersion validates a declared format version against
// SupportedVersion. An empty declaration means the current version.
func resolveVersion(v string) (string, error) {
	if v == "" {
		return SupportedVersion, nil
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedVersion, v)
	}
	if semver.Compare(semver.Major(v), SupportedVersion) > 0 {
		return "", fmt.Errorf("%w: document is %s, this build reads up to %s",
			ErrUnsupportedVersion, v, SupportedVersion)
	}
	return v, nil
}

// skip records one left-out entry. In strict mode it turns the reason into
// the import error instead.
func (im *Importer) skip(res *Result, format string, args ...any) error {
	reason := fmt.Sprintf(format, args...)
	if im.strict {
		return fmt.Errorf("%w: %s", ErrMalformedDocument, reason)
	}
	im.logger.Warn("skipping annotation entry", "reason", reason)
	res.Skipped = append(res.Skipped, reason)
	return nil
}

// ====== v1 tuples ======

// addTuple imports one [groupId, children, snrOrNull] tuple under parentID.
// Tuples whose children are tuples become containers; tuples whose children
// are segment objects (or empty) become groups.
func (im *Importer) addTuple(t *tree.Tree, raw json.RawMessage, parentID string, res *Result) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return im.skip(res, "tuple under %q is not an array: %v", parentID, err)
	}
	if len(parts) != 3 {
		return im.skip(res, "tuple has %d elements, want [id, children, snr]", len(parts))
	}
	var id string
	if err := json.Unmarshal(parts[0], &id); err != nil || id == "" {
		return im.skip(res, "tuple id is not a non-empty string")
	}
	var children []json.RawMessage
	if err := json.Unmarshal(parts[1], &children); err != nil {
		return im.skip(res, "children of %q are not an array: %v", id, err)
	}
	var snr *float64
	if err := json.Unmarshal(parts[2], &snr); err != nil {
		return im.skip(res, "snr of %q is not a number or null", id)
	}

	var nested, leaves []json.RawMessage
	for _, c := range children {
		switch b, ok := firstByte(c); {
		case ok && b == '[':
			nested = append(nested, c)
		case ok && b == '{':
			leaves = append(leaves, c)
		default:
			if err := im.skip(res, "child of %q is neither a tuple nor a segment object", id); err != nil {
				return err
			}
		}
	}
	if len(nested) > 0 && len(leaves) > 0 {
		return im.skip(res, "group %q mixes nested groups and segments", id)
	}

	if len(nested) > 0 {
		if snr != nil {
			if err := im.skip(res, "container %q carries an snr, ignored", id); err != nil {
				return err
			}
		}
		if _, err := t.AddGroups(tree.GroupsSpec{ID: id, Parent: parentID}); err != nil {
			if !errors.Is(err, tree.ErrDuplicateID) {
				return im.skip(res, "container %q: %v", id, err)
			}
			if err := im.skip(res, "container %q already loaded", id); err != nil {
				return err
			}
		} else {
			res.Containers++
		}
		for _, c := range nested {
			if err := im.addTuple(t, c, id, res); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := t.AddGroup(tree.GroupSpec{ID: id, Parent: parentID, SNR: snr}); err != nil {
		if !errors.Is(err, tree.ErrDuplicateID) {
			return im.skip(res, "group %q: %v", id, err)
		}
		if err := im.skip(res, "group %q already loaded", id); err != nil {
			return err
		}
	} else {
		res.Groups++
	}
	for _, c := range leaves {
		if err := im.addLegacySegment(t, c, id, res); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) addLegacySegment(t *tree.Tree, raw json.RawMessage, parentID string, res *Result) error {
	var ls legacySegment
	if err := json.Unmarshal(raw, &ls); err != nil {
		return im.skip(res, "segment under %q: %v", parentID, err)
	}
	s, err := t.AddSegment(tree.SegmentSpec{
		ID:        ls.ID,
		Parent:    parentID,
		Text:      ls.TreeText,
		Start:     ls.StartTime,
		End:       ls.EndTime,
		Checked:   ls.Checked,
		Editable:  &ls.Editable,
		Removable: ls.Removable,
		Renamable: ls.Renamable,
		Color:     ls.Color,
		LabelText: ls.LabelText,
	})
	if err != nil {
		if errors.Is(err, tree.ErrDuplicateID) {
			return im.skip(res, "segment %q already loaded", ls.ID)
		}
		return im.skip(res, "segment %q: %v", ls.ID, err)
	}
	res.Segments++
	res.LoadedParents[s.ID()] = parentID
	return nil
}

// ====== v2 typed nodes ======

func (im *Importer) addTypedRaw(t *tree.Tree, raw json.RawMessage, res *Result) error {
	var node typedNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return im.skip(res, "typed entry: %v", err)
	}
	return im.addTyped(t, node, "", nil, res)
}

// addTyped imports one typed node and its children. Nested children attach
// to their enclosing node; the parent option only applies to top-level
// entries.
func (im *Importer) addTyped(t *tree.Tree, node typedNode, parentID string, defaults *nodeOptions, res *Result) error {
	opts := node.Options
	applyDefaults(&opts, defaults)

	id, err := argumentID(node.Arguments)
	if err != nil {
		return im.skip(res, "%s entry: %v", node.Type, err)
	}
	parent := parentID
	if parent == "" {
		parent = opts.Parent
	}

	switch node.Type {
	case "Group":
		g, err := t.AddGroup(tree.GroupSpec{
			ID:        id,
			Parent:    parent,
			Text:      opts.Text,
			SNR:       opts.SNR,
			Checked:   opts.Checked,
			Removable: opts.Removable,
			Renamable: opts.Renamable,
			MoveTo:    opts.MoveTo,
			CopyTo:    opts.CopyTo,
		})
		switch {
		case err == nil:
			res.Groups++
			id = g.ID()
		case errors.Is(err, tree.ErrDuplicateID):
			if err := im.skip(res, "group %q already loaded", id); err != nil {
				return err
			}
		default:
			return im.skip(res, "group %q: %v", id, err)
		}

	case "Groups":
		l, err := t.AddGroups(tree.GroupsSpec{
			ID:        id,
			Parent:    parent,
			Text:      opts.Text,
			Checked:   opts.Checked,
			Removable: opts.Removable,
			Renamable: opts.Renamable,
		})
		switch {
		case err == nil:
			res.Containers++
			id = l.ID()
		case errors.Is(err, tree.ErrDuplicateID):
			if err := im.skip(res, "container %q already loaded", id); err != nil {
				return err
			}
		default:
			return im.skip(res, "container %q: %v", id, err)
		}

	case "Segment":
		if opts.StartTime == nil || opts.EndTime == nil {
			return im.skip(res, "segment %q is missing startTime or endTime", id)
		}
		s, err := t.AddSegment(tree.SegmentSpec{
			ID:        id,
			Parent:    parent,
			Text:      opts.Text,
			Start:     *opts.StartTime,
			End:       *opts.EndTime,
			Checked:   opts.Checked,
			Editable:  opts.Editable,
			Removable: opts.Removable,
			Renamable: opts.Renamable,
			Color:     opts.Color,
			LabelText: opts.LabelText,
		})
		if err != nil {
			if errors.Is(err, tree.ErrDuplicateID) {
				return im.skip(res, "segment %q already loaded", id)
			}
			return im.skip(res, "segment %q: %v", id, err)
		}
		res.Segments++
		res.LoadedParents[s.ID()] = s.Parent()
		if len(node.Options.Children) > 0 {
			return im.skip(res, "segment %q cannot hold children", s.ID())
		}
		return nil

	default:
		return im.skip(res, "unknown entry type %q", node.Type)
	}

	for _, child := range node.Options.Children {
		if err := im.addTyped(t, child, id, node.Options.ChildrenOptions, res); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults fills unset option fields from defaults. Parent, Children
// and ChildrenOptions never inherit.
func applyDefaults(opts, defaults *nodeOptions) {
	if defaults == nil {
		return
	}
	if opts.Text == "" {
		opts.Text = defaults.Text
	}
	if opts.SNR == nil {
		opts.SNR = defaults.SNR
	}
	if opts.Checked == nil {
		opts.Checked = defaults.Checked
	}
	if opts.Removable == nil {
		opts.Removable = defaults.Removable
	}
	if opts.Renamable == nil {
		opts.Renamable = defaults.Renamable
	}
	if opts.MoveTo == nil {
		opts.MoveTo = defaults.MoveTo
	}
	if opts.CopyTo == nil {
		opts.CopyTo = defaults.CopyTo
	}
	if opts.StartTime == nil {
		opts.StartTime = defaults.StartTime
	}
	if opts.EndTime == nil {
		opts.EndTime = defaults.EndTime
	}
	if opts.Editable == nil {
		opts.Editable = defaults.Editable
	}
	if opts.Color == "" {
		opts.Color = defaults.Color
	}
	if opts.LabelText == "" {
		opts.LabelText = defaults.LabelText
	}
}

// argumentID reads the positional id argument, when present.
func argumentID(args []json.RawMessage) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(args[0], &id); err != nil {
		return "", fmt.Errorf("first argument must be the id string: %w", err)
	}
	return id, nil
}

// firstByte returns the first non-whitespace byte of data.
func firstByte(data []byte) (byte, bool) {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b, true
		}
	}
	return 0, false
}
