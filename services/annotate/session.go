// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evfinkn/speechviz-sub000/services/annotate/action"
	"github.com/evfinkn/speechviz-sub000/services/annotate/document"
	"github.com/evfinkn/speechviz-sub000/services/annotate/peaks"
	"github.com/evfinkn/speechviz-sub000/services/annotate/store"
	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// Session is one open document: its tree, its undo/redo history, and the
// relay that mirrors mutations to connected clients. All edits on a
// document serialize through the session mutex; the tree core itself is
// single-threaded.
type Session struct {
	name   string
	logger *slog.Logger

	mu            sync.Mutex
	tree          *tree.Tree
	history       *action.History
	relay         *uiRelay
	player        *peaks.Player
	importer      *document.Importer
	loadedParents map[string]string
	formatVersion string
	dirty         bool

	lastUsed atomic.Int64 // unix milliseconds, for eviction ordering
}

func newSession(name string, logger *slog.Logger) *Session {
	relay := newUIRelay(logger)
	tr := tree.NewTree(
		tree.WithRenderer(relay),
		tree.WithEngine(relay),
		tree.WithLogger(logger),
	)
	s := &Session{
		name:          name,
		logger:        logger,
		tree:          tr,
		history:       action.NewHistory(tr, action.WithLogger(logger)),
		relay:         relay,
		player:        peaks.NewPlayer(relay, peaks.WithPlayerLogger(logger)),
		importer:      document.NewImporter(document.WithImportLogger(logger)),
		loadedParents: make(map[string]string),
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixMilli())
}

// load rebuilds the tree from a stored document: base annotations first,
// then the saved session payload on top. An unreadable saved payload is
// logged and skipped so the base annotations still open.
func (s *Session) load(ctx context.Context, doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.importer.Import(ctx, s.tree, doc.Annotations)
	if err != nil {
		return fmt.Errorf("import annotations for %s: %w", s.name, err)
	}
	s.loadedParents = res.LoadedParents
	s.formatVersion = res.Version

	if len(doc.Saved) == 0 {
		return nil
	}
	payload, err := document.DecodePayload(doc.Saved)
	if err != nil {
		s.logger.Warn("saved payload unreadable, opening base annotations only",
			"document", s.name, "error", err)
		return nil
	}
	applied, err := s.importer.Apply(ctx, s.tree, payload)
	if err != nil {
		s.logger.Warn("saved payload did not apply cleanly",
			"document", s.name, "error", err)
		return nil
	}
	s.logger.Info("restored saved session",
		"document", s.name,
		"created", applied.Created,
		"updated", applied.Updated,
		"moved", applied.Moved,
		"skipped", len(applied.Skipped))
	return nil
}

// apply builds the action for the command and runs it through the
// history, so every successful edit is undoable.
func (s *Session) apply(cmd Command) (*CommandResult, error) {
	a, err := buildAction(cmd)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.history.Apply(a); err != nil {
		return nil, err
	}
	s.dirty = true

	res := &CommandResult{
		Action:    cmd.Action,
		NodeID:    cmd.ID,
		UndoDepth: s.history.UndoLen(),
		RedoDepth: s.history.RedoLen(),
	}
	switch v := a.(type) {
	case *action.Add:
		res.NodeID = v.Spec.ID
	case *action.Copy:
		res.CreatedIDs = v.Created()
	}
	return res, nil
}

func (s *Session) undo() (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.history.Undo(); err != nil {
		return nil, err
	}
	s.dirty = true
	return &CommandResult{
		Action:    "undo",
		UndoDepth: s.history.UndoLen(),
		RedoDepth: s.history.RedoLen(),
	}, nil
}

func (s *Session) redo() (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.history.Redo(); err != nil {
		return nil, err
	}
	s.dirty = true
	return &CommandResult{
		Action:    "redo",
		UndoDepth: s.history.UndoLen(),
		RedoDepth: s.history.RedoLen(),
	}, nil
}

// toggle flips (or forces) a node's checked state. Toggles are not
// recorded in the history and do not mark the session dirty: checked
// state is session presentation, not saved document state.
func (s *Session) toggle(id string, force *bool) (*ToggleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	changed, err := s.tree.Toggle(id, force)
	if err != nil {
		return nil, err
	}
	it, ok := s.tree.Get(id)
	if !ok {
		return nil, tree.NewIDError(id, tree.ErrNotFound)
	}
	return &ToggleResponse{NodeID: id, Changed: changed, Checked: it.Checked()}, nil
}

func (s *Session) rank() *RankResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	res := s.tree.RankSNRs()
	if len(res.Ranked) > 0 {
		// Rank prefixes rewrite group texts.
		s.dirty = true
	}
	return &RankResponse{Ranked: res.Ranked, Primary: res.Primary}
}

// encode builds the current save payload and its JSON form.
func (s *Session) encode(ctx context.Context) (*document.SavePayload, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := document.Encode(ctx, s.tree, s.loadedParents)
	if err != nil {
		return nil, nil, err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal save payload: %w", err)
	}
	return payload, data, nil
}

func (s *Session) markClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

func (s *Session) isDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) destinations(id string) (*DestinationsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	moveTo, err := s.tree.ExpandMoveTo(id)
	if err != nil {
		return nil, err
	}
	copyTo, err := s.tree.ExpandCopyTo(id)
	if err != nil {
		return nil, err
	}
	resp := &DestinationsResponse{
		NodeID: id,
		MoveTo: make([]DestinationView, 0, len(moveTo)),
		CopyTo: make([]DestinationView, 0, len(copyTo)),
	}
	for _, g := range moveTo {
		resp.MoveTo = append(resp.MoveTo, DestinationView{ID: g.ID(), Text: g.Text()})
	}
	for _, g := range copyTo {
		resp.CopyTo = append(resp.CopyTo, DestinationView{ID: g.ID(), Text: g.Text()})
	}
	return resp, nil
}

// play starts the node's interval sequence. The player runs on its own
// context so playback outlives the request that started it; closing the
// session stops it.
func (s *Session) play(id string, loop bool) (*PlayResponse, error) {
	s.mu.Lock()
	ids, err := s.tree.PlaybackIDs(id)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.touch()

	s.player.Play(context.Background(), ids, loop)
	return &PlayResponse{NodeID: id, Intervals: len(ids), Loop: loop}, nil
}

func (s *Session) pause() {
	s.player.Stop()
}

// state builds the outline view of the whole tree.
func (s *Session) state() *StateResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	roots := s.tree.Roots()
	nodes := make([]NodeView, 0, len(roots))
	for _, it := range roots {
		nodes = append(nodes, s.nodeView(it))
	}
	return &StateResponse{
		Name:            s.name,
		FormatVersion:   s.formatVersion,
		Nodes:           nodes,
		NodeCount:       s.tree.Len(),
		UndoDepth:       s.history.UndoLen(),
		RedoDepth:       s.history.RedoLen(),
		HistoryDisabled: s.history.Disabled(),
		Dirty:           s.dirty,
	}
}

func (s *Session) nodeView(it tree.Item) NodeView {
	view := NodeView{
		ID:        it.ID(),
		Kind:      it.Kind().String(),
		Text:      it.Text(),
		Checked:   it.Checked(),
		Duration:  it.Duration(),
		Removable: it.Removable(),
		Renamable: it.Renamable(),
	}
	switch v := it.(type) {
	case *tree.Group:
		if snr, ok := v.SNR(); ok {
			view.SNR = &snr
		}
	case *tree.Segment:
		start, end := v.Start(), v.End()
		editable := v.Editable()
		view.Start = &start
		view.End = &end
		view.Editable = &editable
		view.Color = v.Color()
		view.LabelText = v.LabelText()
	}
	for _, cid := range it.Children() {
		if c, ok := s.tree.Get(cid); ok {
			view.Children = append(view.Children, s.nodeView(c))
		}
	}
	return view
}

// transcripts collects the non-empty interval labels of every segment
// under the given node, in playback order. With an empty id the whole
// tree is walked.
func (s *Session) transcripts(id string) ([]TranscriptSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []tree.Item
	if id == "" {
		items = s.tree.Roots()
	} else {
		it, ok := s.tree.Get(id)
		if !ok {
			return nil, tree.NewIDError(id, tree.ErrNotFound)
		}
		items = []tree.Item{it}
	}

	var chunks []TranscriptSegment
	var walk func(it tree.Item)
	walk = func(it tree.Item) {
		if seg, ok := it.(*tree.Segment); ok {
			if seg.LabelText() != "" {
				chunks = append(chunks, TranscriptSegment{
					ID:    seg.ID(),
					Text:  seg.LabelText(),
					Start: seg.Start(),
					End:   seg.End(),
				})
			}
			return
		}
		for _, cid := range it.Children() {
			if c, ok := s.tree.Get(cid); ok {
				walk(c)
			}
		}
	}
	for _, it := range items {
		walk(it)
	}
	return chunks, nil
}

func (s *Session) segmentBounds(id string) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.tree.Segment(id)
	if !ok {
		return 0, 0, tree.NewIDError(id, tree.ErrNotFound)
	}
	return seg.Start(), seg.End(), nil
}

// close stops playback and disconnects any attached clients.
func (s *Session) close() {
	s.player.Stop()
	s.relay.closeAll()
}

// ====== Command dispatch ======

// buildAction maps one wire command onto its action variant. Nodes added
// interactively default to removable, renamable and editable, unlike
// imported base annotations, so their adds stay undoable.
func buildAction(cmd Command) (action.Action, error) {
	switch cmd.Action {
	case "add_group", "add_groups", "add_segment":
		spec, err := addSpec(cmd)
		if err != nil {
			return nil, err
		}
		return action.NewAdd(spec), nil
	case "remove":
		if cmd.ID == "" {
			return nil, fmt.Errorf("%w: id", ErrMissingField)
		}
		return action.NewRemove(cmd.ID), nil
	case "move":
		if cmd.ID == "" {
			return nil, fmt.Errorf("%w: id", ErrMissingField)
		}
		if cmd.Destination == "" {
			return nil, fmt.Errorf("%w: destination", ErrMissingField)
		}
		return action.NewMove(cmd.ID, cmd.Destination), nil
	case "copy":
		if cmd.ID == "" {
			return nil, fmt.Errorf("%w: id", ErrMissingField)
		}
		if cmd.Destination == "" {
			return nil, fmt.Errorf("%w: destination", ErrMissingField)
		}
		return action.NewCopy(cmd.ID, cmd.Destination), nil
	case "rename":
		if cmd.ID == "" {
			return nil, fmt.Errorf("%w: id", ErrMissingField)
		}
		if cmd.Text == "" {
			return nil, fmt.Errorf("%w: text", ErrMissingField)
		}
		return action.NewRename(cmd.ID, cmd.Text), nil
	case "resize":
		if cmd.ID == "" {
			return nil, fmt.Errorf("%w: id", ErrMissingField)
		}
		if cmd.Start == nil {
			return nil, fmt.Errorf("%w: startTime", ErrMissingField)
		}
		if cmd.End == nil {
			return nil, fmt.Errorf("%w: endTime", ErrMissingField)
		}
		return action.NewResize(cmd.ID, *cmd.Start, *cmd.End), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}
}

func addSpec(cmd Command) (action.NodeSpec, error) {
	spec := action.NodeSpec{
		ID:        cmd.ID,
		Parent:    cmd.Parent,
		Text:      cmd.Text,
		Checked:   optBool(cmd.Checked, true),
		Removable: optBool(cmd.Removable, true),
		Renamable: optBool(cmd.Renamable, true),
	}
	switch cmd.Action {
	case "add_group":
		spec.Kind = tree.KindGroup
		spec.SNR = cmd.SNR
		spec.MoveTo = cmd.MoveTo
		spec.CopyTo = cmd.CopyTo
	case "add_groups":
		spec.Kind = tree.KindGroups
	case "add_segment":
		if cmd.Parent == "" {
			return action.NodeSpec{}, fmt.Errorf("%w: parent", ErrMissingField)
		}
		if cmd.Start == nil {
			return action.NodeSpec{}, fmt.Errorf("%w: startTime", ErrMissingField)
		}
		if cmd.End == nil {
			return action.NodeSpec{}, fmt.Errorf("%w: endTime", ErrMissingField)
		}
		spec.Kind = tree.KindSegment
		spec.Start = *cmd.Start
		spec.End = *cmd.End
		spec.Editable = optBool(cmd.Editable, true)
		spec.Color = cmd.Color
		spec.LabelText = cmd.LabelText
	}
	return spec, nil
}

func optBool(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}
