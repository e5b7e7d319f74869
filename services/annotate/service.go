// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package annotate provides the audio annotation HTTP service.
//
// The service exposes endpoints for:
//   - Importing and listing annotation documents
//   - Editing the annotation tree through undoable commands
//   - Toggling, ranking and playing annotations
//   - Saving sessions back to the embedded store
//
// Documents open lazily: the first request that touches a document
// builds its in-memory session from the store, and idle sessions are
// evicted once the open-document limit is reached.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evfinkn/speechviz-sub000/services/annotate/document"
	"github.com/evfinkn/speechviz-sub000/services/annotate/store"
	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// ServiceConfig configures the annotation service.
type ServiceConfig struct {
	// MaxOpenDocuments is the maximum number of sessions held in memory.
	// Default: 16
	MaxOpenDocuments int

	// AutosaveOnEvict saves dirty sessions before they are evicted or
	// shut down. Default: true
	AutosaveOnEvict bool
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxOpenDocuments: 16,
		AutosaveOnEvict:  true,
	}
}

// Searcher indexes saved transcripts and answers text queries over them.
// It is optional; a service built without one rejects search requests
// with ErrNotConfigured.
type Searcher interface {
	IndexDocument(ctx context.Context, document string, segments []TranscriptSegment) error
	Query(ctx context.Context, document, query string, limit int) ([]SearchHit, error)
}

// TranscriptSegment is one labeled interval handed to a Searcher.
type TranscriptSegment struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`
}

// Assist produces transcript text and label suggestions for clips of a
// document's audio. Implementations resolve document names to media
// files themselves. Optional, like Searcher.
type Assist interface {
	TranscribeClip(ctx context.Context, document string, start, end float64) (string, error)
	SuggestLabel(ctx context.Context, transcripts []string) (string, error)
}

// Service owns the open annotation sessions.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Requests for different documents
//	proceed in parallel; edits on one document serialize through its
//	session.
type Service struct {
	config ServiceConfig
	store  *store.Store
	logger *slog.Logger
	events *Emitter

	sessions  map[string]*Session
	mu        sync.RWMutex
	initLocks sync.Map // document name -> *sync.Mutex

	// search and assist are optional integrations
	search Searcher
	assist Assist
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSearch attaches a transcript search backend.
func WithSearch(search Searcher) ServiceOption {
	return func(s *Service) { s.search = search }
}

// WithAssist attaches a transcription and labeling backend.
func WithAssist(assist Assist) ServiceOption {
	return func(s *Service) { s.assist = assist }
}

// NewService creates an annotation service over the given store.
func NewService(st *store.Store, config ServiceConfig, opts ...ServiceOption) *Service {
	if config.MaxOpenDocuments <= 0 {
		config.MaxOpenDocuments = DefaultServiceConfig().MaxOpenDocuments
	}
	s := &Service{
		config:   config,
		store:    st,
		logger:   slog.Default(),
		events:   NewEmitter(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events exposes the edit event stream for sinks and tests.
func (s *Service) Events() *Emitter { return s.events }

// OpenCount returns the number of sessions currently in memory.
func (s *Service) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ====== Document lifecycle ======

// List returns every stored document, flagging the ones with a live
// session.
func (s *Service) List(ctx context.Context) (*ListDocumentsResponse, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := &ListDocumentsResponse{Documents: make([]DocumentInfo, 0, len(infos))}
	for _, info := range infos {
		_, open := s.sessions[info.Name]
		resp.Documents = append(resp.Documents, DocumentInfo{
			Name:          info.Name,
			FormatVersion: info.FormatVersion,
			ModifiedAt:    info.ModifiedAt,
			HasSaved:      info.HasSaved,
			Open:          open,
		})
	}
	return resp, nil
}

// Import stores new base annotations under the given name. The payload
// is parsed into a scratch tree first so a malformed document never
// reaches the store. Re-importing keeps any previously saved session
// payload; its records apply where ids still match.
func (s *Service) Import(ctx context.Context, name string, data []byte) (*ImportResponse, error) {
	im := document.NewImporter(document.WithImportLogger(s.logger))
	res, err := im.Import(ctx, tree.NewTree(), data)
	if err != nil {
		return nil, err
	}

	doc := &store.Document{
		Name:          name,
		FormatVersion: res.Version,
		Annotations:   data,
	}
	existing, err := s.store.Get(ctx, name)
	switch {
	case err == nil:
		doc.Saved = existing.Saved
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}
	if err := s.store.Put(ctx, doc); err != nil {
		return nil, err
	}

	// Any session built on the previous annotations is stale now.
	s.Invalidate(name)

	s.logger.Info("document imported",
		"document", name,
		"format_version", res.Version,
		"groups", res.Groups,
		"containers", res.Containers,
		"segments", res.Segments,
		"skipped", len(res.Skipped))
	s.events.Emit(Event{Document: name, Action: "import"})

	return &ImportResponse{
		Name:          name,
		FormatVersion: res.Version,
		Groups:        res.Groups,
		Containers:    res.Containers,
		Segments:      res.Segments,
		Skipped:       res.Skipped,
	}, nil
}

// State opens the document if needed and returns its full outline.
func (s *Service) State(ctx context.Context, name string) (*StateResponse, error) {
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return sess.state(), nil
}

// Export renders the document's current session as a save payload
// without writing it to the store.
func (s *Service) Export(ctx context.Context, name string) ([]byte, error) {
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	_, data, err := sess.encode(ctx)
	return data, err
}

// Save writes the document's session payload to the store.
func (s *Service) Save(ctx context.Context, name string) (*SaveResponse, error) {
	return s.save(ctx, name, "")
}

func (s *Service) save(ctx context.Context, name, sessionID string) (*SaveResponse, error) {
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	resp, err := s.persist(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.events.Emit(Event{Document: name, Action: "save", SessionID: sessionID})
	return resp, nil
}

// persist encodes the session and writes it back onto the stored
// document, preserving the base annotations.
func (s *Service) persist(ctx context.Context, sess *Session) (*SaveResponse, error) {
	ctx, span := startSaveSpan(ctx, sess.name)
	defer span.End()

	payload, data, err := sess.encode(ctx)
	if err != nil {
		recordSave(ctx, false)
		return nil, err
	}
	doc, err := s.store.Get(ctx, sess.name)
	if err != nil {
		recordSave(ctx, false)
		return nil, err
	}
	doc.Saved = data
	if err := s.store.Put(ctx, doc); err != nil {
		recordSave(ctx, false)
		return nil, err
	}
	sess.markClean()
	recordSave(ctx, true)
	s.logger.Info("session saved",
		"document", sess.name,
		"segments", len(payload.Segments),
		"moved", len(payload.Moved))

	s.indexTranscripts(ctx, sess)

	return &SaveResponse{
		Name:     sess.name,
		Segments: len(payload.Segments),
		Moved:    len(payload.Moved),
		SavedAt:  doc.ModifiedAt,
	}, nil
}

// indexTranscripts pushes the session's labeled segments to the search
// backend. Failures are logged, never surfaced: search lag must not
// fail a save.
func (s *Service) indexTranscripts(ctx context.Context, sess *Session) {
	if s.search == nil {
		return
	}
	chunks, err := sess.transcripts("")
	if err != nil || len(chunks) == 0 {
		return
	}
	if err := s.search.IndexDocument(ctx, sess.name, chunks); err != nil {
		s.logger.Warn("search indexing failed", "document", sess.name, "error", err)
	}
}

// Close drops the document's session, optionally saving it first. Closing
// a document that is not open succeeds as long as the document exists.
func (s *Service) Close(ctx context.Context, name string, save bool) error {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		_, err := s.store.Get(ctx, name)
		return err
	}

	if save {
		if _, err := s.persist(ctx, sess); err != nil {
			return err
		}
	}

	s.mu.Lock()
	delete(s.sessions, name)
	s.mu.Unlock()
	sess.close()
	recordOpenDocuments(ctx, -1)
	s.logger.Info("document closed", "document", name, "saved", save)
	return nil
}

// Invalidate drops the document's session without saving, disconnecting
// any attached clients. It reports whether a session was open. Used when
// the stored annotations change underneath the service.
func (s *Service) Invalidate(name string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[name]
	if ok {
		delete(s.sessions, name)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.close()
	recordOpenDocuments(context.Background(), -1)
	s.logger.Info("session invalidated", "document", name)
	return true
}

// Delete removes the document from the store and drops any session.
func (s *Service) Delete(ctx context.Context, name string) error {
	s.Invalidate(name)
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.events.Emit(Event{Document: name, Action: "delete"})
	return nil
}

// CloseAll retires every open session. Called at shutdown.
func (s *Service) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	victims := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		victims = append(victims, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range victims {
		if err := s.retire(ctx, sess); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sess.name, err))
		}
	}
	return errors.Join(errs...)
}

// ====== Editing ======

// ApplyCommand runs one edit command against the document, recording it
// in the undo history.
func (s *Service) ApplyCommand(ctx context.Context, name string, cmd Command) (*CommandResult, error) {
	return s.applyCommand(ctx, name, cmd, "")
}

func (s *Service) applyCommand(ctx context.Context, name string, cmd Command, sessionID string) (*CommandResult, error) {
	ctx, span := startCommandSpan(ctx, name, cmd.Action)
	defer span.End()
	start := time.Now()

	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		recordCommandMetrics(ctx, cmd.Action, time.Since(start), false)
		return nil, err
	}
	res, err := sess.apply(cmd)
	recordCommandMetrics(ctx, cmd.Action, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	s.events.Emit(Event{
		Document:  name,
		Action:    cmd.Action,
		NodeID:    res.NodeID,
		SessionID: sessionID,
	})
	return res, nil
}

// Undo reverts the document's most recent command.
func (s *Service) Undo(ctx context.Context, name string) (*CommandResult, error) {
	return s.undo(ctx, name, "")
}

func (s *Service) undo(ctx context.Context, name, sessionID string) (*CommandResult, error) {
	start := time.Now()
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		recordCommandMetrics(ctx, "undo", time.Since(start), false)
		return nil, err
	}
	res, err := sess.undo()
	recordCommandMetrics(ctx, "undo", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	s.events.Emit(Event{Document: name, Action: "undo", SessionID: sessionID})
	return res, nil
}

// Redo replays the document's most recently undone command.
func (s *Service) Redo(ctx context.Context, name string) (*CommandResult, error) {
	return s.redo(ctx, name, "")
}

func (s *Service) redo(ctx context.Context, name, sessionID string) (*CommandResult, error) {
	start := time.Now()
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		recordCommandMetrics(ctx, "redo", time.Since(start), false)
		return nil, err
	}
	res, err := sess.redo()
	recordCommandMetrics(ctx, "redo", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	s.events.Emit(Event{Document: name, Action: "redo", SessionID: sessionID})
	return res, nil
}

// Toggle flips or forces a node's checked state. Toggles bypass the undo
// history.
func (s *Service) Toggle(ctx context.Context, name, nodeID string, force *bool) (*ToggleResponse, error) {
	return s.toggle(ctx, name, nodeID, force, "")
}

func (s *Service) toggle(ctx context.Context, name, nodeID string, force *bool, sessionID string) (*ToggleResponse, error) {
	start := time.Now()
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		recordCommandMetrics(ctx, "toggle", time.Since(start), false)
		return nil, err
	}
	resp, err := sess.toggle(nodeID, force)
	recordCommandMetrics(ctx, "toggle", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	if resp.Changed {
		s.events.Emit(Event{Document: name, Action: "toggle", NodeID: nodeID, SessionID: sessionID})
	}
	return resp, nil
}

// Rank reorders and prefixes the document's SNR-bearing groups.
func (s *Service) Rank(ctx context.Context, name string) (*RankResponse, error) {
	return s.rank(ctx, name, "")
}

func (s *Service) rank(ctx context.Context, name, sessionID string) (*RankResponse, error) {
	start := time.Now()
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		recordCommandMetrics(ctx, "rank", time.Since(start), false)
		return nil, err
	}
	resp := sess.rank()
	recordCommandMetrics(ctx, "rank", time.Since(start), true)
	s.events.Emit(Event{Document: name, Action: "rank", NodeID: resp.Primary, SessionID: sessionID})
	return resp, nil
}

// Destinations lists the valid move and copy targets for a node.
func (s *Service) Destinations(ctx context.Context, name, nodeID string) (*DestinationsResponse, error) {
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return sess.destinations(nodeID)
}

// ====== Playback ======

// Play starts playback of the node's checked intervals.
func (s *Service) Play(ctx context.Context, name, nodeID string, loop bool) (*PlayResponse, error) {
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return sess.play(nodeID, loop)
}

// Pause stops the document's playback, if any.
func (s *Service) Pause(ctx context.Context, name string) error {
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return err
	}
	sess.pause()
	return nil
}

// ====== Optional integrations ======

// Search queries the document's indexed transcripts.
func (s *Service) Search(ctx context.Context, name, query string, limit int) (*SearchResponse, error) {
	if s.search == nil {
		return nil, fmt.Errorf("search: %w", ErrNotConfigured)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: q", ErrMissingField)
	}
	hits, err := s.search.Query(ctx, name, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	return &SearchResponse{Query: query, Hits: hits}, nil
}

// Transcribe runs speech recognition over one segment's clip and returns
// the text. The tree is not modified; callers decide whether to apply
// the text as a label.
func (s *Service) Transcribe(ctx context.Context, name, nodeID string) (*TranscribeResponse, error) {
	if s.assist == nil {
		return nil, fmt.Errorf("transcribe: %w", ErrNotConfigured)
	}
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	startTime, endTime, err := sess.segmentBounds(nodeID)
	if err != nil {
		return nil, err
	}
	text, err := s.assist.TranscribeClip(ctx, name, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", nodeID, err)
	}
	return &TranscribeResponse{NodeID: nodeID, Text: text}, nil
}

// LabelGroup asks the assist backend for a label summarizing the
// transcripts under a group, then applies it as an undoable rename.
func (s *Service) LabelGroup(ctx context.Context, name, groupID string) (*CommandResult, error) {
	return s.labelGroup(ctx, name, groupID, "")
}

func (s *Service) labelGroup(ctx context.Context, name, groupID, sessionID string) (*CommandResult, error) {
	if s.assist == nil {
		return nil, fmt.Errorf("label: %w", ErrNotConfigured)
	}
	sess, err := s.sessionFor(ctx, name)
	if err != nil {
		return nil, err
	}
	chunks, err := sess.transcripts(groupID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("node %s: %w", groupID, ErrNoTranscripts)
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	label, err := s.assist.SuggestLabel(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", groupID, err)
	}
	return s.applyCommand(ctx, name, Command{Action: "rename", ID: groupID, Text: label}, sessionID)
}

// ====== Session management ======

// sessionFor returns the document's live session, opening it from the
// store on first touch. Concurrent first touches of the same document
// serialize on a per-name init lock so the store is read once.
func (s *Service) sessionFor(ctx context.Context, name string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if ok {
		sess.touch()
		return sess, nil
	}

	lock := s.getInitLock(name)
	lock.Lock()
	defer lock.Unlock()

	// Another request may have opened it while we waited.
	s.mu.RLock()
	sess, ok = s.sessions[name]
	s.mu.RUnlock()
	if ok {
		sess.touch()
		return sess, nil
	}

	doc, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	ctx, span := startOpenSpan(ctx, name)
	defer span.End()

	sess = newSession(name, s.logger.With("document", name))
	if err := sess.load(ctx, doc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	victim, err := s.evictLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.sessions[name] = sess
	open := len(s.sessions)
	s.mu.Unlock()

	recordOpenDocuments(ctx, 1)
	s.logger.Info("document opened", "document", name, "open", open)

	if victim != nil {
		if err := s.retire(ctx, victim); err != nil {
			s.logger.Error("evicted session not saved",
				"document", victim.name, "error", err)
		}
	}
	return sess, nil
}

// getInitLock returns the init lock for a document name.
func (s *Service) getInitLock(name string) *sync.Mutex {
	lock, _ := s.initLocks.LoadOrStore(name, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// evictLocked picks a session to make room for one more, removing it
// from the map. Sessions with attached clients are never evicted; when
// every session has clients the open fails instead. Caller must hold
// the write lock.
func (s *Service) evictLocked() (*Session, error) {
	if len(s.sessions) < s.config.MaxOpenDocuments {
		return nil, nil
	}

	var victim *Session
	oldest := time.Now().UnixMilli() + 1
	for _, sess := range s.sessions {
		if sess.relay.clientCount() > 0 {
			continue
		}
		if used := sess.lastUsed.Load(); used < oldest {
			oldest = used
			victim = sess
		}
	}
	if victim == nil {
		return nil, ErrTooManyDocuments
	}
	delete(s.sessions, victim.name)
	return victim, nil
}

// retire saves a dirty session when autosave is on, then shuts it down.
func (s *Service) retire(ctx context.Context, sess *Session) error {
	saved := false
	var err error
	if s.config.AutosaveOnEvict && sess.isDirty() {
		if _, err = s.persist(ctx, sess); err == nil {
			saved = true
		}
	}
	sess.close()
	recordOpenDocuments(ctx, -1)
	s.logger.Info("session retired", "document", sess.name, "saved", saved)
	return err
}
