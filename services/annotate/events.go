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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event describes one applied edit on a document. Events are emitted after
// the mutation succeeded, so subscribers observe the post-state.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Document is the document name the edit applied to.
	Document string `json:"document"`

	// Action is the edit kind: add_group, add_groups, add_segment, remove,
	// move, copy, rename, resize, toggle, undo, redo, rank, save, import,
	// delete.
	Action string `json:"action"`

	// NodeID is the affected node, when the action targets one.
	NodeID string `json:"node_id,omitempty"`

	// SessionID is the websocket session that issued the edit, empty for
	// HTTP edits.
	SessionID string `json:"session_id,omitempty"`

	// Timestamp is when the edit was applied.
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler is a function that processes emitted events.
type EventHandler func(event Event)

// Emitter broadcasts applied edits to subscribers. The edit telemetry sink
// and tests subscribe here.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]EventHandler
}

// NewEmitter creates an empty event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		subscriptions: make(map[string]EventHandler),
	}
}

// Subscribe registers a handler for every event.
//
// Outputs:
//
//	string - Subscription ID for unsubscribing.
func (e *Emitter) Subscribe(handler EventHandler) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.NewString()
	e.subscriptions[id] = handler
	return id
}

// Unsubscribe removes a subscription. Returns true if it existed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; ok {
		delete(e.subscriptions, id)
		return true
	}
	return false
}

// Emit broadcasts the event to all subscribers. Handler panics are
// recovered so one failing subscriber cannot take down the edit path.
func (e *Emitter) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.subscriptions))
	for _, h := range e.subscriptions {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		e.safeInvoke(h, event)
	}
}

func (e *Emitter) safeInvoke(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"action", event.Action,
				"document", event.Document,
				"panic", r,
			)
		}
	}()
	handler(event)
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}
