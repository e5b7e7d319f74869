// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// AuditRecord describes one auditable edit to an annotation document.
type AuditRecord struct {
	// Timestamp is when the edit happened.
	Timestamp time.Time

	// UserID identifies who made the edit.
	UserID string

	// Document is the annotation document affected.
	Document string

	// Action names the edit, such as "remove", "move", "save", "delete".
	Action string

	// NodeID is the tree node the edit targeted, when applicable.
	NodeID string

	// Detail holds action-specific context, such as the destination of a
	// move.
	Detail map[string]any
}

// AuditLogger records destructive or otherwise notable edits for later
// review.
//
// Implementations must be safe for concurrent use and must not block
// the edit path: record synchronously only when cheap, otherwise queue.
type AuditLogger interface {
	// Record persists one audit record. Errors are advisory; the edit
	// itself has already happened.
	Record(ctx context.Context, rec AuditRecord) error
}

// NopAuditLogger is the default audit logger. It discards all records.
type NopAuditLogger struct{}

// Record discards the record.
func (l *NopAuditLogger) Record(_ context.Context, _ AuditRecord) error {
	return nil
}

// SlogAuditLogger writes audit records as structured log entries.
//
// This is sufficient for a local deployment where the log stream is the
// system of record. Team deployments typically replace it with a
// database-backed implementation.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit logger backed by the given slog
// logger. A nil logger falls back to slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit")}
}

// Record emits the record at INFO level.
func (l *SlogAuditLogger) Record(ctx context.Context, rec AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"time", rec.Timestamp.Format(time.RFC3339),
		"user_id", rec.UserID,
		"document", rec.Document,
		"action", rec.Action,
	}
	if rec.NodeID != "" {
		attrs = append(attrs, "node_id", rec.NodeID)
	}
	for k, v := range rec.Detail {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
