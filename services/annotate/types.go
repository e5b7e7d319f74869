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

import "time"

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	// Error is the human-readable message.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code"`
}

// DocumentInfo is one entry in the document listing.
type DocumentInfo struct {
	// Name is the document name.
	Name string `json:"name"`

	// FormatVersion is the declared version of the source annotations.
	FormatVersion string `json:"format_version,omitempty"`

	// ModifiedAt is when the stored document was last written.
	ModifiedAt time.Time `json:"modified_at"`

	// HasSaved reports whether a save payload exists in the store.
	HasSaved bool `json:"has_saved"`

	// Open reports whether a live session holds this document.
	Open bool `json:"open"`
}

// ListDocumentsResponse is the response for GET /v1/annotate/documents.
type ListDocumentsResponse struct {
	Documents []DocumentInfo `json:"documents"`
}

// ImportResponse is the response for PUT /v1/annotate/documents/:name.
type ImportResponse struct {
	// Name is the document name the annotations were stored under.
	Name string `json:"name"`

	// FormatVersion is the resolved annotations format version.
	FormatVersion string `json:"format_version"`

	// Groups, Containers and Segments count the nodes the payload builds.
	Groups     int `json:"groups"`
	Containers int `json:"containers"`
	Segments   int `json:"segments"`

	// Skipped lists entries the importer could not place.
	Skipped []string `json:"skipped,omitempty"`
}

// Command is one edit applied to a document, from HTTP or a websocket
// frame. Action selects the variant; the other fields feed it.
type Command struct {
	// Action is one of: add_group, add_groups, add_segment, remove, move,
	// copy, rename, resize. Required.
	Action string `json:"action" binding:"required"`

	// ID targets an existing node (remove, move, copy, rename, resize) or
	// fixes the id of a new one (adds). Optional for adds.
	ID string `json:"id,omitempty"`

	// Parent is the parent for adds. Empty means a root node.
	Parent string `json:"parent,omitempty"`

	// Destination is the target group for move and copy.
	Destination string `json:"destination,omitempty"`

	// Text is the display label for adds and the new label for rename.
	Text string `json:"text,omitempty"`

	// Start and End are segment boundaries for add_segment and resize.
	Start *float64 `json:"startTime,omitempty"`
	End   *float64 `json:"endTime,omitempty"`

	// SNR attaches a signal-to-noise figure to a new group.
	SNR *float64 `json:"snr,omitempty"`

	// Capability flags for adds. Nodes created interactively default to
	// fully unlocked, unlike imported base annotations.
	Checked   *bool `json:"checked,omitempty"`
	Editable  *bool `json:"editable,omitempty"`
	Removable *bool `json:"removable,omitempty"`
	Renamable *bool `json:"renamable,omitempty"`

	// Color and LabelText style a new segment's interval marker.
	Color     string `json:"color,omitempty"`
	LabelText string `json:"labelText,omitempty"`

	// MoveTo and CopyTo declare destination group ids for a new group.
	MoveTo []string `json:"moveTo,omitempty"`
	CopyTo []string `json:"copyTo,omitempty"`
}

// CommandResult is the response for an applied command and for undo/redo.
type CommandResult struct {
	// Action echoes the applied action.
	Action string `json:"action"`

	// NodeID is the id the command targeted or created.
	NodeID string `json:"node_id,omitempty"`

	// CreatedIDs lists ids a copy created. Empty for a deduplicated copy.
	CreatedIDs []string `json:"created_ids,omitempty"`

	// UndoDepth and RedoDepth are the history depths after the command.
	UndoDepth int `json:"undo_depth"`
	RedoDepth int `json:"redo_depth"`
}

// ToggleRequest is the request body for POST .../nodes/:id/toggle.
type ToggleRequest struct {
	// Force sets the target state. Nil flips the current state.
	Force *bool `json:"force,omitempty"`
}

// ToggleResponse is the response for a toggle.
type ToggleResponse struct {
	// NodeID is the toggled node.
	NodeID string `json:"node_id"`

	// Changed is false when force matched the current state.
	Changed bool `json:"changed"`

	// Checked is the state after the toggle.
	Checked bool `json:"checked"`
}

// RankResponse is the response for POST .../rank.
type RankResponse struct {
	// Ranked holds group ids, best SNR first.
	Ranked []string `json:"ranked"`

	// Primary is the highlighted primary speaker group, empty when fewer
	// than two groups carry an SNR.
	Primary string `json:"primary,omitempty"`
}

// SaveResponse is the response for POST .../save.
type SaveResponse struct {
	// Name is the saved document.
	Name string `json:"name"`

	// Segments is the number of segment records in the payload.
	Segments int `json:"segments"`

	// Moved is the number of moved-segment deltas in the payload.
	Moved int `json:"moved"`

	// SavedAt is the store write time.
	SavedAt time.Time `json:"saved_at"`
}

// PlayRequest is the request body for POST .../nodes/:id/play.
type PlayRequest struct {
	// Loop restarts the sequence after the last interval.
	Loop bool `json:"loop"`
}

// PlayResponse is the response for starting playback.
type PlayResponse struct {
	// NodeID is the node whose intervals are playing.
	NodeID string `json:"node_id"`

	// Intervals is the number of engine intervals in the sequence.
	Intervals int `json:"intervals"`

	// Loop echoes the loop flag.
	Loop bool `json:"loop"`
}

// NodeView is one node in the document outline.
type NodeView struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Text     string  `json:"text"`
	Checked  bool    `json:"checked"`
	Duration float64 `json:"duration"`

	Removable bool `json:"removable"`
	Renamable bool `json:"renamable"`

	// Group fields.
	SNR *float64 `json:"snr,omitempty"`

	// Segment fields.
	Start     *float64 `json:"startTime,omitempty"`
	End       *float64 `json:"endTime,omitempty"`
	Editable  *bool    `json:"editable,omitempty"`
	Color     string   `json:"color,omitempty"`
	LabelText string   `json:"labelText,omitempty"`

	Children []NodeView `json:"children,omitempty"`
}

// StateResponse is the response for GET /v1/annotate/documents/:name.
type StateResponse struct {
	// Name is the document name.
	Name string `json:"name"`

	// FormatVersion is the loaded annotations format version.
	FormatVersion string `json:"format_version,omitempty"`

	// Nodes is the root-level outline of the tree.
	Nodes []NodeView `json:"nodes"`

	// NodeCount is the total number of nodes in the tree.
	NodeCount int `json:"node_count"`

	// UndoDepth and RedoDepth are the current history depths.
	UndoDepth int `json:"undo_depth"`
	RedoDepth int `json:"redo_depth"`

	// HistoryDisabled reports a poisoned history after a replay failure.
	HistoryDisabled bool `json:"history_disabled"`

	// Dirty reports unsaved edits.
	Dirty bool `json:"dirty"`
}

// DestinationView is one expanded move/copy destination.
type DestinationView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DestinationsResponse is the response for GET .../nodes/:id/destinations.
type DestinationsResponse struct {
	NodeID string            `json:"node_id"`
	MoveTo []DestinationView `json:"move_to"`
	CopyTo []DestinationView `json:"copy_to"`
}

// SearchHit is one transcript search result.
type SearchHit struct {
	// SegmentID is the matching segment.
	SegmentID string `json:"segment_id"`

	// Text is the indexed transcript chunk.
	Text string `json:"text"`

	// Score is the relevance score reported by the index.
	Score float64 `json:"score"`
}

// SearchResponse is the response for GET .../search.
type SearchResponse struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

// TranscribeResponse is the response for POST .../nodes/:id/transcribe.
type TranscribeResponse struct {
	NodeID string `json:"node_id"`
	Text   string `json:"text"`
}

// CloseResponse is the response for POST .../close.
type CloseResponse struct {
	Name  string `json:"name"`
	Saved bool   `json:"saved"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Ready         bool `json:"ready"`
	OpenDocuments int  `json:"open_documents"`
	SearchOK      bool `json:"search_ok"`
	AssistOK      bool `json:"assist_ok"`
}
