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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evfinkn/speechviz-sub000/services/annotate/action"
	"github.com/evfinkn/speechviz-sub000/services/annotate/document"
	"github.com/evfinkn/speechviz-sub000/services/annotate/store"
	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// ServiceVersion is the annotation service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the annotation service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleListDocuments handles GET /v1/annotate/documents.
//
// Description:
//
//	Lists every stored document with its format version, last write time
//	and whether a session is currently open for it.
//
// Response:
//
//	200 OK: ListDocumentsResponse
//	500 Internal Server Error: Store failure
func (h *Handlers) HandleListDocuments(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListDocuments")

	resp, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleImportDocument handles PUT /v1/annotate/documents/:name.
//
// Description:
//
//	Stores the request body as the document's base annotations. The body
//	is a raw annotation document, either a legacy tuple array or a typed
//	versioned envelope. Re-importing an existing name replaces the base
//	annotations and invalidates any open session.
//
// Request Body:
//
//	Raw annotation JSON
//
// Response:
//
//	200 OK: ImportResponse
//	400 Bad Request: Malformed document or invalid name
//	500 Internal Server Error: Store failure
func (h *Handlers) HandleImportDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleImportDocument")

	name := c.Param("name")
	data, err := c.GetRawData()
	if err != nil {
		logger.Warn("Unreadable request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unreadable request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Importing document", "document", name, "bytes", len(data))

	resp, err := h.svc.Import(c.Request.Context(), name, data)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	logger.Info("Document imported",
		"document", resp.Name,
		"format_version", resp.FormatVersion,
		"segments", resp.Segments,
		"skipped", len(resp.Skipped))
	c.JSON(http.StatusOK, resp)
}

// HandleGetDocument handles GET /v1/annotate/documents/:name.
//
// Description:
//
//	Returns the document's full annotation outline, opening a session
//	from the store on first touch.
//
// Response:
//
//	200 OK: StateResponse
//	404 Not Found: Unknown document
func (h *Handlers) HandleGetDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetDocument")

	resp, err := h.svc.State(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeleteDocument handles DELETE /v1/annotate/documents/:name.
func (h *Handlers) HandleDeleteDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteDocument")

	name := c.Param("name")
	if err := h.svc.Delete(c.Request.Context(), name); err != nil {
		respondError(c, logger, err)
		return
	}
	logger.Info("Document deleted", "document", name)
	c.Status(http.StatusNoContent)
}

// HandleCloseDocument handles POST /v1/annotate/documents/:name/close.
//
// Description:
//
//	Drops the document's session. With ?save=true the session payload is
//	written to the store first; without it unsaved edits are discarded.
//
// Response:
//
//	200 OK: CloseResponse
//	404 Not Found: Unknown document
func (h *Handlers) HandleCloseDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCloseDocument")

	name := c.Param("name")
	save := c.Query("save") == "true"
	if err := h.svc.Close(c.Request.Context(), name, save); err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, CloseResponse{Name: name, Saved: save})
}

// HandleSaveDocument handles POST /v1/annotate/documents/:name/save.
//
// Description:
//
//	Encodes the session's editable segments and moved-segment deltas and
//	writes them onto the stored document, next to the base annotations.
//
// Response:
//
//	200 OK: SaveResponse
//	404 Not Found: Unknown document
//	500 Internal Server Error: Store failure
func (h *Handlers) HandleSaveDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSaveDocument")

	resp, err := h.svc.Save(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	logger.Info("Document saved", "document", resp.Name, "segments", resp.Segments)
	c.JSON(http.StatusOK, resp)
}

// HandleExportDocument handles GET /v1/annotate/documents/:name/export.
//
// Description:
//
//	Renders the session's current state as a save payload without
//	writing it to the store. Useful for downloads and backups.
//
// Response:
//
//	200 OK: Save payload JSON
//	404 Not Found: Unknown document
func (h *Handlers) HandleExportDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExportDocument")

	data, err := h.svc.Export(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// HandleCommand handles POST /v1/annotate/documents/:name/commands.
//
// Description:
//
//	Applies one edit command to the document's tree and records it in
//	the undo history. The action field picks the edit kind; the other
//	fields it needs depend on the action.
//
// Request Body:
//
//	Command
//
// Response:
//
//	200 OK: CommandResult
//	400 Bad Request: Unknown action or missing field
//	403 Forbidden: Node locked against the edit
//	404 Not Found: Unknown document or node
//	409 Conflict: Duplicate id or cyclic move
func (h *Handlers) HandleCommand(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCommand")

	var cmd Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	name := c.Param("name")
	resp, err := h.svc.ApplyCommand(c.Request.Context(), name, cmd)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	logger.Info("Command applied",
		"document", name,
		"action", resp.Action,
		"node_id", resp.NodeID,
		"undo_depth", resp.UndoDepth)
	c.JSON(http.StatusOK, resp)
}

// HandleUndo handles POST /v1/annotate/documents/:name/undo.
//
// Response:
//
//	200 OK: CommandResult
//	409 Conflict: Nothing to undo, or history disabled
func (h *Handlers) HandleUndo(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUndo")

	resp, err := h.svc.Undo(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRedo handles POST /v1/annotate/documents/:name/redo.
//
// Response:
//
//	200 OK: CommandResult
//	409 Conflict: Nothing to redo, or history disabled
func (h *Handlers) HandleRedo(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRedo")

	resp, err := h.svc.Redo(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRank handles POST /v1/annotate/documents/:name/rank.
//
// Description:
//
//	Ranks the document's SNR-bearing groups, prefixes their labels with
//	the rank and reorders them best first.
//
// Response:
//
//	200 OK: RankResponse
//	404 Not Found: Unknown document
func (h *Handlers) HandleRank(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRank")

	resp, err := h.svc.Rank(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	logger.Info("Groups ranked",
		"document", c.Param("name"),
		"ranked", len(resp.Ranked),
		"primary", resp.Primary)
	c.JSON(http.StatusOK, resp)
}

// HandleToggleNode handles POST /v1/annotate/documents/:name/nodes/:id/toggle.
//
// Description:
//
//	Flips the node's checked state, or forces it with the optional force
//	field. Checked state cascades: unchecking a group hides its visible
//	segments, rechecking restores exactly the ones hidden by that group.
//
// Request Body:
//
//	ToggleRequest (optional)
//
// Response:
//
//	200 OK: ToggleResponse
//	404 Not Found: Unknown document or node
func (h *Handlers) HandleToggleNode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleToggleNode")

	var req ToggleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	resp, err := h.svc.Toggle(c.Request.Context(), c.Param("name"), c.Param("id"), req.Force)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleNodeDestinations handles GET /v1/annotate/documents/:name/nodes/:id/destinations.
//
// Description:
//
//	Expands the node's moveTo and copyTo rules into the concrete groups
//	it can currently be moved or copied into.
//
// Response:
//
//	200 OK: DestinationsResponse
//	404 Not Found: Unknown document or node
func (h *Handlers) HandleNodeDestinations(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleNodeDestinations")

	resp, err := h.svc.Destinations(c.Request.Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePlayNode handles POST /v1/annotate/documents/:name/nodes/:id/play.
//
// Description:
//
//	Starts playback of the node's checked intervals, in time order for
//	groups and pre-order for containers. Attached websocket clients
//	receive the play frames; playback state comes back from them.
//
// Request Body:
//
//	PlayRequest (optional)
//
// Response:
//
//	200 OK: PlayResponse
//	404 Not Found: Unknown document or node
func (h *Handlers) HandlePlayNode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePlayNode")

	var req PlayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	resp, err := h.svc.Play(c.Request.Context(), c.Param("name"), c.Param("id"), req.Loop)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePauseDocument handles POST /v1/annotate/documents/:name/pause.
func (h *Handlers) HandlePauseDocument(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePauseDocument")

	if err := h.svc.Pause(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSearch handles GET /v1/annotate/documents/:name/search.
//
// Description:
//
//	Queries the document's indexed transcripts. Requires a search
//	backend; deployments without one get 503.
//
// Query Parameters:
//
//	q - Search text (required)
//	limit - Maximum hits to return (default 10)
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: Missing query
//	503 Service Unavailable: Search not configured
func (h *Handlers) HandleSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSearch")

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			logger.Warn("Invalid limit", "limit", raw)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid limit parameter",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = parsed
	}

	resp, err := h.svc.Search(c.Request.Context(), c.Param("name"), c.Query("q"), limit)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleTranscribeNode handles POST /v1/annotate/documents/:name/nodes/:id/transcribe.
//
// Description:
//
//	Runs speech recognition over one segment's clip and returns the
//	text without modifying the tree. Requires an assist backend.
//
// Response:
//
//	200 OK: TranscribeResponse
//	404 Not Found: Unknown document or segment
//	503 Service Unavailable: Assist not configured
func (h *Handlers) HandleTranscribeNode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTranscribeNode")

	resp, err := h.svc.Transcribe(c.Request.Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleLabelNode handles POST /v1/annotate/documents/:name/nodes/:id/label.
//
// Description:
//
//	Asks the assist backend to summarize the transcripts under a group
//	into a short label and applies it as an undoable rename.
//
// Response:
//
//	200 OK: CommandResult
//	400 Bad Request: No transcript text under the node
//	404 Not Found: Unknown document or node
//	503 Service Unavailable: Assist not configured
func (h *Handlers) HandleLabelNode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLabelNode")

	resp, err := h.svc.LabelGroup(c.Request.Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	logger.Info("Group labeled", "document", c.Param("name"), "node_id", resp.NodeID)
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/annotate/health.
//
// Description:
//
//	Returns the health status of the service. Always returns 200 if running.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/annotate/ready.
//
// Description:
//
//	Returns the readiness status of the service including a store probe.
//	Returns 503 Service Unavailable when the store cannot be read.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	_, err := h.svc.store.List(c.Request.Context())

	resp := ReadyResponse{
		Ready:         err == nil,
		OpenDocuments: h.svc.OpenCount(),
		SearchOK:      h.svc.search != nil,
		AssistOK:      h.svc.assist != nil,
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// respondError writes the error as JSON using the shared status mapping.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// errorStatus maps service errors onto HTTP status codes and stable
// client-facing error codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, tree.ErrNotFound):
		return http.StatusNotFound, "NODE_NOT_FOUND"
	case errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest, "INVALID_NAME"
	case errors.Is(err, document.ErrUnsupportedVersion):
		return http.StatusBadRequest, "UNSUPPORTED_VERSION"
	case errors.Is(err, document.ErrEmptyDocument),
		errors.Is(err, document.ErrMalformedDocument),
		errors.Is(err, document.ErrInvalidInput):
		return http.StatusBadRequest, "MALFORMED_DOCUMENT"
	case errors.Is(err, tree.ErrDuplicateID):
		return http.StatusConflict, "DUPLICATE_ID"
	case errors.Is(err, tree.ErrCyclicMove):
		return http.StatusConflict, "CYCLIC_MOVE"
	case errors.Is(err, tree.ErrNotRemovable),
		errors.Is(err, tree.ErrNotRenamable),
		errors.Is(err, tree.ErrNotEditable):
		return http.StatusForbidden, "NODE_LOCKED"
	case errors.Is(err, tree.ErrInvalidParent),
		errors.Is(err, tree.ErrInvalidInterval):
		return http.StatusBadRequest, "INVALID_NODE"
	case errors.Is(err, tree.ErrMaxNodesExceeded):
		return http.StatusBadRequest, "TREE_TOO_LARGE"
	case errors.Is(err, action.ErrNothingToUndo):
		return http.StatusConflict, "NOTHING_TO_UNDO"
	case errors.Is(err, action.ErrNothingToRedo):
		return http.StatusConflict, "NOTHING_TO_REDO"
	case errors.Is(err, action.ErrHistoryDisabled):
		return http.StatusConflict, "HISTORY_DISABLED"
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusBadRequest, "UNKNOWN_ACTION"
	case errors.Is(err, ErrMissingField):
		return http.StatusBadRequest, "MISSING_FIELD"
	case errors.Is(err, ErrNoTranscripts):
		return http.StatusBadRequest, "NO_TRANSCRIPTS"
	case errors.Is(err, ErrTooManyDocuments):
		return http.StatusConflict, "TOO_MANY_DOCUMENTS"
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable, "NOT_CONFIGURED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
