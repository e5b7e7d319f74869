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
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSRequest is one frame from a websocket client. The embedded Command
// fields cover the edit actions; the extra fields serve toggle, play and
// the playback report.
type WSRequest struct {
	Command
	Force   *bool `json:"force,omitempty"`
	Loop    bool  `json:"loop,omitempty"`
	Playing *bool `json:"playing,omitempty"`
}

// WSResponse answers one request frame. UI frames pushed by the relay
// carry an "event" key instead and are not responses.
type WSResponse struct {
	Action string `json:"action"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
	Result any    `json:"result,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

const (
	// wsWriteWait bounds a single frame write.
	wsWriteWait = 10 * time.Second

	// wsSendBuffer is the per-client outbound frame queue. Relay frames
	// beyond it are dropped; response frames wait for room.
	wsSendBuffer = 64
)

// wsClient is one connected websocket. All writes go through the out
// channel so the write pump is the only goroutine touching the
// connection for writes.
type wsClient struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		out:  make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
}

// trySend queues a frame without blocking. Used by the relay, which
// prefers dropping frames over stalling an edit.
func (cl *wsClient) trySend(data []byte) bool {
	select {
	case cl.out <- data:
		return true
	case <-cl.done:
		return false
	default:
		return false
	}
}

// send queues a response frame, waiting for room. A client that cannot
// drain its queue within the write deadline is closed.
func (cl *wsClient) send(data []byte) bool {
	select {
	case cl.out <- data:
		return true
	case <-cl.done:
		return false
	case <-time.After(wsWriteWait):
		cl.close()
		return false
	}
}

func (cl *wsClient) sendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal websocket frame", "error", err)
		return false
	}
	return cl.send(data)
}

func (cl *wsClient) writePump() {
	defer cl.conn.Close()
	for {
		select {
		case data := <-cl.out:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				cl.close()
				return
			}
		case <-cl.done:
			return
		}
	}
}

// close releases the client once. Closing the connection unblocks the
// read loop; closing done stops the write pump.
func (cl *wsClient) close() {
	cl.once.Do(func() {
		close(cl.done)
		_ = cl.conn.Close()
	})
}

// HandleSession handles GET /v1/annotate/documents/:name/ws.
//
// Description:
//
//	Upgrades to a websocket session on the document. The client receives
//	a session_created frame, then the full outline, then a pushed frame
//	for every tree and interval mutation, whichever client or HTTP
//	request caused it. Request frames carry the same fields as the HTTP
//	command endpoint plus toggle, undo, redo, rank, save, state,
//	destinations, play, pause and the playback state report.
//
// Response:
//
//	101 Switching Protocols on success
//	404 Not Found: Unknown document
func (h *Handlers) HandleSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSession")

	name := c.Param("name")
	sess, err := h.svc.sessionFor(c.Request.Context(), name)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", "error", err)
		return
	}

	client := newWSClient(ws)
	go client.writePump()
	sess.relay.attach(client)
	recordWSConnections(c.Request.Context(), 1)
	defer func() {
		sess.relay.detach(client)
		client.close()
		recordWSConnections(context.Background(), -1)
	}()

	sessionID := uuid.NewString()
	logger.Info("Websocket client connected", "document", name, "session_id", sessionID)

	if !client.sendJSON(map[string]any{
		"action":    "session_created",
		"sessionId": sessionID,
		"document":  name,
	}) {
		return
	}
	if !client.sendJSON(WSResponse{Action: "state", Status: "ok", Result: sess.state()}) {
		return
	}

	for {
		var req WSRequest
		if err := ws.ReadJSON(&req); err != nil {
			logger.Info("Websocket client disconnected", "error", err.Error())
			break
		}

		resp := h.dispatchWS(c.Request.Context(), name, sessionID, sess, req)
		if !client.sendJSON(resp) {
			break
		}
	}
}

// dispatchWS routes one request frame. Edits go through the service so
// events, metrics and eviction bookkeeping match the HTTP path.
func (h *Handlers) dispatchWS(ctx context.Context, name, sessionID string, sess *Session, req WSRequest) WSResponse {
	var result any
	var err error

	switch req.Action {
	case "add_group", "add_groups", "add_segment",
		"remove", "move", "copy", "rename", "resize":
		result, err = h.svc.applyCommand(ctx, name, req.Command, sessionID)
	case "toggle":
		result, err = h.svc.toggle(ctx, name, req.ID, req.Force, sessionID)
	case "undo":
		result, err = h.svc.undo(ctx, name, sessionID)
	case "redo":
		result, err = h.svc.redo(ctx, name, sessionID)
	case "rank":
		result, err = h.svc.rank(ctx, name, sessionID)
	case "save":
		result, err = h.svc.save(ctx, name, sessionID)
	case "label":
		result, err = h.svc.labelGroup(ctx, name, req.ID, sessionID)
	case "state":
		result = sess.state()
	case "destinations":
		result, err = sess.destinations(req.ID)
	case "play":
		result, err = sess.play(req.ID, req.Loop)
	case "pause":
		sess.pause()
	case "playback":
		// Clients report engine playback state; the relay serves it back
		// to the interval player.
		if req.Playing != nil {
			sess.relay.setPlaying(*req.Playing)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, req.Action)
	}

	if err != nil {
		_, code := errorStatus(err)
		return WSResponse{Action: req.Action, Status: "error", Error: err.Error(), Code: code}
	}
	return WSResponse{Action: req.Action, Status: "ok", Result: result}
}
