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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/evfinkn/speechviz-sub000/services/annotate/peaks"
	"github.com/evfinkn/speechviz-sub000/services/annotate/render"
)

// uiRelay is the session's renderer and waveform engine. Every call the
// tree makes is forwarded as a JSON frame to the connected websocket
// clients, in mutation order. With no clients attached the relay behaves
// like the no-op fakes, so HTTP-only edits still work.
//
// Playback state is client-reported: PlayInterval marks the relay playing
// and the client clears it with a playback frame when the interval ends.
// With no clients the flag stays false and sequences drain immediately.
type uiRelay struct {
	logger *slog.Logger

	mu           sync.Mutex
	clients      map[*wsClient]struct{}
	nextHandle   int64
	nextInterval int64
	playing      bool
}

func newUIRelay(logger *slog.Logger) *uiRelay {
	return &uiRelay{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (r *uiRelay) attach(c *wsClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

func (r *uiRelay) detach(c *wsClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

func (r *uiRelay) clientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// closeAll disconnects every client. Used when the session is closed or
// invalidated underneath its connections.
func (r *uiRelay) closeAll() {
	r.mu.Lock()
	clients := make([]*wsClient, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[*wsClient]struct{})
	r.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (r *uiRelay) setPlaying(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = on
}

// broadcast marshals the frame once and hands it to every client. Slow
// clients drop frames instead of stalling the edit path.
func (r *uiRelay) broadcast(frame map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) == 0 {
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		r.logger.Warn("failed to marshal ui frame", "error", err)
		return
	}
	for c := range r.clients {
		if !c.trySend(data) {
			r.logger.Warn("dropping ui frame for slow websocket client")
		}
	}
}

// ====== render.TreeRenderer ======

func (r *uiRelay) CreateVisualNode(parent render.Handle, id, text string) render.Handle {
	r.mu.Lock()
	r.nextHandle++
	h := render.Handle(r.nextHandle)
	r.mu.Unlock()

	r.broadcast(map[string]any{
		"event":  "node_created",
		"handle": h,
		"parent": parent,
		"id":     id,
		"text":   text,
	})
	return h
}

func (r *uiRelay) RemoveVisualNode(h render.Handle) {
	r.broadcast(map[string]any{"event": "node_removed", "handle": h})
}

func (r *uiRelay) MoveVisualNode(h, newParent render.Handle, index int) {
	r.broadcast(map[string]any{
		"event":  "node_moved",
		"handle": h,
		"parent": newParent,
		"index":  index,
	})
}

func (r *uiRelay) SetChecked(h render.Handle, on bool) {
	r.broadcast(map[string]any{"event": "node_checked", "handle": h, "checked": on})
}

func (r *uiRelay) SetActive(h render.Handle, on bool) {
	r.broadcast(map[string]any{"event": "node_active", "handle": h, "active": on})
}

func (r *uiRelay) SetText(h render.Handle, text string) {
	r.broadcast(map[string]any{"event": "node_text", "handle": h, "text": text})
}

func (r *uiRelay) SetTooltip(h render.Handle, tip string) {
	r.broadcast(map[string]any{"event": "node_tooltip", "handle": h, "tooltip": tip})
}

func (r *uiRelay) ReorderChildren(parent render.Handle, ordered []render.Handle) {
	r.broadcast(map[string]any{
		"event":   "children_reordered",
		"handle":  parent,
		"ordered": ordered,
	})
}

// ====== peaks.Engine ======

func (r *uiRelay) AddIntervals(specs []peaks.Interval) ([]string, error) {
	ids := make([]string, len(specs))
	intervals := make([]map[string]any, len(specs))

	r.mu.Lock()
	for i, spec := range specs {
		r.nextInterval++
		ids[i] = fmt.Sprintf("interval-%d", r.nextInterval)
		intervals[i] = map[string]any{
			"id":        ids[i],
			"startTime": spec.Start,
			"endTime":   spec.End,
			"editable":  spec.Editable,
			"color":     spec.Color,
			"labelText": spec.LabelText,
		}
	}
	r.mu.Unlock()

	r.broadcast(map[string]any{"event": "intervals_added", "intervals": intervals})
	return ids, nil
}

func (r *uiRelay) RemoveIntervals(ids []string) error {
	r.broadcast(map[string]any{"event": "intervals_removed", "ids": ids})
	return nil
}

func (r *uiRelay) UpdateInterval(id string, fields peaks.IntervalUpdate) error {
	frame := map[string]any{"event": "interval_updated", "id": id}
	if fields.Start != nil {
		frame["startTime"] = *fields.Start
	}
	if fields.End != nil {
		frame["endTime"] = *fields.End
	}
	if fields.Color != nil {
		frame["color"] = *fields.Color
	}
	if fields.LabelText != nil {
		frame["labelText"] = *fields.LabelText
	}
	r.broadcast(frame)
	return nil
}

func (r *uiRelay) PlayInterval(id string, loop bool) error {
	r.mu.Lock()
	// No client means nothing will ever report the interval finished.
	r.playing = len(r.clients) > 0
	r.mu.Unlock()

	r.broadcast(map[string]any{"event": "play", "id": id, "loop": loop})
	return nil
}

func (r *uiRelay) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

func (r *uiRelay) Pause() error {
	r.mu.Lock()
	r.playing = false
	r.mu.Unlock()

	r.broadcast(map[string]any{"event": "pause"})
	return nil
}
