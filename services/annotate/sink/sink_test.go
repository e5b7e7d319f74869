// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"testing"
	"time"

	"github.com/evfinkn/speechviz-sub000/services/annotate"
)

func TestPointFor(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := annotate.Event{
		ID:        "evt-1",
		Document:  "interview1",
		Action:    "move",
		NodeID:    "seg-3",
		SessionID: "sess-9",
		Timestamp: ts,
	}

	p := pointFor("annotation_edits", event)

	if p.Name() != "annotation_edits" {
		t.Errorf("measurement = %q, want annotation_edits", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("time = %v, want %v", p.Time(), ts)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["document"] != "interview1" || tags["action"] != "move" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["node_id"] != "seg-3" {
		t.Errorf("node_id field = %v", fields["node_id"])
	}
	if fields["session_id"] != "sess-9" {
		t.Errorf("session_id field = %v", fields["session_id"])
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Measurement != "annotation_edits" {
		t.Errorf("Measurement = %q", cfg.Measurement)
	}
	if cfg.BufferSize <= 0 {
		t.Error("BufferSize must be positive")
	}
	if cfg.FlushTimeout <= 0 {
		t.Error("FlushTimeout must be positive")
	}
}
