// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

func TestChunkID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := chunkID("interview1", "seg-1", 0)
		b := chunkID("interview1", "seg-1", 0)
		if a != b {
			t.Errorf("same inputs produced %q and %q", a, b)
		}
	})

	t.Run("distinct per chunk", func(t *testing.T) {
		ids := map[string]bool{
			chunkID("interview1", "seg-1", 0): true,
			chunkID("interview1", "seg-1", 1): true,
			chunkID("interview1", "seg-2", 0): true,
			chunkID("interview2", "seg-1", 0): true,
		}
		if len(ids) != 4 {
			t.Errorf("expected 4 distinct ids, got %d", len(ids))
		}
	})
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want float64
	}{
		{"string score", "1.25", 1.25},
		{"float score", 2.5, 2.5},
		{"garbage string", "abc", 0},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseScore(tc.in); got != tc.want {
				t.Errorf("parseScore(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseHits(t *testing.T) {
	t.Run("well-formed response", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]interface{}{
					className: []interface{}{
						map[string]interface{}{
							"text":      "hello there",
							"segmentId": "seg-1",
							"_additional": map[string]interface{}{
								"score": "0.75",
							},
						},
					},
				},
			},
		}
		hits := parseHits(resp)
		if len(hits) != 1 {
			t.Fatalf("len(hits) = %d, want 1", len(hits))
		}
		if hits[0].SegmentID != "seg-1" || hits[0].Text != "hello there" || hits[0].Score != 0.75 {
			t.Errorf("unexpected hit: %+v", hits[0])
		}
	})

	t.Run("malformed rows are skipped", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]interface{}{
					className: []interface{}{"not a map", 42},
				},
			},
		}
		if hits := parseHits(resp); len(hits) != 0 {
			t.Errorf("len(hits) = %d, want 0", len(hits))
		}
	})

	t.Run("missing Get section", func(t *testing.T) {
		resp := &models.GraphQLResponse{Data: map[string]models.JSONObject{}}
		if hits := parseHits(resp); hits == nil || len(hits) != 0 {
			t.Errorf("want empty non-nil slice, got %v", hits)
		}
	})
}

func TestClientConfigValidate(t *testing.T) {
	cfg := DefaultClientConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("config without URL should not validate")
	}

	cfg.URL = "http://localhost:8080"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg.RetryJitter = 2
	if err := cfg.Validate(); err == nil {
		t.Error("jitter > 1 should not validate")
	}
}

func TestCalculateBackoff(t *testing.T) {
	c := &Client{config: ClientConfig{
		RetryBackoff:    100,
		MaxRetryBackoff: 400,
		RetryJitter:     0,
	}}

	if got := c.calculateBackoff(1); got != 100 {
		t.Errorf("attempt 1 backoff = %v, want 100", got)
	}
	if got := c.calculateBackoff(2); got != 200 {
		t.Errorf("attempt 2 backoff = %v, want 200", got)
	}
	// Capped at MaxRetryBackoff.
	if got := c.calculateBackoff(10); got != 400 {
		t.Errorf("attempt 10 backoff = %v, want 400", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateConnected:   "connected",
		StateDegraded:    "degraded",
		StateCircuitOpen: "circuit_open",
		StateHalfOpen:    "half_open",
		State(99):        "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
