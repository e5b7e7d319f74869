// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDocumentName(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/data/annotations/interview1.json", "interview1"},
		{"meeting.v2.json", "meeting.v2"},
		{"/data/annotations/plain", "plain"},
	}
	for _, tc := range cases {
		if got := DocumentName(tc.path); got != tc.want {
			t.Errorf("DocumentName(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("empty directory is rejected", func(t *testing.T) {
		if _, err := New("", nil, nil); !errors.Is(err, ErrNoDirectory) {
			t.Errorf("err = %v, want ErrNoDirectory", err)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		w, err := New(t.TempDir(), nil, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer w.Stop()
		if w.opts.DebounceWindow != 250*time.Millisecond {
			t.Errorf("DebounceWindow = %v, want 250ms", w.opts.DebounceWindow)
		}
	})
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var got []Change
	done := make(chan struct{}, 1)

	w, err := New(dir, func(changes []Change) {
		mu.Lock()
		got = append(got, changes...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}, &Options{DebounceWindow: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	path := filepath.Join(dir, "interview1.json")
	if err := os.WriteFile(path, []byte(`{"formatVersion":"1.0.0"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Non-annotation files must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("no changes reported")
	}
	for _, change := range got {
		if change.Document != "interview1" {
			t.Errorf("unexpected document %q", change.Document)
		}
		if change.Removed {
			t.Errorf("write reported as removal: %+v", change)
		}
	}
}

func TestDedupeKeepsLatestPerDocument(t *testing.T) {
	now := time.Now()
	changes := []Change{
		{Document: "a", Time: now},
		{Document: "b", Time: now},
		{Document: "a", Removed: true, Time: now.Add(time.Millisecond)},
	}

	deduped := dedupe(changes)
	if len(deduped) != 2 {
		t.Fatalf("len = %d, want 2", len(deduped))
	}
	if deduped[0].Document != "a" || !deduped[0].Removed {
		t.Errorf("latest change for a not kept: %+v", deduped[0])
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.Stop()
	w.Stop()
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}
