// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch keeps the annotation service coherent with external edits.
//
// The serve path points a Watcher at the annotations directory; when an
// annotation file changes on disk the watcher re-imports it (creates and
// writes) or deletes it (removes), so in-memory sessions never shadow a
// newer file for long. Changes are debounced because editors and export
// pipelines write files in bursts.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is one debounced annotation file change.
type Change struct {
	// Document is the document name derived from the file name.
	Document string

	// Path is the absolute path of the changed file.
	Path string

	// Removed reports a delete or rename-away rather than a write.
	Removed bool

	// Time is when the change was detected.
	Time time.Time
}

// Handler receives a debounced batch of changes. It is called from a
// single goroutine.
type Handler func(changes []Change)

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait for more changes before the
	// handler fires. Default: 250ms
	DebounceWindow time.Duration

	// Extensions are the file extensions treated as annotation files.
	// Default: [".json"]
	Extensions []string

	// BufferSize is the size of the internal change channel.
	// Default: 256
	BufferSize int

	// Logger for watcher diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 250 * time.Millisecond,
		Extensions:     []string{".json"},
		BufferSize:     256,
	}
}

// Watcher watches one annotations directory and reports document-level
// changes after a debounce window.
//
// Thread Safety: Safe for concurrent use. The handler runs on a single
// goroutine owned by the watcher.
type Watcher struct {
	dir     string
	handler Handler
	opts    Options
	logger  *slog.Logger

	fsw      *fsnotify.Watcher
	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool
}

// New creates a watcher over the given directory. Call Start to begin
// watching and Stop when done.
func New(dir string, handler Handler, opts *Options) (*Watcher, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}
	resolved := DefaultOptions()
	if opts != nil {
		if opts.DebounceWindow > 0 {
			resolved.DebounceWindow = opts.DebounceWindow
		}
		if len(opts.Extensions) > 0 {
			resolved.Extensions = opts.Extensions
		}
		if opts.BufferSize > 0 {
			resolved.BufferSize = opts.BufferSize
		}
		if opts.Logger != nil {
			resolved.Logger = opts.Logger
		}
	}
	if resolved.Logger == nil {
		resolved.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:     dir,
		handler: handler,
		opts:    resolved,
		logger:  resolved.Logger.With("component", "annotations_watcher"),
		fsw:     fsw,
		changes: make(chan Change, resolved.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The two goroutines it spawns exit when Stop is
// called or the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("watching annotations directory", "dir", w.dir)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// DocumentName derives the document name from an annotation file path:
// the base name without the annotation extension.
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isAnnotationFile reports whether the path carries a watched extension.
func (w *Watcher) isAnnotationFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range w.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// processEvents converts fsnotify events into Changes.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.isAnnotationFile(event.Name) {
				continue
			}

			change := Change{
				Document: DocumentName(event.Name),
				Path:     event.Name,
				Removed:  event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename),
				Time:     time.Now(),
			}

			select {
			case w.changes <- change:
			default:
				// Buffer full; the debouncer will still see a later
				// event for the same burst.
				w.logger.Warn("change buffer full, dropping event", "path", event.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// debounceLoop batches changes and calls the handler once the window
// expires without further activity.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if len(deduped) > 0 && w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the most recent change per document.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int)
	result := make([]Change, 0, len(changes))
	for _, change := range changes {
		if idx, ok := seen[change.Document]; ok {
			result[idx] = change
		} else {
			seen[change.Document] = len(result)
			result = append(result, change)
		}
	}
	return result
}
