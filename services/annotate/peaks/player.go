// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package peaks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultPollInterval = 50 * time.Millisecond

// Player plays an ordered list of engine intervals one after another as a
// background task. Playing a group means handing Player the group's visible
// segment ids in tree order; Player drives the engine one interval at a time
// because the engine itself only plays a single interval.
//
// Thread Safety: all methods are safe for concurrent use. At most one
// sequence runs at a time; starting a new one stops the previous one first.
type Player struct {
	engine Engine
	poll   time.Duration
	logger *slog.Logger

	// startMu serializes Play calls so two sequences never overlap.
	startMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPollInterval sets how often Player asks the engine whether the current
// interval has finished.
func WithPollInterval(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithPlayerLogger sets the logger used by the playback task.
func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPlayer creates a Player driving the given engine.
func NewPlayer(engine Engine, opts ...PlayerOption) *Player {
	p := &Player{
		engine: engine,
		poll:   defaultPollInterval,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play starts playing the given engine interval ids in order and returns
// immediately. When loop is true the whole list restarts after the last
// interval finishes, until Stop is called or ctx is cancelled. Any sequence
// already running is stopped first. An empty list is a no-op.
func (p *Player) Play(ctx context.Context, ids []string, loop bool) {
	if len(ids) == 0 {
		return
	}
	p.startMu.Lock()
	defer p.startMu.Unlock()
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	seq := make([]string, len(ids))
	copy(seq, ids)
	go p.run(runCtx, seq, loop, done)
}

// Stop cancels the running sequence, pauses the engine, and waits for the
// playback task to exit. Stopping an idle Player is a no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Playing reports whether a sequence task is currently running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

func (p *Player) run(ctx context.Context, ids []string, loop bool, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := p.engine.Pause(); err != nil {
			p.logger.Warn("pause after sequence failed", "error", err)
		}
		p.mu.Lock()
		if p.done == done {
			p.cancel = nil
			p.done = nil
		}
		p.mu.Unlock()
	}()

	for {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			if err := p.engine.PlayInterval(id, false); err != nil {
				p.logger.Error("play interval failed", "interval_id", id, "error", err)
				return
			}
			if !p.waitForFinish(ctx) {
				return
			}
		}
		if !loop {
			return
		}
	}
}

// waitForFinish polls the engine until the current interval stops playing.
// It returns false when ctx is cancelled.
func (p *Player) waitForFinish(ctx context.Context) bool {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if !p.engine.IsPlaying() {
				return true
			}
		}
	}
}
