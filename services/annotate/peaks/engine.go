// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package peaks defines the waveform engine contract consumed by the
// annotation tree model, along with a playback sequencer that plays ordered
// interval lists as a cancellable task. The real engine lives on the client
// side of a session transport.
package peaks

import (
	"fmt"
	"sync"
)

// Interval describes one time-interval marker handed to the engine.
type Interval struct {
	// Start is the interval start in seconds.
	Start float64

	// End is the exclusive interval end in seconds.
	End float64

	// Editable controls whether the engine allows drag-resizing the marker.
	Editable bool

	// Color is the marker color, empty for the engine default.
	Color string

	// LabelText is the label drawn on the marker.
	LabelText string
}

// IntervalUpdate carries the fields of an existing marker to change. Nil
// fields are left untouched.
type IntervalUpdate struct {
	Start     *float64
	End       *float64
	Color     *string
	LabelText *string
}

// Engine is the narrow surface the tree model needs from a waveform/media
// engine. Adds and removes are batched so a group toggle is one call, not
// one call per segment.
type Engine interface {
	// AddIntervals creates markers for the given intervals and returns one
	// engine id per interval, in order.
	AddIntervals(specs []Interval) ([]string, error)

	// RemoveIntervals removes the markers with the given engine ids.
	RemoveIntervals(ids []string) error

	// UpdateInterval changes fields of an existing marker.
	UpdateInterval(id string, fields IntervalUpdate) error

	// PlayInterval starts playback of one marker, optionally looping it.
	PlayInterval(id string, loop bool) error

	// IsPlaying reports whether the engine is currently playing.
	IsPlaying() bool

	// Pause stops playback, leaving the position where it is.
	Pause() error
}

// AddInterval adds a single marker through the batched call.
func AddInterval(e Engine, spec Interval) (string, error) {
	ids, err := e.AddIntervals([]Interval{spec})
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("engine returned %d ids for one interval", len(ids))
	}
	return ids[0], nil
}

// Nop is an Engine that issues ids and discards everything else. Used for
// headless operations such as batch import and ranking from the CLI.
type Nop struct {
	next int
}

// NewNop creates a Nop engine.
func NewNop() *Nop {
	return &Nop{}
}

// AddIntervals issues sequential ids.
func (n *Nop) AddIntervals(specs []Interval) ([]string, error) {
	ids := make([]string, len(specs))
	for i := range specs {
		n.next++
		ids[i] = fmt.Sprintf("interval-%d", n.next)
	}
	return ids, nil
}

// RemoveIntervals does nothing.
func (n *Nop) RemoveIntervals([]string) error { return nil }

// UpdateInterval does nothing.
func (n *Nop) UpdateInterval(string, IntervalUpdate) error { return nil }

// PlayInterval does nothing.
func (n *Nop) PlayInterval(string, bool) error { return nil }

// IsPlaying always reports false.
func (n *Nop) IsPlaying() bool { return false }

// Pause does nothing.
func (n *Nop) Pause() error { return nil }

// Recorder is an Engine that records every call for test assertions.
//
// Playback finishes after a configurable number of IsPlaying polls (zero by
// default), so sequencer tests run without real timers.
//
// Thread Safety: safe for concurrent use; the playback sequencer queries
// IsPlaying from its own goroutine.
type Recorder struct {
	mu      sync.Mutex
	next    int
	calls   []string
	busy    int
	pending int

	// ByID maps issued engine ids to the label they were created with.
	ByID map[string]string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{ByID: make(map[string]string)}
}

// AddIntervals issues ids and records one batched call.
func (r *Recorder) AddIntervals(specs []Interval) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(specs))
	labels := make([]string, len(specs))
	for i, s := range specs {
		r.next++
		ids[i] = fmt.Sprintf("interval-%d", r.next)
		r.ByID[ids[i]] = s.LabelText
		labels[i] = s.LabelText
	}
	r.calls = append(r.calls, fmt.Sprintf("add %v", labels))
	return ids, nil
}

// RemoveIntervals records one batched call.
func (r *Recorder) RemoveIntervals(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = r.ByID[id]
	}
	r.calls = append(r.calls, fmt.Sprintf("remove %v", labels))
	return nil
}

// UpdateInterval records the update.
func (r *Recorder) UpdateInterval(id string, fields IntervalUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fields.LabelText != nil {
		r.ByID[id] = *fields.LabelText
	}
	r.calls = append(r.calls, fmt.Sprintf("update %s", r.ByID[id]))
	return nil
}

// SetBusy sets how many IsPlaying polls report true after each play before
// the recorder considers the interval finished.
func (r *Recorder) SetBusy(polls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = polls
}

// PlayInterval records the play request.
func (r *Recorder) PlayInterval(id string, loop bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = r.busy
	r.calls = append(r.calls, fmt.Sprintf("play %s loop=%t", r.ByID[id], loop))
	return nil
}

// IsPlaying reports true for the configured number of polls, then false.
func (r *Recorder) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending > 0 {
		r.pending--
		return true
	}
	return false
}

// Pause records the pause.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = 0
	r.calls = append(r.calls, "pause")
	return nil
}

// Calls returns a copy of the recorded calls, oldest first.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset clears the call log without invalidating issued ids.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
