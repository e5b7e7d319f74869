// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package action

import (
	"fmt"
	"log/slog"

	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// History owns the undo and redo stacks for one tree. Both stacks live only
// as long as the session; nothing here is persisted.
//
// A failure while replaying, during Undo or Redo, means the tree no longer
// matches the recorded actions. That is history corruption, not user error:
// History logs it and refuses all further undo/redo instead of replaying
// actions against a state they were not recorded from.
//
// Thread Safety: NOT safe for concurrent use; the annotate service
// serializes per-document commands.
type History struct {
	tree   *tree.Tree
	logger *slog.Logger

	undo     stack[Action]
	redo     stack[Action]
	disabled bool
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithLogger sets the logger used for replay failures.
func WithLogger(logger *slog.Logger) HistoryOption {
	return func(h *History) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHistory creates an empty history over the given tree.
func NewHistory(t *tree.Tree, opts ...HistoryOption) *History {
	h := &History{
		tree:   t,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Apply performs a new user-initiated action. On success the action lands
// on the undo stack and the redo stack is cleared; on failure the tree is
// unchanged and nothing is recorded.
func (h *History) Apply(a Action) error {
	if err := a.Do(h.tree); err != nil {
		return fmt.Errorf("%s: %w", a.Name(), err)
	}
	h.undo.Push(a)
	h.redo.Clear()
	return nil
}

// Undo reverses the most recent action and moves it to the redo stack.
func (h *History) Undo() error {
	if h.disabled {
		return ErrHistoryDisabled
	}
	a, ok := h.undo.Pop()
	if !ok {
		return ErrNothingToUndo
	}
	if err := a.Undo(h.tree); err != nil {
		h.poison("undo", a, err)
		return fmt.Errorf("undo %s: %w", a.Name(), err)
	}
	h.redo.Push(a)
	return nil
}

// Redo replays the most recently undone action and moves it back to the
// undo stack.
func (h *History) Redo() error {
	if h.disabled {
		return ErrHistoryDisabled
	}
	a, ok := h.redo.Pop()
	if !ok {
		return ErrNothingToRedo
	}
	if err := a.Do(h.tree); err != nil {
		h.poison("redo", a, err)
		return fmt.Errorf("redo %s: %w", a.Name(), err)
	}
	h.undo.Push(a)
	return nil
}

// CanUndo reports whether Undo would replay something.
func (h *History) CanUndo() bool { return !h.disabled && h.undo.Len() > 0 }

// CanRedo reports whether Redo would replay something.
func (h *History) CanRedo() bool { return !h.disabled && h.redo.Len() > 0 }

// UndoLen returns the undo stack depth.
func (h *History) UndoLen() int { return h.undo.Len() }

// RedoLen returns the redo stack depth.
func (h *History) RedoLen() int { return h.redo.Len() }

// Disabled reports whether a replay failure has poisoned the history.
func (h *History) Disabled() bool { return h.disabled }

func (h *History) poison(op string, a Action, err error) {
	h.disabled = true
	h.logger.Error("history replay failed, undo/redo disabled",
		"op", op,
		"action", a.Name(),
		"error", err,
	)
}
