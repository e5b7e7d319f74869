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

import "errors"

var (
	// ErrUnknownCommand is returned when a command frame names an action
	// the dispatcher does not recognize.
	ErrUnknownCommand = errors.New("unknown command action")

	// ErrMissingField is returned when a command omits a field its action
	// requires, such as a segment add without boundaries.
	ErrMissingField = errors.New("missing required field")

	// ErrTooManyDocuments is returned when opening another document would
	// exceed the configured limit and no idle session can be evicted.
	ErrTooManyDocuments = errors.New("too many open documents")

	// ErrNotConfigured is returned by optional features (search, assist,
	// archive) when the deployment does not configure them.
	ErrNotConfigured = errors.New("feature not configured")

	// ErrNoTranscripts is returned when a labeling request finds no
	// transcript text under the target node.
	ErrNoTranscripts = errors.New("no transcript text available")
)
