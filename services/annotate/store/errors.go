// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when no document exists under the given name.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidName is returned when a document name is empty, too long,
	// or contains characters outside [a-zA-Z0-9._-].
	ErrInvalidName = errors.New("invalid document name")
)
