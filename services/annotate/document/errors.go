// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import "errors"

// Sentinel errors for the document package.
var (
	// ErrInvalidInput is returned when a caller passes invalid arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDocument is returned when the payload holds no content.
	ErrEmptyDocument = errors.New("empty document")

	// ErrMalformedDocument is returned when the payload is not valid JSON or
	// does not match either supported annotation format.
	ErrMalformedDocument = errors.New("malformed annotation document")

	// ErrUnsupportedVersion is returned when the document declares a format
	// version this build does not read. Documents newer than the supported
	// version are rejected rather than partially imported.
	ErrUnsupportedVersion = errors.New("unsupported format version")
)
