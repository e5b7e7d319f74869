// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assist

import "errors"

var (
	// ErrNoAPIKey is returned when no API key is configured or discoverable.
	ErrNoAPIKey = errors.New("no API key configured")

	// ErrMediaNotFound is returned when no media file exists for a document.
	ErrMediaNotFound = errors.New("media file not found")

	// ErrNotWAV is returned when the media file is not a RIFF/WAVE file.
	ErrNotWAV = errors.New("media file is not a WAV file")

	// ErrBadClip is returned when the requested clip boundaries fall
	// outside the media or are inverted.
	ErrBadClip = errors.New("clip boundaries outside media")
)
