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

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavFormat holds the fields of a WAV fmt chunk the slicer needs.
type wavFormat struct {
	channels      uint16
	sampleRate    uint32
	blockAlign    uint16
	bitsPerSample uint16
}

// sliceWAV cuts [start, end) seconds out of a PCM WAV file and returns a
// standalone WAV holding just that range. Only the fmt and data chunks
// are carried over; markers and metadata chunks are dropped.
//
// The slicer exists so a segment transcription request uploads seconds of
// audio instead of the whole recording.
func sliceWAV(data []byte, start, end float64) ([]byte, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: [%v, %v)", ErrBadClip, start, end)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var format *wavFormat
	var samples []byte

	// Walk the RIFF chunk list. Chunks are word-aligned.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(data) {
			return nil, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			format = &wavFormat{
				channels:      binary.LittleEndian.Uint16(data[body+2 : body+4]),
				sampleRate:    binary.LittleEndian.Uint32(data[body+4 : body+8]),
				blockAlign:    binary.LittleEndian.Uint16(data[body+12 : body+14]),
				bitsPerSample: binary.LittleEndian.Uint16(data[body+14 : body+16]),
			}
		case "data":
			samples = data[body : body+size]
		}

		offset = body + size
		if size%2 == 1 {
			offset++ // pad byte
		}
	}

	if format == nil || samples == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}
	if format.blockAlign == 0 || format.sampleRate == 0 {
		return nil, fmt.Errorf("%w: zero block align or sample rate", ErrNotWAV)
	}

	frameSize := int(format.blockAlign)
	totalFrames := len(samples) / frameSize

	startFrame := int(start * float64(format.sampleRate))
	endFrame := int(end * float64(format.sampleRate))
	if startFrame >= totalFrames {
		return nil, fmt.Errorf("%w: clip starts past end of media", ErrBadClip)
	}
	if endFrame > totalFrames {
		endFrame = totalFrames
	}
	clip := samples[startFrame*frameSize : endFrame*frameSize]

	return buildWAV(*format, clip), nil
}

// buildWAV assembles a minimal RIFF/WAVE file around PCM sample data.
func buildWAV(format wavFormat, samples []byte) []byte {
	byteRate := format.sampleRate * uint32(format.blockAlign)

	var buf bytes.Buffer
	buf.Grow(44 + len(samples))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, format.channels)
	binary.Write(&buf, binary.LittleEndian, format.sampleRate)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, format.blockAlign)
	binary.Write(&buf, binary.LittleEndian, format.bitsPerSample)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)

	return buf.Bytes()
}
