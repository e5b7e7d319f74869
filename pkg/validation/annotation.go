// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up
// in store keys, file paths, or rendered markup. Using these validators
// prevents injection attacks (path traversal, key collisions, CSS/style
// injection through segment colors).
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// documentNamePattern matches valid annotation document names.
// Allows: letters, digits, dots, underscores, hyphens. No separators or
// traversal sequences, since names become store keys and file names.
// Max length: 128 characters.
var documentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// colorPattern matches CSS hex colors (#rgb, #rrggbb, #rrggbbaa).
var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ValidateDocumentName validates an annotation document name so it is
// safe to use as a store key and a file name.
//
// Valid names:
//   - 1-128 characters
//   - Letters, digits, dots, underscores, hyphens
//   - Must start with a letter or digit (no dotfiles, no "..")
//
// Example:
//
//	if err := validation.ValidateDocumentName(name); err != nil {
//	    return fmt.Errorf("invalid document name: %w", err)
//	}
func ValidateDocumentName(name string) error {
	if name == "" {
		return fmt.Errorf("document name cannot be empty")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid document name: %q (must not contain traversal sequences)", name)
	}
	if !documentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid document name: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens)", name)
	}
	return nil
}

// SanitizeDocumentName trims and validates a document name. Returns the
// trimmed name if valid.
func SanitizeDocumentName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateDocumentName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateColor validates a segment marker color. Empty is allowed (the
// engine default applies); anything else must be a CSS hex color so it
// cannot smuggle markup into the rendered tree.
func ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("invalid color: %q (must be #rgb, #rrggbb, or #rrggbbaa)", color)
	}
	return nil
}

// ValidateTimeRange validates segment boundaries: both non-negative and
// start strictly before end.
func ValidateTimeRange(start, end float64) error {
	if start < 0 {
		return fmt.Errorf("start time %v is negative", start)
	}
	if end <= start {
		return fmt.Errorf("time range [%v, %v) is empty or inverted", start, end)
	}
	return nil
}

// RegisterTimeRange registers the "timerange" struct-level rule with a
// validator engine (such as gin's binding validator). It applies to
// structs carrying StartTime/EndTime float64 fields via pointer.
//
// Example:
//
//	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
//	    validation.RegisterTimeRange(v)
//	}
func RegisterTimeRange(v *validator.Validate) error {
	return v.RegisterValidation("timerange", func(fl validator.FieldLevel) bool {
		// The tag sits on the end-time field; the start is its sibling.
		end, ok := fl.Field().Interface().(float64)
		if !ok {
			return false
		}
		start := fl.Parent().FieldByName("Start")
		if start.Kind() == reflect.Ptr {
			if start.IsNil() {
				return end >= 0
			}
			start = start.Elem()
		}
		if !start.IsValid() || start.Kind() != reflect.Float64 {
			return end >= 0
		}
		return ValidateTimeRange(start.Float(), end) == nil
	})
}
