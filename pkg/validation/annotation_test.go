// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidateDocumentName(t *testing.T) {
	valid := []string{
		"interview1",
		"meeting-2025.06.01",
		"A_b-c.d",
		"9lives",
	}
	for _, name := range valid {
		if err := ValidateDocumentName(name); err != nil {
			t.Errorf("ValidateDocumentName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"../etc/passwd",
		"a/b",
		".hidden",
		"name with spaces",
		"semi;colon",
		strings.Repeat("a", 129),
	}
	for _, name := range invalid {
		if err := ValidateDocumentName(name); err == nil {
			t.Errorf("ValidateDocumentName(%q) = nil, want error", name)
		}
	}
}

func TestSanitizeDocumentName(t *testing.T) {
	got, err := SanitizeDocumentName("  interview1 ")
	if err != nil {
		t.Fatalf("SanitizeDocumentName() error = %v", err)
	}
	if got != "interview1" {
		t.Errorf("got %q, want interview1", got)
	}

	if _, err := SanitizeDocumentName(" ../x "); err == nil {
		t.Error("traversal name should not sanitize")
	}
}

func TestValidateColor(t *testing.T) {
	valid := []string{"", "#fff", "#00ff00", "#00FF00aa"}
	for _, color := range valid {
		if err := ValidateColor(color); err != nil {
			t.Errorf("ValidateColor(%q) = %v, want nil", color, err)
		}
	}

	invalid := []string{"red", "#12", "#12345", "url(javascript:x)", "#gggggg"}
	for _, color := range invalid {
		if err := ValidateColor(color); err == nil {
			t.Errorf("ValidateColor(%q) = nil, want error", color)
		}
	}
}

func TestValidateTimeRange(t *testing.T) {
	if err := ValidateTimeRange(0, 2); err != nil {
		t.Errorf("ValidateTimeRange(0, 2) = %v", err)
	}
	if err := ValidateTimeRange(-1, 2); err == nil {
		t.Error("negative start should fail")
	}
	if err := ValidateTimeRange(2, 2); err == nil {
		t.Error("empty range should fail")
	}
	if err := ValidateTimeRange(3, 2); err == nil {
		t.Error("inverted range should fail")
	}
}

func TestRegisterTimeRange(t *testing.T) {
	type interval struct {
		Start float64
		End   float64 `validate:"timerange"`
	}

	v := validator.New()
	if err := RegisterTimeRange(v); err != nil {
		t.Fatalf("RegisterTimeRange() error = %v", err)
	}

	if err := v.Struct(interval{Start: 1, End: 2}); err != nil {
		t.Errorf("valid interval rejected: %v", err)
	}
	if err := v.Struct(interval{Start: 2, End: 1}); err == nil {
		t.Error("inverted interval accepted")
	}
}
