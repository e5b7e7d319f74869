// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"errors"
	"testing"
)

func TestRegistry_TypedAndCombinedLookup(t *testing.T) {
	r := newRegistry()
	g := &Group{base: base{id: "g"}, hidden: map[string]struct{}{}, visible: map[string]struct{}{}}
	s := &Segment{base: base{id: "s"}}

	if err := r.register(g); err != nil {
		t.Fatalf("register group: %v", err)
	}
	if err := r.register(s); err != nil {
		t.Fatalf("register segment: %v", err)
	}

	if it, ok := r.lookup("g"); !ok || it.Kind() != KindGroup {
		t.Error("combined lookup failed for group")
	}
	if _, ok := r.group("g"); !ok {
		t.Error("typed group lookup failed")
	}
	if _, ok := r.segment("g"); ok {
		t.Error("group resolved through the segment index")
	}
	if _, ok := r.segment("s"); !ok {
		t.Error("typed segment lookup failed")
	}
	if r.len() != 2 {
		t.Errorf("len = %d, want 2", r.len())
	}
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := newRegistry()
	if err := r.register(&Groups{base: base{id: "x"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.register(&Segment{base: base{id: "x"}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID across kinds, got: %v", err)
	}
	var idErr *IDError
	if !errors.As(err, &idErr) || idErr.ID != "x" {
		t.Errorf("error should carry the id, got: %v", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := newRegistry()
	if err := r.register(&Segment{base: base{id: "s"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.unregister("s")
	if _, ok := r.lookup("s"); ok {
		t.Error("id still resolvable after unregister")
	}
	if _, ok := r.segment("s"); ok {
		t.Error("typed index still holds unregistered id")
	}

	// Unregistering twice is fine, and the id becomes reusable.
	r.unregister("s")
	if err := r.register(&Segment{base: base{id: "s"}}); err != nil {
		t.Errorf("re-register after unregister: %v", err)
	}
}
