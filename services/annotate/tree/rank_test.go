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
	"fmt"
	"testing"
)

func snr(v float64) *float64 { return &v }

func TestRankSNRs_OrdersAndPrefixes(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "a", Parent: "speakers", Text: "Alice", SNR: snr(5)})
	mustGroup(t, tr, GroupSpec{ID: "b", Parent: "speakers", Text: "Bob", SNR: snr(10)})
	mustGroup(t, tr, GroupSpec{ID: "c", Parent: "speakers", Text: "Carol", SNR: snr(1)})
	mustGroup(t, tr, GroupSpec{ID: "d", Parent: "speakers", Text: "NoSNR"})

	res := tr.RankSNRs()
	want := []string{"b", "a", "c"}
	if len(res.Ranked) != 3 {
		t.Fatalf("ranked %d groups, want 3", len(res.Ranked))
	}
	for i, id := range want {
		if res.Ranked[i] != id {
			t.Fatalf("ranked = %v, want %v", res.Ranked, want)
		}
	}
	b, _ := tr.Group("b")
	if b.Text() != "1. Bob" {
		t.Errorf("best group text = %q, want %q", b.Text(), "1. Bob")
	}
	c, _ := tr.Group("c")
	if c.Text() != "3. Carol" {
		t.Errorf("worst group text = %q, want %q", c.Text(), "3. Carol")
	}
	d, _ := tr.Group("d")
	if d.Text() != "NoSNR" {
		t.Errorf("group without SNR was renamed to %q", d.Text())
	}
}

func TestRankSNRs_Reentrant(t *testing.T) {
	tr, _, _ := newTestTree()
	mustGroup(t, tr, GroupSpec{ID: "a", Text: "Alice", SNR: snr(5)})
	mustGroup(t, tr, GroupSpec{ID: "b", Text: "Bob", SNR: snr(10)})

	tr.RankSNRs()
	tr.RankSNRs()

	a, _ := tr.Group("a")
	if a.Text() != "2. Alice" {
		t.Errorf("re-ranking stacked prefixes: %q", a.Text())
	}
}

func TestRankSNRs_SingleGroupSkipsPrimary(t *testing.T) {
	tr, rr, _ := newTestTree()
	mustGroup(t, tr, GroupSpec{ID: "a", Text: "Alice", SNR: snr(5)})
	rr.Reset()

	res := tr.RankSNRs()
	if len(res.Ranked) != 1 || res.Ranked[0] != "a" {
		t.Fatalf("ranked = %v, want [a]", res.Ranked)
	}
	a, _ := tr.Group("a")
	if a.Text() != "1. Alice" {
		t.Errorf("single group still gets rank 1, got %q", a.Text())
	}
	if res.Primary != "" {
		t.Errorf("primary = %q, want none with one ranked group", res.Primary)
	}
	if countPrefix(rr.Calls, "active") != 0 {
		t.Errorf("no highlight expected, renderer calls: %v", rr.Calls)
	}
}

func TestRankSNRs_PrimaryByCombinedScore(t *testing.T) {
	tr, rr, _ := newTestTree()
	mustGroups(t, tr, GroupsSpec{ID: "speakers"})
	mustGroup(t, tr, GroupSpec{ID: "quiet", Parent: "speakers", SNR: snr(10)})
	mustGroup(t, tr, GroupSpec{ID: "loud", Parent: "speakers", SNR: snr(9)})
	mustGroup(t, tr, GroupSpec{ID: "faint", Parent: "speakers", SNR: snr(1)})
	// quiet has the best SNR but loud dominates on duration.
	mustSegment(t, tr, SegmentSpec{Parent: "quiet", Start: 0, End: 1})
	mustSegment(t, tr, SegmentSpec{Parent: "loud", Start: 0, End: 500})
	mustSegment(t, tr, SegmentSpec{Parent: "faint", Start: 0, End: 1})
	rr.Reset()

	res := tr.RankSNRs()
	if res.Primary != "loud" {
		t.Errorf("primary = %q, want loud (duration z-score outweighs)", res.Primary)
	}
	if countPrefix(rr.Calls, "active loud true") != 1 {
		t.Errorf("primary highlight missing, calls: %v", rr.Calls)
	}
}

func TestRankSNRs_PrefixCap(t *testing.T) {
	tr, _, _ := newTestTree()
	for i := 0; i < 20; i++ {
		mustGroup(t, tr, GroupSpec{
			ID:   fmt.Sprintf("g%02d", i),
			Text: fmt.Sprintf("Speaker %d", i),
			SNR:  snr(float64(i)),
		})
	}

	res := tr.RankSNRs()
	if len(res.Ranked) != 20 {
		t.Fatalf("ranked %d groups, want 20", len(res.Ranked))
	}
	// Best SNR is g19; ranks run 1..15 and the rest keep plain text.
	best, _ := tr.Group("g19")
	if best.Text() != "1. Speaker 19" {
		t.Errorf("best text = %q", best.Text())
	}
	unranked, _ := tr.Group("g03")
	if unranked.Text() != "Speaker 3" {
		t.Errorf("beyond the cap text = %q, want no prefix", unranked.Text())
	}
}

func TestZScores_ZeroStddev(t *testing.T) {
	out := zScores([]float64{3, 3, 3})
	for i, z := range out {
		if z != 0 {
			t.Fatalf("z[%d] = %v, want 0 for constant values", i, z)
		}
	}
}
