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
	"math"
	"regexp"
	"sort"
)

// maxRankPrefix caps how many ranked groups get a numeric text prefix.
const maxRankPrefix = 15

// rankPrefixRe matches a previously assigned rank prefix, so re-ranking
// replaces the prefix instead of stacking a new one in front of it.
var rankPrefixRe = regexp.MustCompile(`^\d+\. `)

// RankResult reports the outcome of RankSNRs.
type RankResult struct {
	// Ranked holds the ids of every ranked group, best SNR first.
	Ranked []string

	// Primary is the id of the group with the highest combined SNR and
	// duration score, or empty when fewer than two groups carry an SNR.
	Primary string
}

// RankSNRs ranks every group carrying an SNR metric, best first, and
// rewrites their display text with a "1. " style prefix for the top ranks.
// The group with the highest combined score, z-score of SNR plus z-score
// of duration, is highlighted as the primary speaker.
//
// With fewer than two ranked groups the standard deviation degenerates to
// zero, so the primary highlight is skipped while the rank prefix is still
// assigned.
func (t *Tree) RankSNRs() RankResult {
	ranked := t.groupsWithSNR()
	if len(ranked) == 0 {
		return RankResult{}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := ranked[i].SNR()
		b, _ := ranked[j].SNR()
		return a > b
	})

	result := RankResult{Ranked: make([]string, len(ranked))}
	for i, g := range ranked {
		result.Ranked[i] = g.ID()
		text := rankPrefixRe.ReplaceAllString(g.Text(), "")
		if i < maxRankPrefix {
			text = fmt.Sprintf("%d. %s", i+1, text)
		}
		if text != g.Text() {
			g.setText(text)
			t.renderer.SetText(g.Visual(), text)
		}
	}

	if len(ranked) < 2 {
		return result
	}
	result.Primary = t.pickPrimary(ranked)
	if result.Primary != t.primaryID {
		if prev, ok := t.reg.group(t.primaryID); ok {
			t.renderer.SetActive(prev.Visual(), false)
		}
		if cur, ok := t.reg.group(result.Primary); ok {
			t.renderer.SetActive(cur.Visual(), true)
		}
		t.primaryID = result.Primary
	}
	return result
}

// groupsWithSNR collects the groups carrying an SNR in tree order, so a
// re-rank over equal SNRs stays deterministic.
func (t *Tree) groupsWithSNR() []*Group {
	var out []*Group
	for _, root := range t.Roots() {
		t.forEachInSubtree(root, func(it Item) {
			if g, ok := it.(*Group); ok {
				if _, has := g.SNR(); has {
					out = append(out, g)
				}
			}
		})
	}
	return out
}

// pickPrimary returns the id with the maximal combined z-score. A zero
// standard deviation in either metric makes that metric contribute nothing
// for every group.
func (t *Tree) pickPrimary(ranked []*Group) string {
	snrs := make([]float64, len(ranked))
	durs := make([]float64, len(ranked))
	for i, g := range ranked {
		snrs[i], _ = g.SNR()
		durs[i] = g.Duration()
	}
	snrZ := zScores(snrs)
	durZ := zScores(durs)

	best := 0
	bestScore := math.Inf(-1)
	for i := range ranked {
		score := snrZ[i] + durZ[i]
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return ranked[best].ID()
}

// zScores returns (x - mean) / stddev for each value, using the population
// standard deviation. All zeros when the values do not vary.
func zScores(values []float64) []float64 {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= n

	out := make([]float64, len(values))
	std := math.Sqrt(variance)
	if std == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}
