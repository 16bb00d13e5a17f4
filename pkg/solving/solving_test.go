package solving

import (
	"errors"
	"sort"
	"testing"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/candidates"
)

func pair(sim float64, d0, d1, r0, r1 uint32) candidates.Pair {
	return candidates.Pair{Similarity: sim, DsetI0: d0, DsetI1: d1, RecI0: r0, RecI1: r1}
}

func listOf(pairs ...candidates.Pair) *candidates.List {
	l := candidates.NewList(len(pairs))
	for _, p := range pairs {
		l.Append(p)
	}
	l.SortCanonical()
	return l
}

func sortedPairs(pairs [][2]uint32) [][2]uint32 {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

// sortedMembers orders a group's records by (dataset, index) so tests
// can compare groups regardless of internal member order.
func sortedMembers(g Group) []Record {
	out := append(Group(nil), g...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dataset != out[j].Dataset {
			return out[i].Dataset < out[j].Dataset
		}
		return out[i].Index < out[j].Index
	})
	return out
}

func hasGroup(groups []Group, want ...Record) bool {
	sort.Slice(want, func(i, j int) bool {
		if want[i].Dataset != want[j].Dataset {
			return want[i].Dataset < want[j].Dataset
		}
		return want[i].Index < want[j].Index
	})
	for _, g := range groups {
		got := sortedMembers(g)
		if len(got) != len(want) {
			continue
		}
		match := true
		for i := range got {
			if got[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestGreedySolve_TwoPartyOneToOne(t *testing.T) {
	l := listOf(
		pair(1.0, 0, 1, 0, 0),
		pair(1.0, 0, 1, 1, 1),
	)
	groups, err := GreedySolve(l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	pairs, err := PairsFromGroups(groups)
	if err != nil {
		t.Fatalf("pairs from groups: %v", err)
	}
	got := sortedPairs(pairs)
	want := [][2]uint32{{0, 0}, {1, 1}}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("index %d: got %v, want %v", i, got[i], w)
		}
	}
}

// Scenario 5 (spec §8): three-party transitive merge at threshold 1.0.
// No candidate reaches similarity 1.0 — the similarity value only sets
// processing order here, not the merge decision. (0,0)-(1,1),
// (0,0)-(2,1) and (1,1)-(2,1) together supply every possible edge
// between {(0,0)}, {(1,1)} and {(2,1)} as they fold together one pair
// at a time, so the strict solver lands on {(0,0),(1,1),(2,1)}. The
// (1,0)/(2,0) pair only ever sees its own single direct edge and stays
// separate.
func TestGreedySolve_ThreePartyTransitiveMerge(t *testing.T) {
	l := listOf(
		pair(0.9, 1, 2, 0, 0),
		pair(0.8, 0, 1, 0, 1),
		pair(0.8, 0, 2, 0, 1),
		pair(0.8, 1, 2, 1, 1),
		pair(0.7, 0, 1, 0, 0),
		pair(0.7, 0, 2, 0, 0),
	)
	groups, err := GreedySolve(l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if !hasGroup(groups, Record{0, 0}, Record{1, 1}, Record{2, 1}) {
		t.Errorf("missing group {(0,0),(1,1),(2,1)}: %+v", groups)
	}
	if !hasGroup(groups, Record{1, 0}, Record{2, 0}) {
		t.Errorf("missing group {(1,0),(2,0)}: %+v", groups)
	}
}

// Scenario 6 (spec §8), merge_threshold=0.0: every group pair's overlap
// ratio trivially clears a threshold of zero, so the whole chain
// collapses into one group.
func TestProbabilisticGreedySolve_ZeroThresholdMergesEverything(t *testing.T) {
	l := listOf(
		pair(0.9, 0, 0, 0, 1),
		pair(0.8, 1, 1, 0, 1),
		pair(0.7, 0, 1, 0, 0),
		pair(0.6, 0, 1, 0, 1),
		pair(0.5, 0, 1, 1, 0),
	)
	groups, err := ProbabilisticGreedySolve(l, 0.0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(groups), groups)
	}
	if !hasGroup(groups, Record{0, 0}, Record{0, 1}, Record{1, 0}, Record{1, 1}) {
		t.Errorf("missing group {(0,0),(0,1),(1,0),(1,1)}: %+v", groups)
	}
}

// Scenario 6 (spec §8), merge_threshold=0.76: the two size-2 groups see
// only 3 of their 4 possible edges (ratio 0.75), just short of the bar,
// so they never merge.
func TestProbabilisticGreedySolve_HighThresholdKeepsGroupsApart(t *testing.T) {
	l := listOf(
		pair(0.9, 0, 0, 0, 1),
		pair(0.8, 1, 1, 0, 1),
		pair(0.7, 0, 1, 0, 0),
		pair(0.6, 0, 1, 0, 1),
		pair(0.5, 0, 1, 1, 0),
	)
	groups, err := ProbabilisticGreedySolve(l, 0.76, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if !hasGroup(groups, Record{0, 0}, Record{0, 1}) {
		t.Errorf("missing group {(0,0),(0,1)}: %+v", groups)
	}
	if !hasGroup(groups, Record{1, 0}, Record{1, 1}) {
		t.Errorf("missing group {(1,0),(1,1)}: %+v", groups)
	}
}

func TestProbabilisticGreedySolve_DeduplicatedBlocksSameDatasetExtension(t *testing.T) {
	l := listOf(
		pair(0.9, 0, 1, 0, 0),
		pair(0.8, 0, 1, 1, 0), // (0,1) would join {(0,0),(1,0)}, duplicating dataset 0
	)
	groups, err := ProbabilisticGreedySolve(l, 0.5, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasGroup(groups, Record{0, 0}, Record{1, 0}) {
		t.Errorf("missing group {(0,0),(1,0)}: %+v", groups)
	}
	for _, g := range groups {
		if len(g) > 2 {
			t.Errorf("deduplicated group exceeds 2 members: %+v", g)
		}
	}
}

func TestProbabilisticGreedySolve_NonDeduplicatedMergesOnFirstEdge(t *testing.T) {
	l := listOf(
		pair(0.9, 0, 1, 0, 0),
		pair(0.6, 1, 2, 0, 0),
	)
	groups, err := ProbabilisticGreedySolve(l, 0.5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 || len(groups[0]) != 3 {
		t.Fatalf("got %+v, want one group of 3", groups)
	}
}

func TestProbabilisticGreedySolve_InvalidThreshold(t *testing.T) {
	_, err := ProbabilisticGreedySolve(candidates.NewList(0), -0.1, false)
	if !errors.Is(err, anonlinkerr.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
	_, err = ProbabilisticGreedySolve(candidates.NewList(0), 1.1, false)
	if !errors.Is(err, anonlinkerr.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
}

func TestProbabilisticGreedySolve_RejectsMalformedCandidateShape(t *testing.T) {
	l := candidates.NewList(0)
	l.Similarities = append(l.Similarities, 1.0)
	// DsetI0/DsetI1/RecI0/RecI1 left empty: mismatched array lengths.
	_, err := ProbabilisticGreedySolve(l, 0.5, false)
	if !errors.Is(err, anonlinkerr.ErrInvalidCandidateShape) {
		t.Fatalf("got %v, want ErrInvalidCandidateShape", err)
	}
}

func TestPairsFromGroups_RejectsNonPairwiseGroup(t *testing.T) {
	groups := []Group{{{Dataset: 0, Index: 0}, {Dataset: 1, Index: 0}, {Dataset: 2, Index: 0}}}
	_, err := PairsFromGroups(groups)
	if !errors.Is(err, anonlinkerr.ErrGroupNotPairwise) {
		t.Fatalf("got %v, want ErrGroupNotPairwise", err)
	}
}

func TestPairsFromGroups_RejectsSameDatasetGroup(t *testing.T) {
	groups := []Group{{{Dataset: 0, Index: 0}, {Dataset: 0, Index: 1}}}
	_, err := PairsFromGroups(groups)
	if !errors.Is(err, anonlinkerr.ErrGroupNotPairwise) {
		t.Fatalf("got %v, want ErrGroupNotPairwise", err)
	}
}
