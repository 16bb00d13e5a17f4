// Package solving turns a candidate list into entity groups: the
// greedy (and probabilistic-greedy) multiparty matching solvers.
package solving

import (
	"fmt"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/candidates"
)

// Record identifies one record within one dataset.
type Record struct {
	Dataset uint32
	Index   uint32
}

// Group is a set of records believed to refer to the same entity.
type Group []Record

// groupKey canonically orders two group handles so matchable_pairs
// never stores the same pair both ways.
type groupKey struct {
	lo, hi int
}

func canonicalKey(a, b int) groupKey {
	if a < b {
		return groupKey{a, b}
	}
	return groupKey{b, a}
}

// solver holds the mutable state one greedy pass threads through the
// candidate stream.
type solver struct {
	mergeThreshold float64
	deduplicated   bool

	nextHandle int
	assignment map[Record]int
	groups     map[int]Group

	// matchablePairs counts, for each unordered pair of still-distinct
	// groups, how many candidate edges have been seen connecting them.
	// Two groups merge once overlap/total clears mergeThreshold.
	matchablePairs map[groupKey]int
}

func newSolver(mergeThreshold float64, deduplicated bool) *solver {
	return &solver{
		mergeThreshold: mergeThreshold,
		deduplicated:   deduplicated,
		assignment:     make(map[Record]int),
		groups:         make(map[int]Group),
		matchablePairs: make(map[groupKey]int),
	}
}

func (s *solver) newGroup(members ...Record) int {
	h := s.nextHandle
	s.nextHandle++
	g := make(Group, len(members))
	copy(g, members)
	s.groups[h] = g
	for _, r := range members {
		s.assignment[r] = h
	}
	return h
}

func groupHasDataset(g Group, dataset uint32) bool {
	for _, r := range g {
		if r.Dataset == dataset {
			return true
		}
	}
	return false
}

// process runs one candidate pair through the Case A/B/C greedy rule.
// list is assumed already in canonical order (decreasing similarity);
// the similarity value itself plays no further role here beyond having
// produced that order and having already cleared whatever threshold
// produced the candidate list in the first place.
func (s *solver) process(p candidates.Pair) {
	rec0 := Record{Dataset: p.DsetI0, Index: p.RecI0}
	rec1 := Record{Dataset: p.DsetI1, Index: p.RecI1}

	h0, assigned0 := s.assignment[rec0]
	h1, assigned1 := s.assignment[rec1]

	switch {
	case assigned0 && assigned1:
		s.caseBothGrouped(h0, h1)
	case assigned0 != assigned1:
		s.caseOneGrouped(h0, h1, assigned1, rec0, rec1)
	default:
		s.caseNeitherGrouped(rec0, rec1)
	}
}

// caseBothGrouped is Case A: both endpoints already belong to groups.
func (s *solver) caseBothGrouped(h0, h1 int) {
	if h0 == h1 {
		return
	}
	key := canonicalKey(h0, h1)
	s.matchablePairs[key]++
	overlap := s.matchablePairs[key]

	g0, g1 := s.groups[h0], s.groups[h1]
	total := float64(len(g0)) * float64(len(g1))
	duplicatesOK := !s.deduplicated || !sharesDataset(g0, g1)

	if float64(overlap) >= s.mergeThreshold*total && duplicatesOK {
		s.mergeGroups(h0, h1)
	}
}

// caseOneGrouped is Case B: exactly one endpoint is already grouped.
// assigned1 reports whether that was rec1 (vs rec0).
func (s *solver) caseOneGrouped(h0, h1 int, assigned1 bool, rec0, rec1 Record) {
	handle, newRec := h0, rec1
	if assigned1 {
		handle, newRec = h1, rec0
	}

	g := s.groups[handle]
	total := float64(len(g))
	duplicatesOK := !s.deduplicated || !groupHasDataset(g, newRec.Dataset)

	if 1 >= s.mergeThreshold*total && duplicatesOK {
		s.groups[handle] = append(g, newRec)
		s.assignment[newRec] = handle
		return
	}

	other := s.newGroup(newRec)
	s.matchablePairs[canonicalKey(handle, other)] = 1
}

// caseNeitherGrouped is Case C: neither endpoint belongs to a group yet.
func (s *solver) caseNeitherGrouped(rec0, rec1 Record) {
	if s.deduplicated && rec0.Dataset == rec1.Dataset {
		return
	}
	s.newGroup(rec0, rec1)
}

func sharesDataset(a, b Group) bool {
	seen := make(map[uint32]bool, len(a))
	for _, r := range a {
		seen[r.Dataset] = true
	}
	for _, r := range b {
		if seen[r.Dataset] {
			return true
		}
	}
	return false
}

// mergeGroups combines two distinct groups, always extending the
// larger one with the smaller: the bigger group's handle survives,
// and the smaller group's members and pending matchablePairs entries
// are folded into it.
func (s *solver) mergeGroups(h0, h1 int) {
	g0, g1 := s.groups[h0], s.groups[h1]

	survivor, absorbed := h0, h1
	if len(g1) > len(g0) {
		survivor, absorbed = h1, h0
	}

	merged := append(s.groups[survivor], s.groups[absorbed]...)
	s.groups[survivor] = merged
	for _, r := range s.groups[absorbed] {
		s.assignment[r] = survivor
	}
	delete(s.groups, absorbed)

	for key, count := range s.matchablePairs {
		if key.lo != absorbed && key.hi != absorbed {
			continue
		}
		other := key.lo
		if other == absorbed {
			other = key.hi
		}
		if other == survivor {
			delete(s.matchablePairs, key)
			continue
		}
		delete(s.matchablePairs, key)
		newKey := canonicalKey(survivor, other)
		s.matchablePairs[newKey] += count
	}
}

// result returns every group of size >= 2. Case B can leave a
// never-merged singleton behind (the new endpoint's own placeholder
// group while it waits for more evidence); singletons never surface.
func (s *solver) result() []Group {
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		if len(g) >= 2 {
			out = append(out, g)
		}
	}
	return out
}

// GreedySolve runs the strict greedy solver: merge_threshold 1.0,
// deduplicated false. Two groups only ever merge once every possible
// edge between their members has been observed as a candidate.
func GreedySolve(list *candidates.List) ([]Group, error) {
	return ProbabilisticGreedySolve(list, 1.0, false)
}

// ProbabilisticGreedySolve runs the general greedy multiparty solver.
// list must already be in canonical order (decreasing similarity).
// Two groups (or a group and a lone new record) merge once the
// fraction of their possible edges seen so far reaches mergeThreshold.
// When deduplicated is true, a group may never contain two records
// from the same dataset.
func ProbabilisticGreedySolve(list *candidates.List, mergeThreshold float64, deduplicated bool) ([]Group, error) {
	if mergeThreshold < 0 || mergeThreshold > 1 {
		return nil, fmt.Errorf("anonlink: merge threshold %f out of range [0, 1]: %w", mergeThreshold, anonlinkerr.ErrInvalidParameter)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}

	s := newSolver(mergeThreshold, deduplicated)
	for i := 0; i < list.Len(); i++ {
		s.process(list.At(i))
	}
	return s.result(), nil
}

// PairsFromGroups converts a two-party solve's groups into (record0,
// record1) index pairs. Every group must contain exactly one record
// from dataset 0 and one from dataset 1.
func PairsFromGroups(groups []Group) ([][2]uint32, error) {
	out := make([][2]uint32, 0, len(groups))
	for _, g := range groups {
		if len(g) != 2 {
			return nil, fmt.Errorf("anonlink: group has %d records, want 2: %w", len(g), anonlinkerr.ErrGroupNotPairwise)
		}
		a, b := g[0], g[1]
		if a.Dataset == b.Dataset {
			return nil, fmt.Errorf("anonlink: group has two records from dataset %d: %w", a.Dataset, anonlinkerr.ErrGroupNotPairwise)
		}
		if a.Dataset > b.Dataset {
			a, b = b, a
		}
		if a.Dataset != 0 || b.Dataset != 1 {
			return nil, fmt.Errorf("anonlink: group spans datasets %d and %d, want 0 and 1: %w", a.Dataset, b.Dataset, anonlinkerr.ErrGroupNotPairwise)
		}
		out = append(out, [2]uint32{a.Index, b.Index})
	}
	return out, nil
}
