// Package candidates holds the candidate-pair data model (§3) and the
// aggregator that combines per-dataset-pair similarity results across
// many datasets into one globally sorted stream (§4.5).
package candidates

import (
	"fmt"
	"sort"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

// Pair is one candidate: a similarity score and the four indices
// identifying the two records it compares. By convention DsetI0 < DsetI1.
type Pair struct {
	Similarity float64
	DsetI0     uint32
	DsetI1     uint32
	RecI0      uint32
	RecI1      uint32
}

// List is five parallel arrays of equal length holding the fields of
// many candidate pairs. A List in canonical order has no duplicates:
// decreasing similarity, then increasing (DsetI0, DsetI1, RecI0, RecI1).
type List struct {
	Similarities []float64
	DsetI0       []uint32
	DsetI1       []uint32
	RecI0        []uint32
	RecI1        []uint32
}

// NewList preallocates a List with the given capacity.
func NewList(capacity int) *List {
	return &List{
		Similarities: make([]float64, 0, capacity),
		DsetI0:       make([]uint32, 0, capacity),
		DsetI1:       make([]uint32, 0, capacity),
		RecI0:        make([]uint32, 0, capacity),
		RecI1:        make([]uint32, 0, capacity),
	}
}

// Len returns the number of candidate pairs.
func (l *List) Len() int { return len(l.Similarities) }

// Validate checks that all five parallel arrays share one length.
func (l *List) Validate() error {
	n := len(l.Similarities)
	if len(l.DsetI0) != n || len(l.DsetI1) != n || len(l.RecI0) != n || len(l.RecI1) != n {
		return fmt.Errorf("candidates: array lengths sim=%d dset0=%d dset1=%d rec0=%d rec1=%d: %w",
			n, len(l.DsetI0), len(l.DsetI1), len(l.RecI0), len(l.RecI1), anonlinkerr.ErrInvalidCandidateShape)
	}
	return nil
}

// At returns the Pair at index i.
func (l *List) At(i int) Pair {
	return Pair{
		Similarity: l.Similarities[i],
		DsetI0:     l.DsetI0[i],
		DsetI1:     l.DsetI1[i],
		RecI0:      l.RecI0[i],
		RecI1:      l.RecI1[i],
	}
}

// Append adds one candidate pair to the list.
func (l *List) Append(p Pair) {
	l.Similarities = append(l.Similarities, p.Similarity)
	l.DsetI0 = append(l.DsetI0, p.DsetI0)
	l.DsetI1 = append(l.DsetI1, p.DsetI1)
	l.RecI0 = append(l.RecI0, p.RecI0)
	l.RecI1 = append(l.RecI1, p.RecI1)
}

// Less reports whether the candidate at i sorts before the one at j in
// canonical order: decreasing similarity, then increasing indices.
func (l *List) Less(i, j int) bool {
	if l.Similarities[i] != l.Similarities[j] {
		return l.Similarities[i] > l.Similarities[j]
	}
	if l.DsetI0[i] != l.DsetI0[j] {
		return l.DsetI0[i] < l.DsetI0[j]
	}
	if l.DsetI1[i] != l.DsetI1[j] {
		return l.DsetI1[i] < l.DsetI1[j]
	}
	if l.RecI0[i] != l.RecI0[j] {
		return l.RecI0[i] < l.RecI0[j]
	}
	return l.RecI1[i] < l.RecI1[j]
}

// Swap exchanges the candidates at i and j. Implements sort.Interface.
func (l *List) Swap(i, j int) {
	l.Similarities[i], l.Similarities[j] = l.Similarities[j], l.Similarities[i]
	l.DsetI0[i], l.DsetI0[j] = l.DsetI0[j], l.DsetI0[i]
	l.DsetI1[i], l.DsetI1[j] = l.DsetI1[j], l.DsetI1[i]
	l.RecI0[i], l.RecI0[j] = l.RecI0[j], l.RecI0[i]
	l.RecI1[i], l.RecI1[j] = l.RecI1[j], l.RecI1[i]
}

func equalPair(l *List, i, j int) bool {
	return l.DsetI0[i] == l.DsetI0[j] && l.DsetI1[i] == l.DsetI1[j] &&
		l.RecI0[i] == l.RecI0[j] && l.RecI1[i] == l.RecI1[j]
}

// SortCanonical sorts the list into canonical total order in place.
func (l *List) SortCanonical() { sort.Stable(l) }

// Dedup removes duplicate (DsetI0,DsetI1,RecI0,RecI1) entries, keeping
// the first occurrence. The list must already be in canonical order,
// so that duplicates (which share every field, including similarity)
// are adjacent.
func (l *List) Dedup() {
	if l.Len() == 0 {
		return
	}
	out := NewList(l.Len())
	out.Append(l.At(0))
	for i := 1; i < l.Len(); i++ {
		if equalPair(l, i, i-1) {
			continue
		}
		out.Append(l.At(i))
	}
	*l = *out
}

// Concat appends every pair from each of the given lists, in order,
// without sorting or deduplicating.
func Concat(lists ...*List) *List {
	total := 0
	for _, ls := range lists {
		total += ls.Len()
	}
	out := NewList(total)
	for _, ls := range lists {
		for i := 0; i < ls.Len(); i++ {
			out.Append(ls.At(i))
		}
	}
	return out
}

// SimilarityFunc is the contract a caller-supplied similarity kernel
// must satisfy to be used by the aggregator (§6 similarity-function
// contract): given exactly two datasets, a threshold, and an optional
// top-k bound, return a List already in canonical order, honoring
// threshold and k, without mutating its inputs.
type SimilarityFunc func(datasets []clk.Dataset, threshold float64, k *int) (*List, error)
