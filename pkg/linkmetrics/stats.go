package linkmetrics

import (
	"fmt"
	"sort"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/candidates"
)

// similaritiesHist buckets a sorted similarity slice into nbins
// equal-width bins spanning [0, 1], returning a count per bin and the
// nbins+1 bin edges.
func similaritiesHist(sims []float64, nbins int) ([]int, []float64) {
	edges := make([]float64, nbins+1)
	for i := range edges {
		edges[i] = float64(i) / float64(nbins)
	}
	counts := make([]int, nbins)
	for _, s := range sims {
		counts[simBin(s, nbins)]++
	}
	return counts, edges
}

// simBin maps a similarity value into one of nbins equal-width bins
// over [0, 1], with the top bin closed on the right so a similarity of
// exactly 1.0 still lands in range.
func simBin(s float64, nbins int) int {
	bin := int(s * float64(nbins))
	if bin >= nbins {
		bin = nbins - 1
	}
	if bin < 0 {
		bin = 0
	}
	return bin
}

// SimilaritiesHist buckets every candidate's similarity score into
// nbins equal-width bins over [0, 1].
func SimilaritiesHist(list *candidates.List, nbins int) ([]int, []float64) {
	return similaritiesHist(append([]float64(nil), list.Similarities...), nbins)
}

// classifyStream runs the two-party streaming greedy pass list's
// candidates (assumed already in canonical, decreasing-similarity
// order) drive on their own: a pair is a possible match the moment
// both of its endpoints are still free, at which point both are
// marked used; a pair touching an endpoint some earlier,
// higher-similarity candidate already claimed is a definite nonmatch,
// blocked by that prior assignment. No ground truth is consulted.
func classifyStream(list *candidates.List) []bool {
	matched0 := make(map[uint32]bool)
	matched1 := make(map[uint32]bool)
	isMatch := make([]bool, list.Len())
	for i := 0; i < list.Len(); i++ {
		p := list.At(i)
		if matched0[p.RecI0] || matched1[p.RecI1] {
			continue
		}
		matched0[p.RecI0] = true
		matched1[p.RecI1] = true
		isMatch[i] = true
	}
	return isMatch
}

// MatchesNonmatchesHist buckets a two-party candidate list's
// similarity scores into nbins equal-width bins over [0, 1],
// separating possible matches from definite nonmatches as classified
// by a single streaming pass of the greedy solver's own bookkeeping.
func MatchesNonmatchesHist(list *candidates.List, nbins int) (matches, nonmatches []int, edges []float64) {
	isMatch := classifyStream(list)
	matches = make([]int, nbins)
	nonmatches = make([]int, nbins)
	for i := 0; i < list.Len(); i++ {
		bin := simBin(list.At(i).Similarity, nbins)
		if isMatch[i] {
			matches[bin]++
		} else {
			nonmatches[bin]++
		}
	}
	edges = make([]float64, nbins+1)
	for i := range edges {
		edges[i] = float64(i) / float64(nbins)
	}
	return matches, nonmatches, edges
}

// CumulNumberMatchesVsThreshold returns, for each threshold, the
// number of candidates the streaming greedy pass classifies as
// possible matches whose similarity is at or above that threshold —
// the recall curve a caller sweeps to pick a merge threshold. list
// must already be in canonical order.
func CumulNumberMatchesVsThreshold(list *candidates.List, thresholds []float64) []int {
	isMatch := classifyStream(list)
	cum := make([]int, list.Len()+1)
	for i := 0; i < list.Len(); i++ {
		cum[i+1] = cum[i]
		if isMatch[i] {
			cum[i+1]++
		}
	}

	counts := make([]int, len(thresholds))
	for ti, threshold := range thresholds {
		idx := sort.Search(list.Len(), func(i int) bool {
			return list.Similarities[i] < threshold
		})
		counts[ti] = cum[idx]
	}
	return counts
}

// NonmatchIndexScore returns the position, in canonical order, of the
// n-th candidate (n=1 is the first) that the streaming greedy pass
// classifies as a nonmatch — its acceptance blocked because one of its
// endpoints was already claimed by an earlier, higher-similarity
// candidate.
func NonmatchIndexScore(list *candidates.List, n int) (int, error) {
	isMatch := classifyStream(list)
	seen := 0
	for i, m := range isMatch {
		if m {
			continue
		}
		seen++
		if seen == n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("anonlink: requested nonmatch rank %d among %d nonmatches: %w",
		n, seen, anonlinkerr.ErrTooFewNonmatches)
}
