// Package similarity implements the two-party similarity kernels
// (§4.2 Dice, §4.3 SMC): for every record in dataset A, find the
// top-k records in dataset B at or above a similarity threshold.
package similarity

import (
	"fmt"
	"sort"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/candidates"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

// largeDatasetThreshold is the tunable dataset size from which a batch
// popcount pass over B pays off. Nothing in this package consults it:
// since Dataset is []CLK rather than one contiguous buffer,
// precomputePopcounts calls clk.Popcount once per record at every size,
// and clk.PopcountArray is not used.
const largeDatasetThreshold = 10_000

func validateTwoDatasets(datasets []clk.Dataset) (clk.Dataset, clk.Dataset, int, error) {
	if len(datasets) < 2 {
		return nil, nil, 0, fmt.Errorf("similarity: got %d datasets: %w", len(datasets), anonlinkerr.ErrNotEnoughDatasets)
	}
	if len(datasets) > 2 {
		return nil, nil, 0, fmt.Errorf("similarity: got %d datasets: %w", len(datasets), anonlinkerr.ErrTooManyDatasets)
	}
	l, err := clk.CommonBitLen(datasets[0], datasets[1])
	if err != nil {
		return nil, nil, 0, err
	}
	return datasets[0], datasets[1], l, nil
}

// precomputePopcounts returns one popcount per record in ds. Kept as its
// own pass (rather than inlined into the per-row loop) so it runs once
// per call regardless of how many rows of A are compared against it.
func precomputePopcounts(ds clk.Dataset) []uint32 {
	out := make([]uint32, len(ds))
	for i, rec := range ds {
		out[i] = uint32(clk.Popcount(rec))
	}
	return out
}

type rowCandidate struct {
	j   int
	sim float64
}

// keepTopK filters a row's scores to those >= threshold and returns at
// most k of them, highest similarity first, ties broken by ascending
// column index. The final cross-row sort (List.SortCanonical) does not
// depend on this order, but truncation at the k-th slot does.
func keepTopK(row []rowCandidate, threshold float64, k int) []rowCandidate {
	kept := row[:0]
	for _, c := range row {
		if c.sim >= threshold {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].sim != kept[j].sim {
			return kept[i].sim > kept[j].sim
		}
		return kept[i].j < kept[j].j
	})
	if k >= 0 && len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

func resolveK(k *int, m int) int {
	if k == nil {
		return m
	}
	if *k < 0 {
		return 0
	}
	return *k
}

func appendRow(out *candidates.List, i int, row []rowCandidate) {
	for _, c := range row {
		out.Append(candidates.Pair{
			Similarity: c.sim,
			DsetI0:     0,
			DsetI1:     1,
			RecI0:      uint32(i),
			RecI1:      uint32(c.j),
		})
	}
}
