// Package chunking splits a multiparty problem into rectangular
// sub-problems ("chunks") sized toward a target comparison count, and
// runs them with bounded concurrency (§4.6). A chunk is self-contained:
// it names one contiguous index range per dataset side, is plain-JSON
// serializable so a harness can ship it to another worker, and its
// result can be relabeled back into the original index space without
// any shared state.
package chunking

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/blocking"
	"github.com/entitylink/anonlink-go/pkg/candidates"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

// ChunkPart names one dataset's contiguous, half-open sub-range within
// a chunk.
type ChunkPart struct {
	DatasetIndex int    `json:"datasetIndex"`
	Range        [2]int `json:"range"`
}

// Chunk is a rectangular sub-problem covering one contiguous index
// range in each of two datasets. By construction from SplitToChunks,
// Chunk[0].DatasetIndex < Chunk[1].DatasetIndex, matching the canonical
// dataset-pair convention the rest of the engine uses.
type Chunk [2]ChunkPart

// SplitToChunks partitions every unordered pair of datasets (by size,
// from datasetSizes) into chunks, each sized toward roughly
// targetComparisons cell comparisons. For a pair with sizes (n0, n1),
// it chooses c0 = max(1, round(n0/sqrt(target))), then
// c1 = max(1, round(n1*(n0/c0)/target)), splits each dataset's index
// range into c0 (resp. c1) near-equal contiguous sub-ranges, and emits
// their Cartesian product. Pairs where either dataset is empty are
// skipped entirely (the strictly safer of the two historical "is this
// pair empty" rules, also the one that preserves full coverage).
//
// The union of all returned chunks covers every cross-dataset pair of
// records exactly once.
func SplitToChunks(targetComparisons int, datasetSizes []int) ([]Chunk, error) {
	if targetComparisons <= 0 {
		return nil, fmt.Errorf("chunking: target comparisons %d must be positive: %w",
			targetComparisons, anonlinkerr.ErrInvalidParameter)
	}
	for i, n := range datasetSizes {
		if n < 0 {
			return nil, fmt.Errorf("chunking: dataset %d has negative size %d: %w",
				i, n, anonlinkerr.ErrInvalidParameter)
		}
	}

	var chunks []Chunk
	for i0 := 0; i0 < len(datasetSizes); i0++ {
		for i1 := i0 + 1; i1 < len(datasetSizes); i1++ {
			n0, n1 := datasetSizes[i0], datasetSizes[i1]
			if n0 == 0 || n1 == 0 {
				continue
			}

			c0 := roundedDiv(float64(n0), math.Sqrt(float64(targetComparisons)))
			c1 := roundedDiv(float64(n1)*(float64(n0)/float64(c0)), float64(targetComparisons))

			ranges0 := splitRange(n0, c0)
			ranges1 := splitRange(n1, c1)
			for _, r0 := range ranges0 {
				for _, r1 := range ranges1 {
					chunks = append(chunks, Chunk{
						{DatasetIndex: i0, Range: r0},
						{DatasetIndex: i1, Range: r1},
					})
				}
			}
		}
	}
	return chunks, nil
}

// roundedDiv returns max(1, round(numerator/denominator)).
func roundedDiv(numerator, denominator float64) int {
	c := int(math.Round(numerator / denominator))
	if c < 1 {
		c = 1
	}
	return c
}

// splitRange divides [0, n) into c near-equal contiguous sub-ranges,
// front-loading the single-element remainder across the first ranges.
// c is clamped to [1, n].
func splitRange(n, c int) [][2]int {
	if c > n {
		c = n
	}
	if c < 1 {
		c = 1
	}
	out := make([][2]int, 0, c)
	base, rem := n/c, n%c
	start := 0
	for i := 0; i < c; i++ {
		size := base
		if i < rem {
			size++
		}
		out = append(out, [2]int{start, start + size})
		start += size
	}
	return out
}

// ProcessChunk runs fn (optionally restricted by blockFn) over the
// sub-datasets a Chunk names, and relabels the result's record indices
// and dataset indices back into the full problem's index space.
//
// len(chunk) == len(subDatasets) == 2 is required, and each
// subDatasets[i]'s length must equal chunk[i]'s range span — the
// caller is expected to have already sliced (or fetched, in a
// distributed setting) exactly that sub-dataset. A mismatch is
// ErrInvalidChunk, never a silent truncation.
func ProcessChunk(chunk Chunk, subDatasets []clk.Dataset, fn candidates.SimilarityFunc, threshold float64, k *int, blockFn blocking.Func) (*candidates.List, error) {
	if len(subDatasets) != 2 {
		return nil, fmt.Errorf("chunking: ProcessChunk requires exactly 2 sub-datasets, got %d: %w",
			len(subDatasets), anonlinkerr.ErrInvalidChunk)
	}
	for i, part := range chunk {
		span := part.Range[1] - part.Range[0]
		if span < 0 || len(subDatasets[i]) != span {
			return nil, fmt.Errorf("chunking: sub-dataset %d has length %d, want %d (chunk range %v): %w",
				i, len(subDatasets[i]), span, part.Range, anonlinkerr.ErrInvalidChunk)
		}
	}

	out := candidates.NewList(0)
	if len(subDatasets[0]) == 0 || len(subDatasets[1]) == 0 {
		return out, nil
	}

	var sub *candidates.List
	var err error
	if blockFn != nil {
		sub, err = candidates.FindCandidatePairs(subDatasets, fn, threshold, k, blockFn)
	} else {
		sub, err = fn(subDatasets, threshold, k)
	}
	if err != nil {
		return nil, err
	}

	d0, d1 := uint32(chunk[0].DatasetIndex), uint32(chunk[1].DatasetIndex)
	offset0, offset1 := uint32(chunk[0].Range[0]), uint32(chunk[1].Range[0])
	for i := 0; i < sub.Len(); i++ {
		p := sub.At(i)
		out.Append(candidates.Pair{
			Similarity: p.Similarity,
			DsetI0:     d0,
			DsetI1:     d1,
			RecI0:      p.RecI0 + offset0,
			RecI1:      p.RecI1 + offset1,
		})
	}
	return out, nil
}

func sliceDataset(ds clk.Dataset, r [2]int) (clk.Dataset, error) {
	if r[0] < 0 || r[1] < r[0] || r[1] > len(ds) {
		return nil, fmt.Errorf("chunking: range [%d, %d) invalid for dataset of length %d: %w",
			r[0], r[1], len(ds), anonlinkerr.ErrInvalidChunk)
	}
	return ds[r[0]:r[1]], nil
}

// RunChunks slices datasets according to each chunk, processes every
// chunk concurrently (bounded by concurrency), and merges the results
// into one canonically-ordered, deduplicated List. It stops and
// returns the first error encountered, cancelling the rest via ctx.
func RunChunks(ctx context.Context, datasets []clk.Dataset, chunks []Chunk, fn candidates.SimilarityFunc, threshold float64, k *int, blockFn blocking.Func, concurrency int) (*candidates.List, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*candidates.List, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sub0, err := sliceDataset(datasets[chunk[0].DatasetIndex], chunk[0].Range)
			if err != nil {
				return err
			}
			sub1, err := sliceDataset(datasets[chunk[1].DatasetIndex], chunk[1].Range)
			if err != nil {
				return err
			}
			list, err := ProcessChunk(chunk, []clk.Dataset{sub0, sub1}, fn, threshold, k, blockFn)
			if err != nil {
				return err
			}
			results[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := candidates.Concat(results...)
	out.SortCanonical()
	out.Dedup()
	return out, nil
}
