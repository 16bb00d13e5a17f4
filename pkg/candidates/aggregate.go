package candidates

import (
	"github.com/entitylink/anonlink-go/pkg/blocking"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

// FindCandidatePairs runs fn over every unordered pair of datasets,
// restricted to record pairs that share a block under blocking (pass
// nil to compare every record against every other record in the pair),
// and merges the results into one canonically-ordered, deduplicated
// List.
//
// fn is called once per (block, dataset pair), always with the
// lower-indexed dataset as "A"; its own per-row top-k bounds how often
// a dataset-d0 record appears against d1. Once every block and every
// dataset pair has been merged, sorted, and deduplicated into one
// global list, a single final pass (§4.5 step 6) enforces k from the
// other direction too, so neither endpoint of any surviving pair
// exceeds k accepted matches against the other dataset.
func FindCandidatePairs(datasets []clk.Dataset, fn SimilarityFunc, threshold float64, k *int, blockFn blocking.Func) (*List, error) {
	n := len(datasets)
	merged := NewList(0)

	assignments := assignBlocks(datasets, blockFn)

	for d0 := 0; d0 < n; d0++ {
		for d1 := d0 + 1; d1 < n; d1++ {
			blocks := sharedBlocks(assignments[d0], assignments[d1])
			for _, block := range blocks {
				idxA := block[0]
				idxB := block[1]
				if len(idxA) == 0 || len(idxB) == 0 {
					continue
				}

				subA := subsetDataset(datasets[d0], idxA)
				subB := subsetDataset(datasets[d1], idxB)

				sub, err := fn([]clk.Dataset{subA, subB}, threshold, k)
				if err != nil {
					return nil, err
				}

				relabeled := relabel(sub, d0, d1, idxA, idxB)
				merged = Concat(merged, relabeled)
			}
		}
	}

	merged.SortCanonical()
	merged.Dedup()
	if k != nil {
		merged = enforceGlobalK(merged, *k)
	}
	return merged, nil
}

// blockAssignment maps a block ID to the record indices, within one
// dataset, that fall in it.
type blockAssignment map[blocking.BlockID][]int

func assignBlocks(datasets []clk.Dataset, blockFn blocking.Func) []blockAssignment {
	assignments := make([]blockAssignment, len(datasets))
	for di, ds := range datasets {
		assignment := make(blockAssignment)
		if blockFn == nil {
			assignment[universalBlock{}] = allIndices(len(ds))
			assignments[di] = assignment
			continue
		}
		for ri, rec := range ds {
			for _, id := range blockFn(di, ri, rec) {
				assignment[id] = append(assignment[id], ri)
			}
		}
		assignments[di] = assignment
	}
	return assignments
}

// universalBlock is the single implicit block every record falls into
// when no blocking function is supplied.
type universalBlock struct{}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// sharedBlocks returns, for each block ID present in both a and b, a
// map from dataset index to that block's record indices in that
// dataset.
func sharedBlocks(a, b blockAssignment) []map[int][]int {
	var out []map[int][]int
	for id, idxA := range a {
		idxB, ok := b[id]
		if !ok {
			continue
		}
		out = append(out, map[int][]int{0: idxA, 1: idxB})
	}
	return out
}

func subsetDataset(ds clk.Dataset, indices []int) clk.Dataset {
	sub := make(clk.Dataset, len(indices))
	for i, idx := range indices {
		sub[i] = ds[idx]
	}
	return sub
}

// relabel rewrites a candidate list computed over a block's local
// subset indices back into the original dataset and record indices.
func relabel(list *List, d0, d1 int, idxA, idxB []int) *List {
	out := NewList(list.Len())
	for i := 0; i < list.Len(); i++ {
		p := list.At(i)
		out.Append(Pair{
			Similarity: p.Similarity,
			DsetI0:     uint32(d0),
			DsetI1:     uint32(d1),
			RecI0:      uint32(idxA[p.RecI0]),
			RecI1:      uint32(idxB[p.RecI1]),
		})
	}
	return out
}

// enforceKKey identifies one "record endpoint against one other dataset"
// counter slot for the global k-limiting pass.
type enforceKKey struct {
	dsetA, dsetB uint32
	rec          uint32
}

// enforceGlobalK implements §4.5 step 6 / §9's "_enforce_k" rule over a
// list already in canonical total order: iterating once in that order,
// accept a candidate only if neither of its two record endpoints has
// already accumulated k accepted pairs against the other dataset.
// Counts are tracked keyed by (dset_i0,dset_i1,rec_i1) and
// (dset_i1,dset_i0,rec_i0) — both orientations, exactly as specified;
// dropping either direction changes results for k < m.
func enforceGlobalK(list *List, k int) *List {
	counts := make(map[enforceKKey]int)
	out := NewList(list.Len())
	for i := 0; i < list.Len(); i++ {
		p := list.At(i)
		k0 := enforceKKey{p.DsetI0, p.DsetI1, p.RecI1}
		k1 := enforceKKey{p.DsetI1, p.DsetI0, p.RecI0}
		if counts[k0] >= k || counts[k1] >= k {
			continue
		}
		counts[k0]++
		counts[k1]++
		out.Append(p)
	}
	return out
}
