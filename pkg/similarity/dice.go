package similarity

import (
	"github.com/entitylink/anonlink-go/pkg/candidates"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

// Dice computes, for every record in datasets[0] ("A"), the top-k
// records in datasets[1] ("B") whose Sørensen–Dice similarity is at
// or above threshold:
//
//	Dice(A[i], B[j]) = 2*popcount(A[i] AND B[j]) / (popcount(A[i]) + popcount(B[j]))
//
// A row with popcount(A[i]) == 0 is treated as similarity 0 for every
// j, avoiding a 0/0 division. k defaults to len(B) when nil. The
// returned list is in canonical total order (§3).
func Dice(datasets []clk.Dataset, threshold float64, k *int) (*candidates.List, error) {
	a, b, _, err := validateTwoDatasets(datasets)
	if err != nil {
		return nil, err
	}

	m := len(b)
	limit := resolveK(k, m)
	out := candidates.NewList(len(a))

	if m == 0 || limit == 0 {
		return out, nil
	}

	popB := precomputePopcounts(b)

	row := make([]rowCandidate, 0, m)
	for i, recA := range a {
		row = row[:0]
		popA := uint32(clk.Popcount(recA))
		if popA == 0 {
			if threshold <= 0 {
				for j := range b {
					row = append(row, rowCandidate{j: j, sim: 0.0})
				}
			}
			appendRow(out, i, keepTopK(row, threshold, limit))
			continue
		}
		for j, recB := range b {
			shared, err := clk.AndPopcount(recA, recB)
			if err != nil {
				return nil, err
			}
			denom := popA + popB[j]
			sim := 0.0
			if denom > 0 {
				sim = 2 * float64(shared) / float64(denom)
			}
			row = append(row, rowCandidate{j: j, sim: sim})
		}
		appendRow(out, i, keepTopK(row, threshold, limit))
	}

	out.SortCanonical()
	return out, nil
}
