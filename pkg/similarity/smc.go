package similarity

import (
	"github.com/entitylink/anonlink-go/pkg/candidates"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

// SMC computes, for every record in datasets[0] ("A"), the top-k
// records in datasets[1] ("B") whose Simple Matching Coefficient is at
// or above threshold:
//
//	SMC(A[i], B[j]) = 1 - popcount(A[i] XOR B[j]) / L
//
// Same shape, error taxonomy, top-k discipline, and output ordering as
// Dice (§4.3).
func SMC(datasets []clk.Dataset, threshold float64, k *int) (*candidates.List, error) {
	a, b, l, err := validateTwoDatasets(datasets)
	if err != nil {
		return nil, err
	}

	m := len(b)
	limit := resolveK(k, m)
	out := candidates.NewList(len(a))

	if m == 0 || limit == 0 || l == 0 {
		return out, nil
	}

	row := make([]rowCandidate, 0, m)
	for i, recA := range a {
		row = row[:0]
		for j, recB := range b {
			dist, err := clk.XorPopcount(recA, recB)
			if err != nil {
				return nil, err
			}
			sim := 1.0 - float64(dist)/float64(l)
			row = append(row, rowCandidate{j: j, sim: sim})
		}
		appendRow(out, i, keepTopK(row, threshold, limit))
	}

	out.SortCanonical()
	return out, nil
}
