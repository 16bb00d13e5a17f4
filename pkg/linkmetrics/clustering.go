// Package linkmetrics evaluates solved entity groups against ground
// truth: partition-quality scores (ARI, VI) and the similarity-stream
// diagnostics used to pick a merge threshold.
package linkmetrics

import (
	"math"
	"sort"

	"github.com/entitylink/anonlink-go/pkg/solving"
)

// GroupLabels assigns each record in records an integer label: records
// in the same group in groups get the same label, and any record
// absent from every group becomes its own singleton label. This puts
// solved groups and ground truth in the common "one label per item"
// shape AdjustedRandIndex and VariationOfInformation expect.
func GroupLabels(records []solving.Record, groups []solving.Group) []int {
	label := make(map[solving.Record]int, len(records))
	next := 0
	for _, g := range groups {
		for _, r := range g {
			if _, ok := label[r]; !ok {
				label[r] = next
			}
		}
		next++
	}

	labels := make([]int, len(records))
	for i, r := range records {
		l, ok := label[r]
		if !ok {
			l = next
			next++
		}
		labels[i] = l
	}
	return labels
}

// AdjustedRandIndex computes the Adjusted Rand Index between two
// partitions of the same n items, given as parallel label slices.
//
// ARI = (RI - Expected_RI) / (Max_RI - Expected_RI)
// where RI = (a + b) / C(n, 2), a = pairs grouped together in both
// partitions, b = pairs grouped apart in both.
//
// Ranges from -1 (worse than random) to 1 (perfect agreement); 0 is
// the expected value of a random grouping.
func AdjustedRandIndex(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}

	nij, rowSums, colSums := contingency(predicted, groundTruth)

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}
	sumAiC2 := 0.0
	for _, a := range rowSums {
		sumAiC2 += comb2(a)
	}
	sumBjC2 := 0.0
	for _, b := range colSums {
		sumBjC2 += comb2(b)
	}

	nC2 := comb2(n)
	if nC2 == 0 {
		return 0.0
	}

	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0
	}
	return (sumNijC2 - expectedIndex) / denominator
}

// VariationOfInformation computes the VI distance between two
// partitions: VI(C, C') = H(C|C') + H(C'|C). 0 means identical
// partitions; there is no fixed upper bound.
func VariationOfInformation(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}
	nf := float64(n)

	nij, rowSums, colSums := contingency(predicted, groundTruth)

	hCgivenCp := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && colSums[j] > 0 {
				pij := float64(nij[i][j]) / nf
				hCgivenCp -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
		}
	}

	hCpgivenC := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && rowSums[i] > 0 {
				pij := float64(nij[i][j]) / nf
				hCpgivenC -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}

	return hCgivenCp + hCpgivenC
}

func contingency(predicted, groundTruth []int) (nij [][]int, rowSums, colSums []int) {
	predLabels := uniqueLabels(predicted)
	gtLabels := uniqueLabels(groundTruth)

	predMap := make(map[int]int, len(predLabels))
	for i, l := range predLabels {
		predMap[l] = i
	}
	gtMap := make(map[int]int, len(gtLabels))
	for i, l := range gtLabels {
		gtMap[l] = i
	}

	nij = make([][]int, len(predLabels))
	for i := range nij {
		nij[i] = make([]int, len(gtLabels))
	}
	for k := range predicted {
		nij[predMap[predicted[k]]][gtMap[groundTruth[k]]]++
	}

	rowSums = make([]int, len(predLabels))
	colSums = make([]int, len(gtLabels))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}
	return nij, rowSums, colSums
}

func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}

func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var result []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			result = append(result, l)
		}
	}
	sort.Ints(result)
	return result
}
