// Package blocking implements the blocking-oracle combinators (§4.4):
// pure functions from a record to zero or more block IDs, used by the
// candidate aggregator to skip comparisons between records that share
// no block. Blocking only ever reduces recall, never increases
// precision — the aggregator treats it as advisory.
package blocking

import (
	"math"
	"math/rand"
)

// BlockID is any hashable value the oracle assigns to a record. Values
// are compared with ==, so the concrete type underlying a BlockID must
// itself be comparable (ints, strings, or structs of comparable
// fields); a non-comparable concrete type (slice, map, func) will
// panic if ever used as a map key by the aggregator.
type BlockID = any

// Func assigns zero or more block IDs to one record. It must be pure:
// identical arguments must yield identical results across every call
// within one aggregator invocation.
type Func func(datasetIndex, recordIndex int, record []byte) []BlockID

// And returns a blocking function whose block IDs are the Cartesian
// product of each input function's block IDs for that record. Two
// records then share an And block iff, for every one of fs, they share
// at least one of that function's block IDs — because if such a
// per-function common value exists, the tuple built from those values
// appears in both records' product sets.
func And(fs ...Func) Func {
	return func(datasetIndex, recordIndex int, record []byte) []BlockID {
		products := []BlockID{nil}
		for _, f := range fs {
			ids := f(datasetIndex, recordIndex, record)
			next := make([]BlockID, 0, len(products)*len(ids))
			for _, prefix := range products {
				for _, id := range ids {
					next = append(next, appendTuple(prefix, id))
				}
			}
			products = next
		}
		return products
	}
}

// appendTuple grows the running And accumulator by one element. The
// accumulator is always the array form anyKey produces (never a bare
// slice) so it stays comparable, and therefore usable as a
// blockAssignment map key, at every intermediate step — not just once
// the last fs has been folded in.
func appendTuple(prefix BlockID, id BlockID) BlockID {
	// Past five elements the accumulator nests as (prefix, id) pairs, so
	// every function's ID still takes part in the key.
	type longTuple struct{ Prefix, Last BlockID }
	switch prefix.(type) {
	case [5]BlockID, longTuple:
		return longTuple{Prefix: prefix, Last: id}
	}
	out := append(tupleElems(prefix), id)
	return anyKey(out)
}

// tupleElems unpacks an And accumulator back into its element slice:
// nil for the not-yet-started prefix, or the contents of whichever
// fixed-size array anyKey last produced.
func tupleElems(prefix BlockID) []BlockID {
	switch v := prefix.(type) {
	case nil:
		return nil
	case [1]BlockID:
		return append([]BlockID(nil), v[:]...)
	case [2]BlockID:
		return append([]BlockID(nil), v[:]...)
	case [3]BlockID:
		return append([]BlockID(nil), v[:]...)
	case [4]BlockID:
		return append([]BlockID(nil), v[:]...)
	case [5]BlockID:
		return append([]BlockID(nil), v[:]...)
	default:
		panic("blocking: unreachable And accumulator type")
	}
}

// anyKey converts a []BlockID into a comparable array-backed key.
// Since BlockID values from this package's own combinators are always
// comparable scalars or small tagged structs, a fixed small-arity path
// covers the practical cases without reflection.
func anyKey(ids []BlockID) BlockID {
	switch len(ids) {
	case 1:
		return [1]BlockID{ids[0]}
	case 2:
		return [2]BlockID{ids[0], ids[1]}
	case 3:
		return [3]BlockID{ids[0], ids[1], ids[2]}
	case 4:
		return [4]BlockID{ids[0], ids[1], ids[2], ids[3]}
	default:
		return [5]BlockID{ids[0], ids[1], ids[2], ids[3], ids[4]}
	}
}

// taggedID tags a block ID with the index of the sub-function that
// produced it, so Or's disjoint union never collides IDs across
// functions even if they'd otherwise compare equal.
type taggedID struct {
	Fn int
	ID BlockID
}

// Or returns a blocking function whose block IDs are the disjoint
// union of each input function's block IDs, each tagged by the
// producing function's index. Two records share an Or block iff they
// share a block ID in at least one of fs.
func Or(fs ...Func) Func {
	return func(datasetIndex, recordIndex int, record []byte) []BlockID {
		var out []BlockID
		for fi, f := range fs {
			for _, id := range f(datasetIndex, recordIndex, record) {
				out = append(out, taggedID{Fn: fi, ID: id})
			}
		}
		return out
	}
}

// bitTableID identifies a bit_blocking block: the table index and the
// integer formed from the record's bits at that table's positions.
type bitTableID struct {
	Table int
	Value uint64
}

// BitBlocking chooses g independent random r-subsets of bit positions
// on first use (seeded, so deterministic across runs for a given
// seed), memoized for the lifetime of the returned Func. All records
// passed to it must share one bit length L; a record's block ID for
// table t is the integer formed from its bits at table t's positions,
// tagged with t.
func BitBlocking(g, r int, seed int64) Func {
	var (
		tables [][]int
		bitLen = -1
	)
	rng := rand.New(rand.NewSource(seed))

	return func(datasetIndex, recordIndex int, record []byte) []BlockID {
		l := len(record) * 8
		if bitLen == -1 {
			bitLen = l
			tables = make([][]int, g)
			for t := range tables {
				tables[t] = sampleDistinctPositions(rng, bitLen, r)
			}
		}

		ids := make([]BlockID, g)
		for t, positions := range tables {
			var v uint64
			for bitIdx, pos := range positions {
				if getBit(record, pos) {
					v |= 1 << uint(bitIdx)
				}
			}
			ids[t] = bitTableID{Table: t, Value: v}
		}
		return ids
	}
}

func getBit(record []byte, pos int) bool {
	byteIdx := pos / 8
	bitIdx := uint(pos % 8)
	return record[byteIdx]&(1<<bitIdx) != 0
}

func sampleDistinctPositions(rng *rand.Rand, bitLen, r int) []int {
	if r > bitLen {
		r = bitLen
	}
	perm := rng.Perm(bitLen)
	positions := make([]int, r)
	copy(positions, perm[:r])
	return positions
}

// continuousBucketID identifies a continuous_blocking bucket: an even
// or odd integer multiple of the radius.
type continuousBucketID int64

// ValueSource extracts the real-valued feature continuous_blocking
// buckets on, for one record.
type ValueSource func(datasetIndex, recordIndex int, record []byte) float64

// ContinuousBlocking maps each record's associated real value x to two
// buckets, ⌊x/2r⌋·2 (even) and ⌊(x+r)/2r⌋·2+1 (odd). Two values within
// radius of each other share at least one bucket; two values more than
// 2*radius apart share none.
func ContinuousBlocking(radius float64, source ValueSource) Func {
	return func(datasetIndex, recordIndex int, record []byte) []BlockID {
		x := source(datasetIndex, recordIndex, record)
		even := int64(math.Floor(x/(2*radius))) * 2
		odd := int64(math.Floor((x+radius)/(2*radius)))*2 + 1
		return []BlockID{continuousBucketID(even), continuousBucketID(odd)}
	}
}

// ListSource returns a precomputed block ID for one record.
type ListSource func(datasetIndex, recordIndex int, record []byte) BlockID

// ListBlocking wraps a precomputed per-record block ID lookup.
func ListBlocking(source ListSource) Func {
	return func(datasetIndex, recordIndex int, record []byte) []BlockID {
		return []BlockID{source(datasetIndex, recordIndex, record)}
	}
}
