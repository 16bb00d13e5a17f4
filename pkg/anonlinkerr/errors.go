// Package anonlinkerr holds the sentinel error values shared across the
// anonlink-go engine. Components wrap these with fmt.Errorf("...: %w", ...)
// so callers can branch on kind with errors.Is while still getting a
// human-readable message.
package anonlinkerr

import "errors"

var (
	// ErrNotEnoughDatasets is returned when a similarity kernel is handed
	// fewer datasets than it requires.
	ErrNotEnoughDatasets = errors.New("anonlink: not enough datasets")

	// ErrTooManyDatasets is returned when a two-party kernel is handed
	// more than two datasets.
	ErrTooManyDatasets = errors.New("anonlink: too many datasets")

	// ErrUnsupportedArity names an input with the wrong number of
	// parties. No function in this module returns it; the solvers do
	// not check arity.
	ErrUnsupportedArity = errors.New("anonlink: unsupported arity")

	// ErrInconsistentLength is returned when CLKs within one call do not
	// share a common bit length.
	ErrInconsistentLength = errors.New("anonlink: inconsistent CLK length")

	// ErrUnsupportedLength is returned when a CLK's bit length is not a
	// multiple of 8.
	ErrUnsupportedLength = errors.New("anonlink: CLK length not a multiple of 8")

	// ErrInvalidChunk is returned when a chunk descriptor's shape does not
	// match the sub-datasets supplied to process it.
	ErrInvalidChunk = errors.New("anonlink: invalid chunk")

	// ErrUnsupportedVersion is returned by the codec for any header
	// version other than 1.
	ErrUnsupportedVersion = errors.New("anonlink: unsupported codec version")

	// ErrUnsupportedWidth is returned by the codec for a field width
	// outside the supported set.
	ErrUnsupportedWidth = errors.New("anonlink: unsupported field width")

	// ErrTruncated is returned when a codec body ends mid-entry.
	ErrTruncated = errors.New("anonlink: truncated candidate stream")

	// ErrNonIntegralEntryCount is returned when a body's byte length is
	// not a multiple of the entry stride implied by the header.
	ErrNonIntegralEntryCount = errors.New("anonlink: body size is not a multiple of the entry width")

	// ErrEmptyInputSet is returned by merge operations given zero sources.
	ErrEmptyInputSet = errors.New("anonlink: no input sources to merge")

	// ErrInvalidCandidateShape is returned when a candidate list's
	// parallel arrays are not all the same length.
	ErrInvalidCandidateShape = errors.New("anonlink: candidate list arrays have mismatched lengths")

	// ErrInvalidParameter is returned for out-of-range tunables: a
	// merge threshold outside [0,1], or a non-positive target comparison
	// count or negative dataset size given to SplitToChunks. The blocking
	// constructors (radius, r, g) and the similarity kernels' k and
	// threshold are not validated and never return it.
	ErrInvalidParameter = errors.New("anonlink: invalid parameter")

	// ErrTooFewNonmatches is returned when a statistics helper is asked
	// for a nonmatch rank beyond what the candidate stream contains.
	ErrTooFewNonmatches = errors.New("anonlink: fewer nonmatches than requested")

	// ErrGroupNotPairwise is returned when a solved group does not
	// contain exactly one record from each of two datasets.
	ErrGroupNotPairwise = errors.New("anonlink: group is not exactly one record per dataset")
)
