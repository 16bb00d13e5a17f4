// Package serialize implements the binary candidate-list format: a
// small fixed header followed by a flat run of fixed-width records, no
// length prefix, readable as a stream so a consumer can start matching
// before a whole shard has arrived.
package serialize

import (
	"bufio"
	"bytes"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/candidates"
)

// Version is the only wire format version this package produces or
// accepts.
const Version = 1

// Header describes the per-field byte widths used by the records that
// follow it. SimBytes is 4 (float32) or 8 (float64); DsetIBytes and
// RecIBytes are each 1, 2, 4, or 8.
type Header struct {
	Version   uint8
	SimBytes  uint8
	DsetIBytes uint8
	RecIBytes  uint8
}

const headerSize = 4

func (h Header) recordSize() int {
	return int(h.SimBytes) + 2*int(h.DsetIBytes) + 2*int(h.RecIBytes)
}

func (h Header) validate() error {
	if h.Version != Version {
		return fmt.Errorf("serialize: unsupported format version %d: %w", h.Version, anonlinkerr.ErrUnsupportedVersion)
	}
	if h.SimBytes != 4 && h.SimBytes != 8 {
		return fmt.Errorf("serialize: unsupported similarity width %d: %w", h.SimBytes, anonlinkerr.ErrUnsupportedWidth)
	}
	for _, w := range []uint8{h.DsetIBytes, h.RecIBytes} {
		if w != 1 && w != 2 && w != 4 && w != 8 {
			return fmt.Errorf("serialize: unsupported index width %d: %w", w, anonlinkerr.ErrUnsupportedWidth)
		}
	}
	return nil
}

// narrowestWidth returns the smallest index width (1, 2, 4, or 8 bytes)
// that can hold every value up to and including max.
func narrowestWidth(max uint64) uint8 {
	switch {
	case max <= math.MaxUint8:
		return 1
	case max <= math.MaxUint16:
		return 2
	case max <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

// headerFor picks the narrowest Header that can losslessly represent
// every index in list. Similarities always use 8-byte float64.
func headerFor(list *candidates.List) Header {
	var maxDset, maxRec uint64
	for i := 0; i < list.Len(); i++ {
		p := list.At(i)
		maxDset = maxU64(maxDset, uint64(p.DsetI0), uint64(p.DsetI1))
		maxRec = maxU64(maxRec, uint64(p.RecI0), uint64(p.RecI1))
	}
	return Header{
		Version:    Version,
		SimBytes:   8,
		DsetIBytes: narrowestWidth(maxDset),
		RecIBytes:  narrowestWidth(maxRec),
	}
}

func maxU64(values ...uint64) uint64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func writeHeader(w io.Writer, h Header) error {
	buf := [headerSize]byte{h.Version, h.SimBytes, h.DsetIBytes, h.RecIBytes}
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, fmt.Errorf("serialize: truncated header: %w", anonlinkerr.ErrTruncated)
		}
		return Header{}, err
	}
	h := Header{Version: buf[0], SimBytes: buf[1], DsetIBytes: buf[2], RecIBytes: buf[3]}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func writeRecord(w io.Writer, h Header, p candidates.Pair) error {
	buf := make([]byte, h.recordSize())
	off := 0

	if h.SimBytes == 8 {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.Similarity))
	} else {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(p.Similarity)))
	}
	off += int(h.SimBytes)

	off = putIndex(buf, off, h.DsetIBytes, p.DsetI0)
	off = putIndex(buf, off, h.DsetIBytes, p.DsetI1)
	off = putIndex(buf, off, h.RecIBytes, p.RecI0)
	off = putIndex(buf, off, h.RecIBytes, p.RecI1)

	_, err := w.Write(buf)
	return err
}

func putIndex(buf []byte, off int, width uint8, v uint32) int {
	switch width {
	case 1:
		buf[off] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf[off:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf[off:], v)
	case 8:
		binary.LittleEndian.PutUint64(buf[off:], uint64(v))
	}
	return off + int(width)
}

func readIndex(buf []byte, off int, width uint8) (uint32, int) {
	switch width {
	case 1:
		return uint32(buf[off]), off + 1
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf[off:])), off + 2
	case 4:
		return binary.LittleEndian.Uint32(buf[off:]), off + 4
	default:
		return uint32(binary.LittleEndian.Uint64(buf[off:])), off + 8
	}
}

func readRecord(r io.Reader, h Header, buf []byte) (candidates.Pair, error) {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return candidates.Pair{}, fmt.Errorf("serialize: truncated record: %w", anonlinkerr.ErrTruncated)
		}
		return candidates.Pair{}, err
	}

	off := 0
	var sim float64
	if h.SimBytes == 8 {
		sim = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	} else {
		sim = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
	}
	off += int(h.SimBytes)

	var d0, d1, r0, r1 uint32
	d0, off = readIndex(buf, off, h.DsetIBytes)
	d1, off = readIndex(buf, off, h.DsetIBytes)
	r0, off = readIndex(buf, off, h.RecIBytes)
	r1, off = readIndex(buf, off, h.RecIBytes)

	return candidates.Pair{Similarity: sim, DsetI0: d0, DsetI1: d1, RecI0: r0, RecI1: r1}, nil
}

// Dump writes list to w in the narrowest header that can represent it.
func Dump(w io.Writer, list *candidates.List) error {
	h := headerFor(list)
	return DumpIter(w, h, list)
}

// DumpIter writes list to w using the given header's widths. Use this
// directly (with a Header picked in advance, e.g. via headerFor on a
// larger known superset) when writing a stream of chunks that must all
// share one header.
func DumpIter(w io.Writer, h Header, list *candidates.List) error {
	if err := h.validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, h); err != nil {
		return err
	}
	for i := 0; i < list.Len(); i++ {
		if err := writeRecord(bw, h, list.At(i)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load reads a full candidate list from r.
func Load(r io.Reader) (*candidates.List, error) {
	list := candidates.NewList(0)
	err := LoadIter(r, func(p candidates.Pair) error {
		list.Append(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// LoadIter streams a candidate list from r, invoking fn once per
// record without materializing the whole list.
func LoadIter(r io.Reader, fn func(candidates.Pair) error) error {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return err
	}
	buf := make([]byte, h.recordSize())
	for {
		p, err := readRecord(br, h, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

// LoadBytes is like Load but operates on an in-memory buffer it can
// measure up front, so it can distinguish a body whose length isn't an
// exact multiple of the record stride (ErrNonIntegralEntryCount) from
// a record that reads short mid-stream (ErrTruncated, still possible
// on a stream it hasn't fully buffered).
func LoadBytes(data []byte) (*candidates.List, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("serialize: truncated header: %w", anonlinkerr.ErrTruncated)
	}
	h := Header{Version: data[0], SimBytes: data[1], DsetIBytes: data[2], RecIBytes: data[3]}
	if err := h.validate(); err != nil {
		return nil, err
	}
	body := data[headerSize:]
	stride := h.recordSize()
	if len(body)%stride != 0 {
		return nil, fmt.Errorf("serialize: body of %d bytes is not a multiple of the %d-byte record width: %w",
			len(body), stride, anonlinkerr.ErrNonIntegralEntryCount)
	}
	return Load(bytes.NewReader(data))
}

// mergeSource pulls one decoded record at a time from a single
// presorted input, so a k-way merge never materializes more than one
// pending record per source.
type mergeSource struct {
	r   *bufio.Reader
	h   Header
	buf []byte
	cur candidates.Pair
	has bool
}

func newMergeSource(r io.Reader) (*mergeSource, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	s := &mergeSource{r: br, h: h, buf: make([]byte, h.recordSize())}
	if err := s.advance(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *mergeSource) advance() error {
	p, err := readRecord(s.r, s.h, s.buf)
	if err == io.EOF {
		s.has = false
		return nil
	}
	if err != nil {
		return err
	}
	s.cur = p
	s.has = true
	return nil
}

// pairLess reports whether a sorts before b in canonical total order
// (§3): decreasing similarity, then increasing (DsetI0,DsetI1,RecI0,RecI1).
func pairLess(a, b candidates.Pair) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.DsetI0 != b.DsetI0 {
		return a.DsetI0 < b.DsetI0
	}
	if a.DsetI1 != b.DsetI1 {
		return a.DsetI1 < b.DsetI1
	}
	if a.RecI0 != b.RecI0 {
		return a.RecI0 < b.RecI0
	}
	return a.RecI1 < b.RecI1
}

// sourceHeap is a min-heap of merge sources ordered by each source's
// current pending record, canonical-order "smallest" (i.e. highest
// similarity, lowest indices) on top.
type sourceHeap []*mergeSource

func (h sourceHeap) Len() int            { return len(h) }
func (h sourceHeap) Less(i, j int) bool  { return pairLess(h[i].cur, h[j].cur) }
func (h sourceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sourceHeap) Push(x interface{}) { *h = append(*h, x.(*mergeSource)) }
func (h *sourceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// openMergeSources reads every source's header (computing the
// element-wise maximum width across all of them, so the eventual
// output narrows no input) and primes each with its first record.
func openMergeSources(readers []io.Reader) ([]*mergeSource, Header, error) {
	if len(readers) == 0 {
		return nil, Header{}, fmt.Errorf("serialize: merge requires at least one source: %w", anonlinkerr.ErrEmptyInputSet)
	}
	out := Header{Version: Version}
	sources := make([]*mergeSource, 0, len(readers))
	for _, r := range readers {
		s, err := newMergeSource(r)
		if err != nil {
			return nil, Header{}, err
		}
		out.SimBytes = maxU8(out.SimBytes, s.h.SimBytes)
		out.DsetIBytes = maxU8(out.DsetIBytes, s.h.DsetIBytes)
		out.RecIBytes = maxU8(out.RecIBytes, s.h.RecIBytes)
		sources = append(sources, s)
	}
	return sources, out, nil
}

// drainMerge performs the external k-way merge of §4.7 over already
// opened, primed sources: every one must already be in canonical
// order (as any output of this package's own Dump is), and drainMerge
// interleaves them into that same order in a single pass, invoking
// emit once per surviving record and dropping adjacent duplicates
// across sources.
func drainMerge(sources []*mergeSource, emit func(candidates.Pair) error) error {
	h := make(sourceHeap, 0, len(sources))
	for _, s := range sources {
		if s.has {
			h = append(h, s)
		}
	}
	heap.Init(&h)

	var prev candidates.Pair
	hasPrev := false
	for h.Len() > 0 {
		top := heap.Pop(&h).(*mergeSource)
		p := top.cur
		if err := top.advance(); err != nil {
			return err
		}
		if top.has {
			heap.Push(&h, top)
		}
		if hasPrev && prev == p {
			continue
		}
		if err := emit(p); err != nil {
			return err
		}
		prev, hasPrev = p, true
	}
	return nil
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// Merge performs the external k-way merge over every presorted reader
// and returns the combined, canonically-ordered, deduplicated list.
func Merge(readers []io.Reader) (*candidates.List, error) {
	sources, _, err := openMergeSources(readers)
	if err != nil {
		return nil, err
	}
	merged := candidates.NewList(0)
	if err := drainMerge(sources, func(p candidates.Pair) error {
		merged.Append(p)
		return nil
	}); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeIter is the fully streaming form of Merge: it never
// materializes the combined list, instead merging every presorted
// reader directly into w using a header whose widths are the maximum
// declared across all inputs (§4.7), so no input value is narrowed.
func MergeIter(w io.Writer, readers []io.Reader) error {
	sources, outHeader, err := openMergeSources(readers)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, outHeader); err != nil {
		return err
	}
	if err := drainMerge(sources, func(p candidates.Pair) error {
		return writeRecord(bw, outHeader, p)
	}); err != nil {
		return err
	}
	return bw.Flush()
}
