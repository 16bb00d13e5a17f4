package chunking

import (
	"context"
	"errors"
	"testing"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
	"github.com/entitylink/anonlink-go/pkg/candidates"
	"github.com/entitylink/anonlink-go/pkg/clk"
)

func diceStub(datasets []clk.Dataset, threshold float64, k *int) (*candidates.List, error) {
	a, b := datasets[0], datasets[1]
	out := candidates.NewList(0)
	for i, ra := range a {
		for j, rb := range b {
			if string(ra) == string(rb) {
				out.Append(candidates.Pair{Similarity: 1.0, DsetI0: 0, DsetI1: 1, RecI0: uint32(i), RecI1: uint32(j)})
			}
		}
	}
	out.SortCanonical()
	return out, nil
}

func TestSplitToChunks_CoversFullRangeWithoutOverlap(t *testing.T) {
	chunks, err := SplitToChunks(8, []int{10, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	covered0 := make([]bool, 10)
	for _, c := range chunks {
		if c[0].DatasetIndex != 0 || c[1].DatasetIndex != 1 {
			t.Fatalf("expected dataset indices (0,1), got %+v", c)
		}
		if c[1].Range != [2]int{0, 4} {
			t.Errorf("expected full dataset1 range in every chunk, got %+v", c[1].Range)
		}
		for i := c[0].Range[0]; i < c[0].Range[1]; i++ {
			if covered0[i] {
				t.Errorf("dataset 0 index %d covered by more than one chunk", i)
			}
			covered0[i] = true
		}
	}
	for i, ok := range covered0 {
		if !ok {
			t.Errorf("dataset 0 index %d never covered", i)
		}
	}
}

func TestSplitToChunks_EmptyDatasetSkipsPair(t *testing.T) {
	chunks, err := SplitToChunks(8, []int{0, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Errorf("expected no chunks when one dataset is empty, got %+v", chunks)
	}
}

func TestSplitToChunks_InvalidTarget(t *testing.T) {
	_, err := SplitToChunks(0, []int{10, 4})
	if !errors.Is(err, anonlinkerr.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
}

func TestSplitToChunks_CoversEveryPairOfThreeDatasets(t *testing.T) {
	chunks, err := SplitToChunks(100, []int{5, 5, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := make(map[[2]int]bool)
	for _, c := range chunks {
		seen[[2]int{c[0].DatasetIndex, c[1].DatasetIndex}] = true
	}
	for _, want := range [][2]int{{0, 1}, {0, 2}, {1, 2}} {
		if !seen[want] {
			t.Errorf("missing chunks for dataset pair %v", want)
		}
	}
}

func TestProcessChunk_RelabelsToFullDatasetIndices(t *testing.T) {
	x := clk.CLK{0xFF}
	y := clk.CLK{0x00}
	a := clk.Dataset{y, x, y}
	b := clk.Dataset{y, x}

	chunk := Chunk{{DatasetIndex: 0, Range: [2]int{1, 2}}, {DatasetIndex: 1, Range: [2]int{0, 2}}}
	sub := []clk.Dataset{a[1:2], b[0:2]}
	out, err := ProcessChunk(chunk, sub, diceStub, 0.5, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("got %d candidates, want 1", out.Len())
	}
	p := out.At(0)
	if p.RecI0 != 1 || p.RecI1 != 1 {
		t.Errorf("got %+v, want RecI0=1, RecI1=1", p)
	}
}

func TestProcessChunk_EmptySideYieldsNoError(t *testing.T) {
	chunk := Chunk{{DatasetIndex: 0, Range: [2]int{0, 0}}, {DatasetIndex: 1, Range: [2]int{0, 1}}}
	sub := []clk.Dataset{{}, {clk.CLK{0xFF}}}
	out, err := ProcessChunk(chunk, sub, diceStub, 0.5, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("got %d candidates, want 0", out.Len())
	}
}

func TestProcessChunk_MismatchedSubDatasetLength(t *testing.T) {
	chunk := Chunk{{DatasetIndex: 0, Range: [2]int{0, 2}}, {DatasetIndex: 1, Range: [2]int{0, 1}}}
	sub := []clk.Dataset{{clk.CLK{0xFF}}, {clk.CLK{0xFF}}}
	_, err := ProcessChunk(chunk, sub, diceStub, 0.5, nil, nil)
	if !errors.Is(err, anonlinkerr.ErrInvalidChunk) {
		t.Fatalf("got %v, want ErrInvalidChunk", err)
	}
}

func TestRunChunks_MergesAcrossChunks(t *testing.T) {
	x := clk.CLK{0xFF}
	y := clk.CLK{0x00}
	a := clk.Dataset{x, y, x, y}
	b := clk.Dataset{x, y}

	chunks, err := SplitToChunks(2, []int{len(a), len(b)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := RunChunks(context.Background(), []clk.Dataset{a, b}, chunks, diceStub, 0.5, nil, nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Equal records match: a[0], a[2] against b[0] and a[1], a[3] against b[1].
	if out.Len() != 4 {
		t.Fatalf("got %d candidates, want 4: %+v", out.Len(), out)
	}
}

func TestRunChunks_CoversUnchunkedEquivalent(t *testing.T) {
	x := clk.CLK{0xFF}
	y := clk.CLK{0x00}
	z := clk.CLK{0x0F}
	a := clk.Dataset{x, y, z, x, y, z, x}
	b := clk.Dataset{x, z, y}

	whole, err := diceStub([]clk.Dataset{a, b}, 0.5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, err := SplitToChunks(3, []int{len(a), len(b)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunked, err := RunChunks(context.Background(), []clk.Dataset{a, b}, chunks, diceStub, 0.5, nil, nil, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if whole.Len() != chunked.Len() {
		t.Fatalf("got %d candidates chunked, want %d (unchunked)", chunked.Len(), whole.Len())
	}
	for i := 0; i < whole.Len(); i++ {
		if whole.At(i) != chunked.At(i) {
			t.Errorf("mismatch at %d: whole=%+v chunked=%+v", i, whole.At(i), chunked.At(i))
		}
	}
}
