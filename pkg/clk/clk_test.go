package clk

import "testing"

func TestPopcount(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0xFF}, 8},
		{[]byte{0xFF, 0x00}, 8},
		{[]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0xFF}, 16},
	}
	for _, c := range cases {
		if got := Popcount(c.in); got != c.want {
			t.Errorf("Popcount(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestPopcountArray(t *testing.T) {
	data := []byte{0xFF, 0x00, 0x0F, 0xF0}
	got, err := PopcountArray(data, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []uint32{8, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPopcountArrayBadElementSize(t *testing.T) {
	if _, err := PopcountArray([]byte{0x00, 0x00, 0x00}, 2); err == nil {
		t.Fatal("expected an error for non-dividing element size")
	}
}

func TestAndPopcount(t *testing.T) {
	a := []byte{0xFF, 0x0F, 0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45, 0x67}
	b := []byte{0x0F, 0xFF, 0xAB, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x00}
	got, err := AndPopcount(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var want uint32
	for i := range a {
		want += uint32(Popcount([]byte{a[i] & b[i]}))
	}
	if got != want {
		t.Errorf("AndPopcount = %d, want %d", got, want)
	}
}

func TestAndPopcountLengthMismatch(t *testing.T) {
	if _, err := AndPopcount([]byte{0x00}, []byte{0x00, 0x00}); err == nil {
		t.Fatal("expected an error for mismatched lengths")
	}
}

func TestCommonBitLen(t *testing.T) {
	a := Dataset{CLK{0xFF, 0x00}, CLK{0x0F, 0xF0}}
	b := Dataset{CLK{0x00, 0x00}}
	l, err := CommonBitLen(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l != 16 {
		t.Errorf("got %d, want 16", l)
	}
}

func TestCommonBitLenInconsistent(t *testing.T) {
	a := Dataset{CLK{0xFF, 0x00}, CLK{0x0F}}
	if _, err := CommonBitLen(a); err == nil {
		t.Fatal("expected an error for inconsistent lengths")
	}
}

func TestCommonBitLenUnsupported(t *testing.T) {
	// A zero-length CLK is never a positive multiple of 8.
	bad := Dataset{CLK{}}
	if _, err := CommonBitLen(bad); err == nil {
		t.Fatal("expected an error for unsupported (zero) bit length")
	}
}
