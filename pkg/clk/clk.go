// Package clk implements the bit-vector primitives the rest of the
// engine is built on: CLKs (Bloom-filter record fingerprints), their
// population counts, and the hot AND-popcount loop the similarity
// kernels drive at high volume.
package clk

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/entitylink/anonlink-go/pkg/anonlinkerr"
)

// CLK is an immutable bit-vector fingerprint of one record. Its bit
// length (len(CLK)*8) must be a positive multiple of 8 and must match
// every other CLK participating in the same call.
type CLK []byte

// BitLen returns the CLK's length in bits.
func (c CLK) BitLen() int { return len(c) * 8 }

// Dataset is an ordered, zero-indexed sequence of CLKs sharing one L.
type Dataset []CLK

// hardwarePopcountAvailable reports whether this process's CPU exposes a
// native population-count instruction. On amd64/386 this is the POPCNT
// flag; on every other architecture Go's compiler already lowers
// bits.OnesCount64 to a hardware instruction (or a correct software
// routine when none exists), so the check only feeds the report from
// HardwareAccelerated, never correctness.
var hardwarePopcountAvailable = detectHardwarePopcount()

func detectHardwarePopcount() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpuid.CPU.Supports(cpuid.POPCNT)
	default:
		return true
	}
}

// HardwareAccelerated reports whether the popcount routines in this
// package are backed by a native CPU instruction on this machine.
func HardwareAccelerated() bool { return hardwarePopcountAvailable }

// Popcount returns the number of set bits across a byte slice,
// processing in 64-bit words with a byte-wise tail for the remainder.
func Popcount(b []byte) uint64 {
	var total uint64
	n := len(b)
	i := 0
	for ; i+8 <= n; i += 8 {
		total += uint64(bits.OnesCount64(binary.LittleEndian.Uint64(b[i : i+8])))
	}
	for ; i < n; i++ {
		total += uint64(bits.OnesCount8(b[i]))
	}
	return total
}

// PopcountArray returns one popcount per fixed-size element of data.
// elementSize must evenly divide len(data).
func PopcountArray(data []byte, elementSize int) ([]uint32, error) {
	if elementSize <= 0 || len(data)%elementSize != 0 {
		return nil, fmt.Errorf("clk: element size %d does not divide input of length %d: %w",
			elementSize, len(data), anonlinkerr.ErrInconsistentLength)
	}
	n := len(data) / elementSize
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = uint32(Popcount(data[i*elementSize : (i+1)*elementSize]))
	}
	return out, nil
}

// AndPopcount returns popcount(a AND b) for two equal-length byte
// slices, without allocating. This is the inner-loop primitive the
// Dice and SMC kernels drive once per (record, record) comparison.
func AndPopcount(a, b []byte) (uint32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("clk: mismatched operand lengths %d and %d: %w",
			len(a), len(b), anonlinkerr.ErrInconsistentLength)
	}
	var total uint32
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		wa := binary.LittleEndian.Uint64(a[i : i+8])
		wb := binary.LittleEndian.Uint64(b[i : i+8])
		total += uint32(bits.OnesCount64(wa & wb))
	}
	for ; i < n; i++ {
		total += uint32(bits.OnesCount8(a[i] & b[i]))
	}
	return total, nil
}

// XorPopcount returns popcount(a XOR b) for two equal-length byte
// slices, the Hamming distance between them in bits.
func XorPopcount(a, b []byte) (uint32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("clk: mismatched operand lengths %d and %d: %w",
			len(a), len(b), anonlinkerr.ErrInconsistentLength)
	}
	var total uint32
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		wa := binary.LittleEndian.Uint64(a[i : i+8])
		wb := binary.LittleEndian.Uint64(b[i : i+8])
		total += uint32(bits.OnesCount64(wa ^ wb))
	}
	for ; i < n; i++ {
		total += uint32(bits.OnesCount8(a[i] ^ b[i]))
	}
	return total, nil
}

// ValidateBitLen checks that a bit length is a positive multiple of 8.
func ValidateBitLen(bitLen int) error {
	if bitLen <= 0 || bitLen%8 != 0 {
		return fmt.Errorf("clk: bit length %d is not a positive multiple of 8: %w",
			bitLen, anonlinkerr.ErrUnsupportedLength)
	}
	return nil
}

// CommonBitLen checks that every CLK across the given datasets shares
// one bit length and returns it. Empty datasets are ignored; if every
// dataset is empty the returned length is 0 with no error.
func CommonBitLen(datasets ...Dataset) (int, error) {
	l := -1
	for _, ds := range datasets {
		for _, rec := range ds {
			recLen := rec.BitLen()
			if l == -1 {
				l = recLen
				if err := ValidateBitLen(l); err != nil {
					return 0, err
				}
				continue
			}
			if recLen != l {
				return 0, fmt.Errorf("clk: record has bit length %d, expected %d: %w",
					recLen, l, anonlinkerr.ErrInconsistentLength)
			}
		}
	}
	if l == -1 {
		return 0, nil
	}
	return l, nil
}
