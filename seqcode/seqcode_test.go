package seqcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	for _, tc := range []struct {
		b    byte
		code byte
		ok   bool
	}{
		{'A', 0, true}, {'a', 0, true},
		{'C', 1, true}, {'c', 1, true},
		{'G', 2, true}, {'g', 2, true},
		{'T', 3, true}, {'t', 3, true},
		{'N', 0, false}, {'n', 0, false}, {'-', 0, false},
	} {
		code, ok := Lookup(tc.b)
		assert.Equal(t, tc.ok, ok, "byte %q", tc.b)
		if tc.ok {
			assert.Equal(t, tc.code, code, "byte %q", tc.b)
		}
	}
}

func TestEncodeBaseZeroAtLSB(t *testing.T) {
	// spec's packing convention: base 0 occupies bits 0,1 (the LSB pair).
	assert.Equal(t, uint64(0x1), Encode([]byte("C"), 1))
	assert.Equal(t, uint64(0x2), Encode([]byte("G"), 1))
	assert.Equal(t, uint64(0x3), Encode([]byte("T"), 1))
	assert.Equal(t, uint64(0x0), Encode([]byte("A"), 1))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACG")
	n := 31
	code := Encode(seq, n)
	assert.Equal(t, []byte(seq[:n]), Decode(code, n))
}

func TestEncodeMultiBaseOrder(t *testing.T) {
	// "CA": base0='C'=1 at bits0-1, base1='A'=0 at bits2-3 -> value 1.
	assert.Equal(t, uint64(1), Encode([]byte("CA"), 2))
	// "AC": base0='A'=0, base1='C'=1 at bits2-3 -> value 0b0100 = 4.
	assert.Equal(t, uint64(4), Encode([]byte("AC"), 2))
}

func TestEncodePanicsOnNonACGT(t *testing.T) {
	assert.Panics(t, func() { Encode([]byte("ACGN"), 4) })
}

func TestDecodeUppercases(t *testing.T) {
	code := Encode([]byte("acgt"), 4)
	assert.Equal(t, []byte("ACGT"), Decode(code, 4))
}
