// Package seqcode implements the fixed-width 2-bits-per-base DNA codec
// shared by the optimizer and the scanner.
package seqcode

import "fmt"

// BitsPerBase is the number of bits used to encode one nucleotide.
const BitsPerBase = 2

// invalid marks a byte that is not one of A/a, C/c, G/g, T/t.
const invalid = 0xff

// table maps every possible byte value to its 2-bit code, or to invalid.
var table [256]byte

func init() {
	for i := range table {
		table[i] = invalid
	}
	table['A'], table['a'] = 0, 0
	table['C'], table['c'] = 1, 1
	table['G'], table['g'] = 2, 2
	table['T'], table['t'] = 3, 3
}

// Lookup returns the 2-bit code for b, or (0xff, false) if b is not ACGT.
func Lookup(b byte) (code byte, ok bool) {
	c := table[b]
	return c, c != invalid
}

// Encode packs the first n bytes of buf into an integer with base i at bits
// 2i, 2i+1. It panics if any byte is not one of A/a/C/c/G/g/T/t: callers own
// the invariant that buf has already been tokenized at wildcards, so a
// non-ACGT byte here means a caller bug, not bad input.
func Encode(buf []byte, n int) uint64 {
	var code uint64
	for i := 0; i < n; i++ {
		c := table[buf[i]]
		if c == invalid {
			panic(fmt.Sprintf("seqcode: non-ACGT byte %q at offset %d", buf[i], i))
		}
		code |= uint64(c) << uint(2*i)
	}
	return code
}

// letters maps a 2-bit code back to its uppercase base letter.
var letters = [4]byte{'A', 'C', 'G', 'T'}

// Decode unpacks the low 2*n bits of code into n base letters, least
// significant base first as encoded by Encode (base i occupies bits 2i,2i+1,
// so Decode reproduces the original left-to-right order).
func Decode(code uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = letters[(code>>uint(2*i))&0x3]
	}
	return out
}
