package gtdb

// kmerMask isolates the K2 valid bits of a packed kmer.
const kmerMask = uint64(1)<<K2 - 1

// lowContribution returns the bits a kmer with the given SNP offset
// contributes to that SNP's Low field, and the mask of bit positions it
// writes there. Left-shifting by 62-2*offset lines up every kmer's SNP base
// at bits 62-63 regardless of the kmer's own offset, so bases to the left of
// the SNP accumulate at a position that depends only on their distance from
// the SNP, not on which kmer supplied them.
func lowContribution(kmer uint64, offset int) (bits, mask uint64) {
	shift := uint(62 - 2*offset)
	return kmer << shift, kmerMask << shift
}

// highContribution is lowContribution's mirror image for bases at or to the
// right of the SNP: right-shifting by 2*offset lines up the SNP base at bits
// 0-1.
func highContribution(kmer uint64, offset int) (bits, mask uint64) {
	shift := uint(2 * offset)
	return kmer >> shift, kmerMask >> shift
}

// Reconstruct rebuilds the 62-bit kmer that would be produced by reading K
// bases centered so the SNP falls at the given offset, from a SNP's
// accumulated Low/High fields. It is the inverse of the low/high
// contributions folded in during optimization.
func (s SNP) Reconstruct(offset int) uint64 {
	lo := s.Low >> uint(62-2*offset)
	hi := s.High << uint(2*offset)
	return (lo | hi) & kmerMask
}
