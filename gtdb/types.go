// Package gtdb implements the single-pass optimizer that turns the
// canonical (snp_with_offset, kmer) source database into the four flat
// index files the scanner mmaps: snps, kmer_index, mmer_bloom, lmer_index.
package gtdb

// K is the fixed kmer length in bases.
const K = 31

// BitsPerBase is the width of one packed nucleotide.
const BitsPerBase = 2

// K2 is the number of bits in a fully packed kmer.
const K2 = BitsPerBase * K

// MaxSNPs is the largest dense SNP id representable in a kmer_index entry's
// 27-bit id field.
const MaxSNPs = 1<<27 - 1

// MaxLmerStart and MaxLmerLength bound an LmerRange's 48-bit start and
// 16-bit length fields.
const (
	MaxLmerStart  = 1<<48 - 1
	MaxLmerLength = 1<<16 - 1
)

// Params bundles the tunable index bit-widths: L2 (lmer prefix width) and M3
// (bloom index width). M2, the kmer_index suffix width, is derived.
type Params struct {
	L2 int
	M3 int
}

// M2 returns the number of low bits of a kmer that remain after the L2-bit
// lmer prefix is stripped off.
func (p Params) M2() int { return K2 - p.L2 }

// LmerCount is the number of entries in the lmer_index table.
func (p Params) LmerCount() int { return 1 << uint(p.L2) }

// BloomWords is the number of uint64 words in the mmer_bloom table.
func (p Params) BloomWords() int { return 1 << uint(p.M3-6) }

// BloomMask isolates the low M3 bits of a kmer, the bloom filter's domain.
func (p Params) BloomMask() uint64 { return 1<<uint(p.M3) - 1 }

// SNP is the redundant-representation record for one SNP position: Low and
// High jointly encode the reference sequence flanking the SNP as observed
// across every kmer in the source DB that covers it (see reconstruct.go).
// Coord is the caller-opaque SNP coordinate carried through unchanged.
type SNP struct {
	Low   uint64
	High  uint64
	Coord uint64
}

// SourceRecord is one 16-byte record of the canonical input DB.
type SourceRecord struct {
	SnpWithOffset uint64
	Kmer          uint64
}

// SNPCoord returns the SNP's opaque coordinate, the top 56 bits of
// SnpWithOffset.
func (r SourceRecord) SNPCoord() uint64 { return r.SnpWithOffset >> 8 }

// Offset returns the SNP's 0-based position within this record's kmer, the
// low 8 bits of SnpWithOffset.
func (r SourceRecord) Offset() int { return int(r.SnpWithOffset & 0xff) }

// KmerEntry packs a dense SNP id and that SNP's offset within the kmer that
// produced this entry.
type KmerEntry uint32

// MakeKmerEntry packs a SNP id and offset into a KmerEntry.
func MakeKmerEntry(snpID uint32, offset int) KmerEntry {
	return KmerEntry(snpID<<5 | uint32(offset))
}

// SNPID unpacks the dense SNP id.
func (e KmerEntry) SNPID() uint32 { return uint32(e) >> 5 }

// Offset unpacks the SNP's position within the source kmer.
func (e KmerEntry) Offset() int { return int(uint32(e) & 0x1f) }

// LmerRange packs the (start, length) of a run of same-lmer entries within
// kmer_index.
type LmerRange uint64

// MakeLmerRange packs a start and length into an LmerRange.
func MakeLmerRange(start, length uint64) LmerRange {
	return LmerRange(start<<16 | length)
}

// Start is the first kmer_index position covered by this lmer.
func (r LmerRange) Start() uint64 { return uint64(r) >> 16 }

// Length is the number of kmer_index positions covered by this lmer.
func (r LmerRange) Length() uint64 { return uint64(r) & 0xffff }
