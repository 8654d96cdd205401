// Package scan implements the FASTQ scanner: it tokenizes reads at
// wildcard bases, slides a 31-base window across each token, and resolves
// every window against the four-index database built by gtdb.
package scan

import "github.com/grailbio/gtpro/gtdb"

// Resolver looks up a packed 31-mer against a built database.
type Resolver struct {
	idx    *gtdb.Indices
	params gtdb.Params

	snps      []gtdb.SNP
	kmerIndex []gtdb.KmerEntry
	bloom     []uint64
	lmer      []gtdb.LmerRange
}

// NewResolver builds a Resolver over an already-built set of indices. The
// index slices are taken once, up front: they never change for the life of
// the process.
func NewResolver(idx *gtdb.Indices, params gtdb.Params) *Resolver {
	return &Resolver{
		idx:       idx,
		params:    params,
		snps:      idx.SNPs.Slice(),
		kmerIndex: idx.KmerIndex.Slice(),
		bloom:     idx.MmerBloom.Slice(),
		lmer:      idx.LmerIndex.Slice(),
	}
}

// Resolve looks up a packed 31-mer, returning the dense id of the SNP it
// matches and true on a match. It first rejects most non-matches with an
// O(1) bloom check, then a direct lmer_index lookup, then linearly probes
// the kmer_index run for that lmer, reconstructing and comparing each
// candidate's original kmer.
func (r *Resolver) Resolve(kmer uint64) (snpID uint32, ok bool) {
	bloomBit := kmer & r.params.BloomMask()
	if r.bloom[bloomBit/64]&(1<<(bloomBit%64)) == 0 {
		return 0, false
	}

	lmerVal := kmer >> uint(r.params.M2())
	rng := r.lmer[lmerVal]
	length := rng.Length()
	if length == 0 {
		return 0, false
	}

	start := rng.Start()
	for i := uint64(0); i < length; i++ {
		entry := r.kmerIndex[start+i]
		snp := r.snps[entry.SNPID()]
		cand := snp.Reconstruct(entry.Offset())
		if cand == kmer {
			return entry.SNPID(), true
		}
		if kmer < cand {
			break
		}
	}
	return 0, false
}

// Coord returns the source database coordinate of the SNP with the given
// dense id, for emitting scan output keyed the same way the database is.
func (r *Resolver) Coord(snpID uint32) uint64 {
	return r.snps[snpID].Coord
}
