package gtdb

import (
	"os"
	"unsafe"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/gtpro/diskarray"
)

// progressInterval is how often the build and validation passes log a line,
// matching the cadence of the original tool's own progress output.
const progressInterval = 5_000_000

// Indices bundles the four derived index stores that back the scanner.
type Indices struct {
	SNPs      *diskarray.Store[SNP]
	KmerIndex *diskarray.Store[KmerEntry]
	MmerBloom *diskarray.Store[uint64]
	LmerIndex *diskarray.Store[LmerRange]
}

// Close releases every mmap held by idx.
func (idx *Indices) Close() {
	idx.SNPs.Close()
	idx.KmerIndex.Close()
	idx.MmerBloom.Close()
	idx.LmerIndex.Close()
}

// Open loads the four index files derived from dbPath under params,
// building (and validating) whichever of them are missing or empty by
// running a single pass over the source DB. Files that already exist at the
// expected size are trusted as-is: rerunning Open on an already-built DB is
// a cheap mmap, not a rebuild.
//
// snps and kmer_index are built and loaded as a pair: one present without
// the other is a configuration error, since kmer_index entries are indices
// into snps.
func Open(dbPath string, params Params, preload bool) (*Indices, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "gtdb: stat source db %s", dbPath)
	}
	if info.Size()%16 != 0 {
		return nil, errors.Errorf("gtdb: source db %s has size %d, not a multiple of 16", dbPath, info.Size())
	}
	numKmers := int(info.Size() / 16)

	paths := DeriveIndexPaths(dbPath, params)

	snpsExist := fileExists(paths.SNPs)
	kmerIndexExists := fileExists(paths.KmerIndex)
	if snpsExist != kmerIndexExists {
		return nil, errors.Errorf(
			"gtdb: %s and %s must both exist or both be absent, found snps=%v kmer_index=%v",
			paths.SNPs, paths.KmerIndex, snpsExist, kmerIndexExists)
	}
	buildPair := !snpsExist

	var snps *diskarray.Store[SNP]
	var kmerIndex *diskarray.Store[KmerEntry]
	if buildPair {
		kmerIndex, err = diskarray.Open[KmerEntry](paths.KmerIndex, numKmers, preload)
		if err != nil {
			return nil, err
		}
		snps = diskarray.NewBuilt(paths.SNPs, make([]SNP, 0, numKmers/32))
	} else {
		snpsCount, err := elementCount[SNP](paths.SNPs)
		if err != nil {
			return nil, err
		}
		if snps, err = diskarray.Open[SNP](paths.SNPs, snpsCount, preload); err != nil {
			return nil, err
		}
		if kmerIndex, err = diskarray.Open[KmerEntry](paths.KmerIndex, numKmers, preload); err != nil {
			return nil, err
		}
	}

	mmerBloom, err := diskarray.Open[uint64](paths.MmerBloom, params.BloomWords(), preload)
	if err != nil {
		return nil, err
	}
	lmerIndex, err := diskarray.Open[LmerRange](paths.LmerIndex, params.LmerCount(), preload)
	if err != nil {
		return nil, err
	}

	needsPass := buildPair || mmerBloom.NeedsBuild() || lmerIndex.NeedsBuild()
	if !needsPass {
		return &Indices{SNPs: snps, KmerIndex: kmerIndex, MmerBloom: mmerBloom, LmerIndex: lmerIndex}, nil
	}

	src, err := diskarray.Open[SourceRecord](dbPath, numKmers, false)
	if err != nil {
		return nil, errors.Wrapf(err, "gtdb: mmap source db %s", dbPath)
	}
	defer src.Close()
	records := src.Slice()

	b := &builder{
		params:       params,
		buildPair:    buildPair,
		buildBloom:   mmerBloom.NeedsBuild(),
		buildLmer:    lmerIndex.NeedsBuild(),
		snpIDByCoord: make(map[uint64]uint32),
	}
	if buildPair {
		b.kmerIndex = kmerIndex.MutSlice()
	}
	if b.buildBloom {
		b.bloom = mmerBloom.MutSlice()
	}
	if b.buildLmer {
		b.lmer = lmerIndex.MutSlice()
	}
	b.run(records)

	if buildPair {
		snps = diskarray.NewBuilt(paths.SNPs, b.snps)
		validateReconstruction(records, snps.Slice(), b.kmerIndex)
	}

	if buildPair {
		if err := snps.Save(); err != nil {
			return nil, err
		}
		if err := kmerIndex.Save(); err != nil {
			return nil, err
		}
	}
	if b.buildBloom {
		if err := mmerBloom.Save(); err != nil {
			return nil, err
		}
	}
	if b.buildLmer {
		if err := lmerIndex.Save(); err != nil {
			return nil, err
		}
	}

	return &Indices{SNPs: snps, KmerIndex: kmerIndex, MmerBloom: mmerBloom, LmerIndex: lmerIndex}, nil
}

// builder holds the mutable state threaded through the single pass over the
// source DB.
type builder struct {
	params Params

	buildPair  bool
	buildBloom bool
	buildLmer  bool

	snpIDByCoord map[uint64]uint32
	snps         []SNP
	covMask      []struct{ low, high uint64 } // parallel to snps, build-only scratch

	kmerIndex []KmerEntry
	bloom     []uint64
	lmer      []LmerRange

	lastLmer uint64
	runStart uint64
}

func (b *builder) run(records []SourceRecord) {
	for r, rec := range records {
		if r > 0 && r%progressInterval == 0 {
			log.Printf("gtdb: optimizing, %d/%d records processed", r, len(records))
		}
		kmer := rec.Kmer

		if b.buildBloom {
			idx := kmer & b.params.BloomMask()
			b.bloom[idx/64] |= 1 << (idx % 64)
		}

		if b.buildPair {
			b.kmerIndex[r] = b.foldKmer(rec, kmer)
		}

		if b.buildLmer {
			b.foldLmer(uint64(r), kmer)
		}
	}
}

func (b *builder) foldKmer(rec SourceRecord, kmer uint64) KmerEntry {
	offset := rec.Offset()
	if offset < 0 || offset >= K {
		log.Panicf("gtdb: record with snp %d has out-of-range offset %d", rec.SNPCoord(), offset)
	}

	lowBits, lowMask := lowContribution(kmer, offset)
	highBits, highMask := highContribution(kmer, offset)
	if lowBits>>62 != highBits&0x3 {
		log.Panicf("gtdb: internal error, low/high SNP-base mismatch for kmer %#x offset %d", kmer, offset)
	}

	coord := rec.SNPCoord()
	snpID, ok := b.snpIDByCoord[coord]
	if !ok {
		if len(b.snps) > MaxSNPs {
			log.Panicf("gtdb: source db has more than %d distinct SNPs", MaxSNPs+1)
		}
		snpID = uint32(len(b.snps))
		b.snpIDByCoord[coord] = snpID
		b.snps = append(b.snps, SNP{Coord: coord})
		b.covMask = append(b.covMask, struct{ low, high uint64 }{})
	}

	snp := &b.snps[snpID]
	cov := &b.covMask[snpID]

	if overlap := cov.low & lowMask; overlap != 0 {
		if snp.Low&overlap != lowBits&overlap {
			log.Panicf("gtdb: conflicting flanking sequence for snp %d (kmer %#x offset %d, low overlap %#x)",
				coord, kmer, offset, overlap)
		}
	}
	if overlap := cov.high & highMask; overlap != 0 {
		if snp.High&overlap != highBits&overlap {
			log.Panicf("gtdb: conflicting flanking sequence for snp %d (kmer %#x offset %d, high overlap %#x)",
				coord, kmer, offset, overlap)
		}
	}
	snp.Low |= lowBits
	snp.High |= highBits
	cov.low |= lowMask
	cov.high |= highMask

	return MakeKmerEntry(snpID, offset)
}

func (b *builder) foldLmer(r uint64, kmer uint64) {
	lmer := kmer >> uint(b.params.M2())
	if r > 0 && lmer != b.lastLmer {
		b.runStart = r
	}
	length := r - b.runStart + 1
	if b.runStart > MaxLmerStart {
		log.Panicf("gtdb: lmer run start %d exceeds %d-bit field", b.runStart, 48)
	}
	if length > MaxLmerLength {
		log.Panicf("gtdb: lmer %#x run length %d exceeds %d-bit field", lmer, length, 16)
	}
	b.lmer[lmer] = MakeLmerRange(b.runStart, length)
	b.lastLmer = lmer
}

// validateReconstruction re-scans the source records and checks that every
// kmer can be rebuilt byte-for-byte from the SNP it was folded into, per the
// optimizer's post-build validation pass.
func validateReconstruction(records []SourceRecord, snps []SNP, kmerIndex []KmerEntry) {
	for r, rec := range records {
		if r > 0 && r%progressInterval == 0 {
			log.Printf("gtdb: validating, %d/%d records checked", r, len(records))
		}
		entry := kmerIndex[r]
		got := snps[entry.SNPID()].Reconstruct(entry.Offset())
		if got != rec.Kmer {
			log.Panicf("gtdb: validation failed at record %d: reconstructed kmer %#x, want %#x (snp %d offset %d)",
				r, got, rec.Kmer, entry.SNPID(), entry.Offset())
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func elementCount[T any](path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "gtdb: stat %s", path)
	}
	var zero T
	size := int64(unsafe.Sizeof(zero))
	if size == 0 || info.Size()%size != 0 {
		return 0, errors.Errorf("gtdb: %s has size %d, not a multiple of element size %d", path, info.Size(), size)
	}
	return int(info.Size() / size), nil
}
