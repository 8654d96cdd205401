package scan

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/gtpro/gtdb"
	"github.com/grailbio/gtpro/seqcode"
)

func TestTokenizeSplitsOnWildcards(t *testing.T) {
	tokens := tokenize([]byte("ACGTNNNACGTACGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGT"))
	require.Len(t, tokens, 2)
	assert.Equal(t, "ACGT", string(tokens[0]))
	assert.Equal(t, "ACGTACGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGT", string(tokens[1]))
}

func TestTokenizeAllWildcard(t *testing.T) {
	assert.Nil(t, tokenize([]byte("NNNN")))
}

func makeBases(n int) []byte {
	const alphabet = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[i%4]
	}
	return b
}

func writeSourceDB(t *testing.T, path string, records []gtdb.SourceRecord) {
	t.Helper()
	buf := make([]byte, 16*len(records))
	for i, r := range records {
		binary.LittleEndian.PutUint64(buf[16*i:], r.SnpWithOffset)
		binary.LittleEndian.PutUint64(buf[16*i+8:], r.Kmer)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func buildTestResolver(t *testing.T, records []gtdb.SourceRecord) *Resolver {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "toy.bin")
	writeSourceDB(t, dbPath, records)
	params := gtdb.Params{L2: 4, M3: 8}
	idx, err := gtdb.Open(dbPath, params, false)
	require.NoError(t, err)
	t.Cleanup(idx.Close)
	return NewResolver(idx, params)
}

func writeFASTQ(t *testing.T, path string, reads ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for i, seq := range reads {
		fmt.Fprintf(f, "@read%d\n%s\n+\n%s\n", i, seq, string(makeBases(len(seq))))
	}
}

func TestScanSingleFileEndToEnd(t *testing.T) {
	bases := makeBases(K)
	kmer := seqcode.Encode(bases, K)
	records := []gtdb.SourceRecord{{SnpWithOffset: 100<<8 | 0, Kmer: kmer}}
	resolver := buildTestResolver(t, records)

	dir := t.TempDir()
	fqPath := filepath.Join(dir, "reads.fastq")
	writeFASTQ(t, fqPath, string(bases))
	outPath := filepath.Join(dir, "out.tsv")

	require.NoError(t, File(fqPath, 0, resolver, outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)

	assert.Equal(t, "100\t1\n", string(got))
}

func TestScanDedupsWithinRead(t *testing.T) {
	bases := makeBases(K)
	kmer := seqcode.Encode(bases, K)
	records := []gtdb.SourceRecord{{SnpWithOffset: 100<<8 | 0, Kmer: kmer}}
	resolver := buildTestResolver(t, records)

	// A read built from two back-to-back copies of the periodic motif
	// contains the target 31-mer at position 0 and again at position 31; a
	// per-read dedup keyed on the SNP id must still report exactly one hit.
	repeated := append(append([]byte{}, bases...), bases...)

	dir := t.TempDir()
	fqPath := filepath.Join(dir, "reads.fastq")
	writeFASTQ(t, fqPath, string(repeated))
	outPath := filepath.Join(dir, "out.tsv")

	require.NoError(t, File(fqPath, 0, resolver, outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)

	assert.Equal(t, "100\t1\n", string(got))
}

// TestScanSortsByCoordNotAllocationOrder builds a source DB where the SNP
// with the larger coordinate is allocated the smaller dense id (it appears
// first in the source DB), then checks that scan output is still ascending
// by coordinate rather than by id-allocation order.
func TestScanSortsByCoordNotAllocationOrder(t *testing.T) {
	basesHigh := []byte(strings.Repeat("A", K))
	basesLow := []byte(strings.Repeat("C", K))
	kmerHigh := seqcode.Encode(basesHigh, K)
	kmerLow := seqcode.Encode(basesLow, K)

	records := []gtdb.SourceRecord{
		{SnpWithOffset: 2000<<8 | 0, Kmer: kmerHigh}, // allocated snp id 0
		{SnpWithOffset: 1000<<8 | 0, Kmer: kmerLow},  // allocated snp id 1
	}
	resolver := buildTestResolver(t, records)

	dir := t.TempDir()
	fqPath := filepath.Join(dir, "reads.fastq")
	writeFASTQ(t, fqPath, string(basesHigh)+string(basesLow))
	outPath := filepath.Join(dir, "out.tsv")

	require.NoError(t, File(fqPath, 0, resolver, outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "1000\t1\n2000\t1\n", string(got))
}

func TestScanTwoFilesDeterministicChannels(t *testing.T) {
	bases := makeBases(K)
	kmer := seqcode.Encode(bases, K)
	records := []gtdb.SourceRecord{{SnpWithOffset: 100<<8 | 0, Kmer: kmer}}
	resolver := buildTestResolver(t, records)

	dir := t.TempDir()
	fq0 := filepath.Join(dir, "a.fastq")
	fq1 := filepath.Join(dir, "b.fastq")
	writeFASTQ(t, fq0, string(bases))
	writeFASTQ(t, fq1, string(bases), string(bases))

	out0 := filepath.Join(dir, "out.0.tsv")
	out1 := filepath.Join(dir, "out.1.tsv")
	require.NoError(t, File(fq0, 0, resolver, out0))
	require.NoError(t, File(fq1, 1, resolver, out1))

	got0, err := os.ReadFile(out0)
	require.NoError(t, err)
	got1, err := os.ReadFile(out1)
	require.NoError(t, err)

	assert.Equal(t, "100\t1\n", string(got0))
	assert.Equal(t, "100\t2\n", string(got1))
}

func TestScanTruncatedRecordIsFatalError(t *testing.T) {
	resolver := buildTestResolver(t, nil)
	dir := t.TempDir()
	fqPath := filepath.Join(dir, "bad.fastq")
	require.NoError(t, os.WriteFile(fqPath, []byte("@read0\nACGT\n+\n"), 0o644))

	err := File(fqPath, 0, resolver, filepath.Join(dir, "out.tsv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), fqPath)
}
