package gtdb

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IndexPaths holds the four derived index file paths for a source DB opened
// with a given set of parameters.
type IndexPaths struct {
	SNPs      string
	KmerIndex string
	MmerBloom string
	LmerIndex string
}

// DeriveIndexPaths computes the four index file paths that sit beside dbPath,
// named from dbPath's basename with a trailing ".bin" stripped and any other
// dots folded to underscores, so a DB path of the form "chunk.v3.bin" yields
// index files prefixed "chunk_v3_optimized_db_...".
func DeriveIndexPaths(dbPath string, params Params) IndexPaths {
	dir := filepath.Dir(dbPath)
	base := filepath.Base(dbPath)
	base = strings.TrimSuffix(base, ".bin")
	base = strings.ReplaceAll(base, ".", "_")
	prefix := filepath.Join(dir, base+"_optimized_db")

	return IndexPaths{
		SNPs:      prefix + "_snps.bin",
		KmerIndex: fmt.Sprintf("%s_kmer_index_%d.bin", prefix, params.M2()),
		MmerBloom: fmt.Sprintf("%s_mmer_bloom_%d.bin", prefix, params.M3),
		LmerIndex: fmt.Sprintf("%s_lmer_index_%d.bin", prefix, params.L2),
	}
}
