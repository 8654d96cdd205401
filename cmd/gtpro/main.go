// Command gtpro genotypes FASTQ reads against a SNP-keyed kmer database: it
// builds (or loads) the four derived indices for a database once, then
// scans each input FASTQ file for exact 31-base matches, emitting one
// sorted, run-length-encoded TSV per input file.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/grailbio/gtpro/gtdb"
	"github.com/grailbio/gtpro/scan"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: gtpro -d <db_path> [flags] fastq [fastq ...]

Scans one or more FASTQ files (optionally gzip-compressed) for exact 31-base
matches against the database at -d, building its derived indices first if
they are not already present alongside it.

flags:
`)
	flag.PrintDefaults()
}

type cliFlags struct {
	dbPath   string
	l2       int
	m3       int
	nThreads int
	outDir   string
	preload  bool
}

func main() {
	flag.Usage = usage

	var f cliFlags
	flag.StringVar(&f.dbPath, "d", "", "path to the canonical (snp_with_offset, kmer) database")
	flag.IntVar(&f.l2, "l", 29, "lmer prefix width in bits")
	flag.IntVar(&f.m3, "m", 36, "bloom filter index width in bits")
	flag.IntVar(&f.nThreads, "t", 1, "number of FASTQ files to scan concurrently")
	flag.StringVar(&f.outDir, "o", "./out", "output directory and filename prefix")
	flag.BoolVar(&f.preload, "p", false, "preload index files into memory instead of mmapping them")
	flag.Parse()

	if f.dbPath == "" {
		log.Fatal("gtpro: -d is required")
	}
	if flag.NArg() == 0 {
		log.Fatal("gtpro: at least one input FASTQ file is required")
	}
	if f.nThreads < 1 {
		log.Fatal("gtpro: -t must be at least 1")
	}
	if f.l2 < 1 || f.l2 > 32 {
		usage()
		log.Fatal("gtpro: -l must be between 1 and 32")
	}
	if f.m3 < 1 || f.m3 > 63 {
		usage()
		log.Fatal("gtpro: -m must be between 1 and 63")
	}

	if err := run(f, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(f cliFlags, inputs []string) error {
	params := gtdb.Params{L2: f.l2, M3: f.m3}

	log.Printf("gtpro: loading database %s (L2=%d M3=%d)", f.dbPath, params.L2, params.M3)
	idx, err := gtdb.Open(f.dbPath, params, f.preload)
	if err != nil {
		return err
	}
	defer idx.Close()
	resolver := scan.NewResolver(idx, params)

	if err := os.MkdirAll(filepath.Dir(f.outDir), 0o755); err != nil {
		return err
	}

	return scanAll(inputs, f.nThreads, resolver, f.outDir)
}

// scanAll dispatches the input files across nThreads worker goroutines in
// bounded rounds: round r launches goroutines for inputs
// [r*nThreads, (r+1)*nThreads) and joins them before round r+1 starts, so no
// more than nThreads files are open at once regardless of how many were
// given.
func scanAll(inputs []string, nThreads int, resolver *scan.Resolver, outPrefix string) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	recordErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for start := 0; start < len(inputs); start += nThreads {
		end := start + nThreads
		if end > len(inputs) {
			end = len(inputs)
		}
		var wg sync.WaitGroup
		for channel := start; channel < end; channel++ {
			wg.Add(1)
			go func(channel int) {
				defer wg.Done()
				path := inputs[channel]
				outPath := fmt.Sprintf("%s.%d.tsv", outPrefix, channel)
				if err := scan.File(path, channel, resolver, outPath); err != nil {
					recordErr(err)
				}
			}(channel)
		}
		wg.Wait()
	}
	return firstErr
}
