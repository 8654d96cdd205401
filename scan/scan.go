package scan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/gtpro/seqcode"
)

// K is the fixed window width the scanner slides across every token,
// matching the codec and the database's kmer length.
const K = 31

// File runs the scanner over one input FASTQ (optionally gzip-compressed)
// file, writing its sorted, run-length-encoded hit counts to outPath.
// channel is the input file's position on the command line; File uses it
// only in its summary log line; the caller names outPath from it, so output
// names do not depend on which worker goroutine finishes first.
func File(path string, channel int, resolver *Resolver, outPath string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "scan: open %s", path)
	}
	defer f.Close()

	src, err := wrapGzip(f, path)
	if err != nil {
		return err
	}

	hits, err := scanStream(src, path, resolver)
	if err != nil {
		return err
	}

	if err := writeRLE(outPath, hits); err != nil {
		return err
	}
	log.Printf("scan: %s -> %s (channel %d), %d reads matched %d distinct snps",
		path, outPath, channel, hits.reads, len(hits.coords))
	return nil
}

type hitSet struct {
	coords []uint64
	reads  int
}

// scanStream reads every FASTQ record from src, resolving each token's
// sliding window of kmers and deduplicating matches within a read by dense
// SNP id (a read whose windows hit the same SNP more than once, from one
// token or from several, counts once).
func scanStream(src io.Reader, path string, resolver *Resolver) (hitSet, error) {
	r := newFASTQReader(src)
	var hits hitSet
	seen := make(map[uint32]struct{})
	warnedLongToken := false

	for {
		rec, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return hits, errors.Wrapf(err, "%s", path)
		}
		hits.reads++

		for k := range seen {
			delete(seen, k)
		}
		for _, token := range tokenize(rec.Seq) {
			if len(token) > maxTokenLen {
				if !warnedLongToken {
					log.Printf("scan: %s: token of length %d exceeds %d bases, truncating", path, len(token), maxTokenLen)
					warnedLongToken = true
				}
				token = token[:maxTokenLen]
			}
			if len(token) < minTokenLen {
				continue
			}
			foldWindow(token, resolver, seen)
		}
		for snpID := range seen {
			hits.coords = append(hits.coords, resolver.Coord(snpID))
		}
	}

	sort.Slice(hits.coords, func(i, j int) bool { return hits.coords[i] < hits.coords[j] })
	return hits, nil
}

// foldWindow slides a K-base window across token, resolving each kmer and
// recording newly-seen SNP ids into seen.
func foldWindow(token []byte, resolver *Resolver, seen map[uint32]struct{}) {
	var window uint64
	filled := 0
	for _, b := range token {
		code, _ := seqcode.Lookup(b) // token is pre-validated all-ACGT by tokenize
		window = (window >> 2) | (uint64(code) << 60)
		filled++
		if filled < K {
			continue
		}
		if snpID, ok := resolver.Resolve(window); ok {
			seen[snpID] = struct{}{}
		}
	}
}

// writeRLE writes hits as a sorted run-length-encoded TSV: one row per
// distinct SNP coordinate, "coord\tcount", ascending by coord. Re-running
// the scanner over the same input reproduces this file byte for byte.
func writeRLE(path string, hits hitSet) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "scan: create %s", path)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, chunkSize)

	i := 0
	for i < len(hits.coords) {
		j := i + 1
		for j < len(hits.coords) && hits.coords[j] == hits.coords[i] {
			j++
		}
		if _, err := fmt.Fprintf(w, "%d\t%d\n", hits.coords[i], j-i); err != nil {
			return errors.Wrapf(err, "scan: write %s", path)
		}
		i = j
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "scan: flush %s", path)
	}
	return f.Close()
}
