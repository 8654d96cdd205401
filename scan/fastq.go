package scan

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/grailbio/gtpro/seqcode"
)

// chunkSize sizes the buffered reader wrapping each input file, matching the
// large sequential reads a scan over gigabyte-scale FASTQ files wants.
const chunkSize = 1 << 20

// minTokenLen and maxTokenLen bound how much of a wildcard-free run of bases
// the scanner will slide a window across. Below minTokenLen there isn't a
// single full kmer; past maxTokenLen the remainder of the token is dropped
// rather than processed, since real reads never run that long and a
// malformed file shouldn't turn into an unbounded token.
const (
	minTokenLen = 31
	maxTokenLen = 500
)

// wrapGzip transparently gzip-decompresses r when path ends in .gz.
func wrapGzip(r io.Reader, path string) (io.Reader, error) {
	if !strings.HasSuffix(path, ".gz") {
		return r, nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "scan: open gzip stream %s", path)
	}
	return gz, nil
}

// fastqReader frames a FASTQ stream into its 4-line records, tracking byte
// offset so truncation can be reported precisely.
type fastqReader struct {
	r      *bufio.Reader
	offset int64
}

func newFASTQReader(r io.Reader) *fastqReader {
	return &fastqReader{r: bufio.NewReaderSize(r, chunkSize)}
}

// readLine reads one line, stripping the trailing newline (and a preceding
// \r, for CRLF input). Returns io.EOF only when no bytes at all were read.
func (f *fastqReader) readLine() ([]byte, error) {
	line, err := f.r.ReadBytes('\n')
	f.offset += int64(len(line))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(line) == 0 {
		return nil, io.EOF
	}
	line = bytes.TrimRight(line, "\r\n")
	return line, nil
}

// record is one FASTQ entry; only Seq is used downstream.
type record struct {
	Header []byte
	Seq    []byte
	Plus   []byte
	Qual   []byte
}

// next reads one 4-line FASTQ record. It returns io.EOF cleanly only when
// the stream ends exactly on a record boundary; any other truncation is a
// wrapped error.
func (f *fastqReader) next() (record, error) {
	var rec record
	header, err := f.readLine()
	if err == io.EOF {
		return rec, io.EOF
	}
	if err != nil {
		return rec, errors.Wrapf(err, "scan: reading header at offset %d", f.offset)
	}
	if len(header) == 0 || header[0] != '@' {
		return rec, errors.Errorf("scan: malformed FASTQ header at offset %d: %q", f.offset, header)
	}
	rec.Header = header

	rec.Seq, err = f.readLine()
	if err != nil {
		return rec, errors.Wrapf(err, "scan: truncated FASTQ record (missing sequence line) at offset %d", f.offset)
	}

	rec.Plus, err = f.readLine()
	if err != nil {
		return rec, errors.Wrapf(err, "scan: truncated FASTQ record (missing '+' line) at offset %d", f.offset)
	}
	if len(rec.Plus) == 0 || rec.Plus[0] != '+' {
		return rec, errors.Errorf("scan: malformed FASTQ '+' line at offset %d: %q", f.offset, rec.Plus)
	}

	rec.Qual, err = f.readLine()
	if err != nil {
		return rec, errors.Wrapf(err, "scan: truncated FASTQ record (missing quality line) at offset %d", f.offset)
	}

	return rec, nil
}

// tokenize splits seq into maximal runs of valid ACGT bases, skipping over
// wildcard (N/n, or any other non-ACGT byte) runs. Each returned slice
// aliases seq's storage.
func tokenize(seq []byte) [][]byte {
	var tokens [][]byte
	start := -1
	for i, b := range seq {
		if _, ok := seqcode.Lookup(b); ok {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, seq[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, seq[start:])
	}
	return tokens
}
