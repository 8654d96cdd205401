// Package diskarray implements the file-backed, fixed-element-size array
// used to hold gtpro's four derived indices. A Store is either freshly
// allocated in build mode (needsBuild == true, backed by an owned buffer the
// caller fills in and then Saves) or opened read-only against an
// already-built file, either mmapped or fully preloaded.
//
// Once built, a Store never changes again for the life of the process:
// scanners share one read-only view across goroutines with no locking.
package diskarray

import (
	"io"
	"os"
	"unsafe"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Store is a file-backed array of a fixed-layout element type T.
type Store[T any] struct {
	path      string
	count     int
	needBuild bool

	file    *os.File // held open for the mmap's lifetime; nil otherwise
	mmapped []byte   // backing bytes in mmap mode
	owned   []T      // backing storage in build or preload mode
}

func elemSize[T any]() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

// Open opens the array backing path. If the file exists with the expected
// size (count elements of T), it is either mmapped read-only or fully
// preloaded into an owned buffer, depending on preload, and the returned
// Store's NeedsBuild is false. If the file is missing or empty, a
// zero-initialized writable buffer of count elements is allocated and
// NeedsBuild is true. Any other size is a fatal configuration error: it
// almost always means the file was built with different (L2, M3) index
// parameters than the ones requested now.
func Open[T any](path string, count int, preload bool) (*Store[T], error) {
	size := elemSize[T]()
	wantBytes := int64(count) * int64(size)

	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		return &Store[T]{path: path, count: count, needBuild: true, owned: make([]T, count)}, nil
	case err != nil:
		return nil, errors.Wrapf(err, "diskarray: stat %s", path)
	case info.Size() == 0:
		return &Store[T]{path: path, count: count, needBuild: true, owned: make([]T, count)}, nil
	case info.Size() != wantBytes:
		log.Panicf("diskarray: %s has size %d bytes, expected %d (count=%d, elem=%d bytes); stale or mismatched index parameters",
			path, info.Size(), wantBytes, count, size)
	}

	if count == 0 {
		return &Store[T]{path: path, count: 0}, nil
	}

	if preload {
		buf := make([]byte, wantBytes)
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "diskarray: open %s", path)
		}
		defer f.Close()
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, errors.Wrapf(err, "diskarray: read %s", path)
		}
		return &Store[T]{path: path, count: count, owned: unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), count)}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "diskarray: open %s", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(wantBytes), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "diskarray: mmap %s", path)
	}
	if err := unix.Madvise(data, unix.MADV_WILLNEED); err != nil {
		log.Printf("diskarray: madvise %s: %v (continuing without it)", path, err)
	}
	return &Store[T]{path: path, count: count, file: f, mmapped: data}, nil
}

// NewBuilt wraps an already-populated slice as a Store in build mode, for
// indices (like gtdb's snps table) whose final length is not known until
// after a full pass over the source data, so it cannot be preallocated by
// Open.
func NewBuilt[T any](path string, data []T) *Store[T] {
	return &Store[T]{path: path, count: len(data), needBuild: true, owned: data}
}

// NeedsBuild reports whether the caller must populate this Store (via
// MutSlice) and Save it before Slice can be trusted.
func (s *Store[T]) NeedsBuild() bool { return s.needBuild }

// Len returns the element count this Store was opened with.
func (s *Store[T]) Len() int { return s.count }

// Slice returns a read-only view of the array. Valid whether the Store was
// mmapped, preloaded, or just built (and not yet saved).
func (s *Store[T]) Slice() []T {
	if s.count == 0 {
		return nil
	}
	if s.mmapped != nil {
		return unsafe.Slice((*T)(unsafe.Pointer(&s.mmapped[0])), s.count)
	}
	return s.owned
}

// MutSlice returns a writable view of the array. Defined only when the Store
// was opened in build mode (NeedsBuild() was true at Open time).
func (s *Store[T]) MutSlice() []T {
	if !s.needBuild {
		log.Panicf("diskarray: %s: MutSlice called on a store that is not in build mode", s.path)
	}
	return s.owned
}

// Save writes the buffer to path in one open-write-close cycle. Defined only
// in build mode. After Save succeeds, NeedsBuild reports false.
func (s *Store[T]) Save() error {
	if !s.needBuild {
		log.Panicf("diskarray: %s: Save called on a store that is not in build mode", s.path)
	}
	if s.count == 0 {
		f, err := os.Create(s.path)
		if err != nil {
			return errors.Wrapf(err, "diskarray: create %s", s.path)
		}
		s.needBuild = false
		return errors.Wrapf(f.Close(), "diskarray: close %s", s.path)
	}
	size := elemSize[T]()
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&s.owned[0])), int(size)*s.count)

	f, err := os.Create(s.path)
	if err != nil {
		return errors.Wrapf(err, "diskarray: create %s", s.path)
	}
	n, err := f.Write(bytes)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "diskarray: write %s", s.path)
	}
	if n != len(bytes) {
		log.Panicf("diskarray: %s: short write, wrote %d of %d bytes", s.path, n, len(bytes))
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "diskarray: close %s", s.path)
	}
	s.needBuild = false
	return nil
}

// Close releases the mmap, if any. It is a no-op for preloaded or
// still-in-build-mode stores.
func (s *Store[T]) Close() error {
	if s.mmapped == nil {
		return nil
	}
	err := unix.Munmap(s.mmapped)
	s.mmapped = nil
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	return errors.Wrapf(err, "diskarray: munmap %s", s.path)
}
