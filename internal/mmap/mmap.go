// Package mmap provides a writable, growable memory mapping used by
// store.DataStore to back vectors.bin and ids.bin. It is adapted from the
// teacher's read-only internal/mmap package: the mapping here is
// PROT_READ|PROT_WRITE/MAP_SHARED so writes made through Bytes() are
// visible to other mappings of the same file and are persisted on Sync,
// and it adds Grow, the truncate-then-remap sequence spec.md §9 requires
// for dynamic capacity growth.
package mmap

import (
	"errors"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when operating on a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for a negative or unrepresentable size.
	ErrInvalidSize = errors.New("mmap: invalid size")
)

// Mapping is a writable memory mapping of a single file.
//
// On systems where mapping a zero-length file is disallowed, callers must
// ensure the file has been extended to at least one byte (store.DataStore
// creates new files at the configured initial capacity) before Open.
type Mapping struct {
	f      *os.File
	data   []byte
	size   int
	closed atomic.Bool
}

// Open maps the file at path read-write. The file must already exist; an
// empty file yields a mapping with no data until Grow extends it. Use
// Create to make a fresh backing file.
func Open(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size < 0 {
		f.Close()
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{f: f, data: nil, size: 0}, nil
	}

	data, err := osMap(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Mapping{f: f, data: data, size: int(size)}, nil
}

// Close unmaps the memory and closes the underlying file. Idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	var err error
	if m.data != nil {
		err = osUnmap(m.data)
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Bytes returns the mapped region. The slice is writable and aliases the
// underlying file; it is valid only until Close or Grow (which remaps
// under a new slice).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the current mapping size in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Sync flushes dirty mapped pages and the file metadata to durable
// storage.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data != nil {
		if err := osFlush(m.data); err != nil {
			return err
		}
	}
	return m.f.Sync()
}

// Grow extends the backing file to newSize bytes and re-establishes the
// mapping at the new size. Existing bytes at their current offsets are
// preserved (ftruncate never moves existing data). newSize must be >= the
// current size.
//
// Grow unmaps the previous region, ftruncates, and remaps; per spec.md §5
// and §9, callers must hold DataStore's exclusive lock across Grow so
// readers never observe a torn mapping.
func (m *Mapping) Grow(newSize int) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if newSize < m.size {
		return ErrInvalidSize
	}
	if newSize == m.size {
		return nil
	}

	if m.data != nil {
		if err := osUnmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}

	if err := m.f.Truncate(int64(newSize)); err != nil {
		return err
	}

	data, err := osMap(m.f, newSize)
	if err != nil {
		return err
	}

	m.data = data
	m.size = newSize
	return nil
}

// Create creates a new file of the given initial size (zero-filled) and
// opens a writable mapping over it. Mapping a zero-length file is
// disallowed on some platforms, so size must be > 0.
func Create(path string, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}

	data, err := osMap(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Mapping{f: f, data: data, size: size}, nil
}
