// Package fsx abstracts the filesystem operations used for small state
// files (DataStore's meta.json sidecar, the agent's state file) so that
// StorageFatal failure paths (spec.md §7) can be exercised in tests
// without touching a real disk. It is a narrowed, renamed adaptation of
// the teacher's internal/fs package (renamed to avoid colliding with the
// standard library's io/fs import name).
package fsx

import (
	"io"
	"os"
)

// File is an open file as DataStore needs it.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	Sync() error
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
}

// FileSystem abstracts filesystem access for testability.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
}

// LocalFS implements FileSystem on top of the os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) Remove(name string) error             { return os.Remove(name) }
func (LocalFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (LocalFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Default is the production filesystem.
var Default FileSystem = LocalFS{}
