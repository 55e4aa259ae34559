package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Fault describes an injected failure for one file name pattern (exact
// match on the base name).
type Fault struct {
	// FailOnSync makes Sync fail after opening successfully.
	FailOnSync bool
	// FailOnTruncate makes Truncate fail.
	FailOnTruncate bool
	// FailOnWrite makes every WriteAt fail.
	FailOnWrite bool
	// Err is the error returned; defaults to a generic injected error.
	Err error
}

// FaultyFS wraps a FileSystem and injects failures per file name, for
// exercising DataStore's StorageFatal paths (spec.md §4.2, §7) without a
// real faulty disk.
type FaultyFS struct {
	fs    FileSystem
	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS wraps fs (or Default if nil) with fault injection.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{fs: fs, rules: make(map[string]Fault)}
}

// SetFault registers a fault for the given file base name.
func (f *FaultyFS) SetFault(name string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[name] = fault
}

func (f *FaultyFS) faultFor(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.rules[filepath.Base(name)]
	return fl, ok
}

func injectedErr(fl Fault) error {
	if fl.Err != nil {
		return fl.Err
	}
	return fmt.Errorf("fsx: injected fault")
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if fl, ok := f.faultFor(name); ok {
		return &faultyFile{File: file, fault: fl}, nil
	}
	return file, nil
}

func (f *FaultyFS) Remove(name string) error             { return f.fs.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.fs.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.fs.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.fs.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fault Fault
}

func (f *faultyFile) Sync() error {
	if f.fault.FailOnSync {
		return injectedErr(f.fault)
	}
	return f.File.Sync()
}

func (f *faultyFile) Truncate(size int64) error {
	if f.fault.FailOnTruncate {
		return injectedErr(f.fault)
	}
	return f.File.Truncate(size)
}

func (f *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if f.fault.FailOnWrite {
		return 0, injectedErr(f.fault)
	}
	return f.File.WriteAt(p, off)
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.fault.FailOnWrite {
		return 0, injectedErr(f.fault)
	}
	return f.File.Write(p)
}
