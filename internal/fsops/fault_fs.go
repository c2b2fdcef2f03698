package fsops

import (
	"fmt"
	"os"
	"sync"
)

// Operation names used as FaultFS keys and call records
const (
	OpOpen     = "open"
	OpLstat    = "lstat"
	OpReadDir  = "readdir"
	OpRename   = "rename"
	OpRemove   = "rm"
	OpWrite    = "write"
	OpSync     = "sync"
	OpTruncate = "truncate"
)

// FaultFS implements FS for testing
// Delegates to Base, records every call and injects configured errors
type FaultFS struct {
	Base FS

	mu     sync.Mutex
	faults map[string]error
	calls  []string
	writes map[string][]int
}

// NewFaultFS wraps base; a nil base means the real filesystem
func NewFaultFS(base FS) *FaultFS {
	if base == nil {
		base = OSFS{}
	}
	return &FaultFS{
		Base:   base,
		faults: make(map[string]error),
		writes: make(map[string][]int),
	}
}

// Fail makes every op on path return err
func (f *FaultFS) Fail(op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op+":"+path] = err
}

// Calls returns a copy of the recorded call log
func (f *FaultFS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// WriteSizes returns the byte count of every write made through handles opened on path
func (f *FaultFS) WriteSizes(path string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.writes[path]...)
}

func (f *FaultFS) record(op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+path)
	return f.faults[op+":"+path]
}

func (f *FaultFS) OpenFile(path string) (File, error) {
	if err := f.record(OpOpen, path); err != nil {
		return nil, &os.PathError{Op: OpOpen, Path: path, Err: err}
	}
	file, err := f.Base.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &faultFile{File: file, fs: f, path: path}, nil
}

func (f *FaultFS) Lstat(path string) (os.FileInfo, error) {
	if err := f.record(OpLstat, path); err != nil {
		return nil, &os.PathError{Op: OpLstat, Path: path, Err: err}
	}
	return f.Base.Lstat(path)
}

func (f *FaultFS) ReadDir(path string) ([]os.DirEntry, error) {
	if err := f.record(OpReadDir, path); err != nil {
		return nil, &os.PathError{Op: OpReadDir, Path: path, Err: err}
	}
	return f.Base.ReadDir(path)
}

func (f *FaultFS) Rename(oldpath, newpath string) error {
	if err := f.record(OpRename, oldpath); err != nil {
		return &os.LinkError{Op: OpRename, Old: oldpath, New: newpath, Err: err}
	}
	return f.Base.Rename(oldpath, newpath)
}

func (f *FaultFS) Remove(path string) error {
	if err := f.record(OpRemove, path); err != nil {
		return &os.PathError{Op: OpRemove, Path: path, Err: err}
	}
	return f.Base.Remove(path)
}

type faultFile struct {
	File
	fs   *FaultFS
	path string
}

func (ff *faultFile) Write(p []byte) (int, error) {
	ff.fs.mu.Lock()
	ff.fs.writes[ff.path] = append(ff.fs.writes[ff.path], len(p))
	err := ff.fs.faults[OpWrite+":"+ff.path]
	ff.fs.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", ff.path, err)
	}
	return ff.File.Write(p)
}

func (ff *faultFile) Sync() error {
	if err := ff.fs.record(OpSync, ff.path); err != nil {
		return &os.PathError{Op: OpSync, Path: ff.path, Err: err}
	}
	return ff.File.Sync()
}

func (ff *faultFile) Truncate(size int64) error {
	if err := ff.fs.record(OpTruncate, ff.path); err != nil {
		return &os.PathError{Op: OpTruncate, Path: ff.path, Err: err}
	}
	return ff.File.Truncate(size)
}
