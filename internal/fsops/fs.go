package fsops

import (
	"io"
	"os"
)

// File is an open, writable handle on a file's content
type File interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
	// Sync commits written data to stable storage
	Sync() error
	Close() error
}

// FS abstracts the filesystem operations used by the shredder
// Enables fault injection in tests to prove partial-failure isolation
type FS interface {
	// OpenFile opens an existing file for writing. It never creates the file
	// and, where the platform allows, never follows a final symlink.
	OpenFile(path string) (File, error)
	Lstat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	// Rename moves oldpath to newpath and fails if newpath already exists
	Rename(oldpath, newpath string) error
	// Remove deletes a file or an empty directory
	Remove(path string) error
}
