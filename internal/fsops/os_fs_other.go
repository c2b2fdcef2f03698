//go:build !linux

package fsops

import (
	"io/fs"
	"os"
)

const openFlags = 0

func syncData(f *os.File) error {
	return f.Sync()
}

func renameNoReplace(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	}
	return os.Rename(oldpath, newpath)
}
