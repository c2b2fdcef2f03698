package fsops

import "os"

// OSFS implements FS using real os package calls
type OSFS struct{}

func (OSFS) OpenFile(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|openFlags, 0)
	if err != nil {
		return nil, err
	}
	return &osFile{File: f}, nil
}

func (OSFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (OSFS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func (OSFS) Rename(oldpath, newpath string) error {
	return renameNoReplace(oldpath, newpath)
}

func (OSFS) Remove(path string) error {
	return os.Remove(path)
}

// osFile narrows Sync to a data-only flush where the platform has one
type osFile struct {
	*os.File
}

func (f *osFile) Sync() error {
	return syncData(f.File)
}
