package disk

import (
	"io/fs"
	"path/filepath"
)

// PathStats summarises what lies under a path
type PathStats struct {
	Files   int64 // regular files
	Dirs    int64 // directories, including the root when it is one
	Special int64 // symlinks, devices, sockets and FIFOs
	Bytes   int64 // total length of regular files
}

// Measure walks path without following symlinks and counts its contents.
// Unreadable entries are skipped; the walk is advisory only.
func Measure(path string) (*PathStats, error) {
	stats := &PathStats{}

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			return nil
		}

		switch {
		case d.IsDir():
			stats.Dirs++
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return nil
			}
			stats.Files++
			stats.Bytes += info.Size()
		default:
			stats.Special++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
