package disk

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// FSInfo describes the filesystem holding a path
type FSInfo struct {
	Type       string // short name such as "ext4" or "btrfs", "unknown" when unrecognised
	Magic      uint32
	FreeBytes  int64
	TotalBytes int64
}

// Filesystems on which an in-place overwrite does not reach the blocks that
// held the old data: copy-on-write, memory backed, layered or remote
var unreliable = map[string]string{
	"btrfs":   "copy-on-write: overwrites go to new extents and snapshots keep old ones",
	"zfs":     "copy-on-write: overwrites go to new blocks and snapshots keep old ones",
	"tmpfs":   "memory backed: pages may already have been swapped out",
	"ramfs":   "memory backed: pages may already have been swapped out",
	"overlay": "layered: lower layers keep their copy of the file",
	"nfs":     "remote: the server decides where writes land",
	"cifs":    "remote: the server decides where writes land",
	"smb2":    "remote: the server decides where writes land",
	"fuse":    "userspace: the backing store is unknown",
}

// Reliable reports whether overwriting in place is expected to destroy the
// previous contents, and if not, why
func (i FSInfo) Reliable() (bool, string) {
	if reason, ok := unreliable[i.Type]; ok {
		return false, reason
	}
	return true, ""
}

// IsNFSStale checks if a path is on a stale NFS mount by attempting a quick stat
// with timeout. Returns true if the operation times out or fails with NFS-specific errors.
func IsNFSStale(path string, timeout time.Duration) bool {
	done := make(chan error, 1)

	go func() {
		_, err := os.Lstat(path)
		done <- err
	}()

	select {
	case err := <-done:
		// Common NFS errors: EIO, ESTALE, ENXIO
		return err != nil && (os.IsTimeout(err) ||
			errors.Is(err, syscall.EIO) ||
			errors.Is(err, syscall.ESTALE) ||
			errors.Is(err, syscall.ENXIO))
	case <-time.After(timeout):
		// Operation timed out - likely stale NFS
		return true
	}
}
