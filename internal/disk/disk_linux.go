//go:build linux

package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// f_type values from statfs(2)
var magicNames = map[uint32]string{
	0xEF53:     "ext4", // shared by ext2 and ext3
	0x58465342: "xfs",
	0xF2F52010: "f2fs",
	0x9123683E: "btrfs",
	0x2FC12FC1: "zfs",
	0x01021994: "tmpfs",
	0x858458F6: "ramfs",
	0x794C7630: "overlay",
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0xFE534D42: "smb2",
	0x65735546: "fuse",
	0x4D44:     "vfat",
	0x5346544E: "ntfs",
	0x2011BAB0: "exfat",
}

// Inspect identifies the filesystem holding path
func Inspect(path string) (FSInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return FSInfo{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	magic := uint32(st.Type)
	info := FSInfo{
		Type:       "unknown",
		Magic:      magic,
		FreeBytes:  int64(st.Bavail) * int64(st.Bsize),
		TotalBytes: int64(st.Blocks) * int64(st.Bsize),
	}
	if name, ok := magicNames[magic]; ok {
		info.Type = name
	}
	return info, nil
}
