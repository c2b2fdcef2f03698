//go:build !linux

package disk

import (
	"fmt"
	"os"
)

// Inspect only confirms path exists on platforms without a statfs type field
func Inspect(path string) (FSInfo, error) {
	if _, err := os.Lstat(path); err != nil {
		return FSInfo{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return FSInfo{Type: "unknown"}, nil
}
