package downloader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// DiskSpace represents available disk space information
type DiskSpace struct {
	Available uint64  // Available bytes for unprivileged users
	Free      uint64  // Free bytes on filesystem
	Total     uint64  // Total bytes on filesystem
	UsedPct   float64 // Percentage of space used
}

// GetDiskSpace returns disk space information for the given path.
// Missing trailing directories are resolved to their nearest existing parent.
func GetDiskSpace(path string) (*DiskSpace, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	checkPath := absPath
	for {
		if _, err := os.Stat(checkPath); err == nil {
			break
		}
		parent := filepath.Dir(checkPath)
		if parent == checkPath {
			return nil, fmt.Errorf("no existing directory found in path")
		}
		checkPath = parent
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(checkPath, &stat); err != nil {
		return nil, fmt.Errorf("failed to get filesystem stats: %w", err)
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	available := stat.Bavail * uint64(stat.Bsize)

	var usedPct float64
	if total > 0 {
		usedPct = float64(total-free) / float64(total) * 100
	}

	return &DiskSpace{
		Available: available,
		Free:      free,
		Total:     total,
		UsedPct:   usedPct,
	}, nil
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// CheckFreeSpace fails when the filesystem holding dir has less than minFreeBytes available
func CheckFreeSpace(dir string, minFreeBytes uint64) error {
	if minFreeBytes == 0 {
		return nil
	}

	space, err := GetDiskSpace(dir)
	if err != nil {
		return fmt.Errorf("failed to check disk space: %w", err)
	}

	if space.Available < minFreeBytes {
		return fmt.Errorf(
			"insufficient disk space in %s: available=%s, required=%s",
			dir,
			FormatBytes(space.Available),
			FormatBytes(minFreeBytes),
		)
	}
	return nil
}
