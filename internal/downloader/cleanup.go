package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glefebvre/vodharvest/internal/logger"
)

const defaultRetentionHours = 24

// CleanupOptions holds configuration for partial download cleanup
type CleanupOptions struct {
	MediaDir       string
	RetentionHours int
	DryRun         bool
}

// CleanupResult counts what a cleanup pass did
type CleanupResult struct {
	Removed    int
	Skipped    int
	BytesFreed int64
}

// CleanupPartials removes partial remux outputs older than the retention
// period, left behind when a run was killed mid-download.
func CleanupPartials(opts CleanupOptions) (CleanupResult, error) {
	log := logger.AppLogger()
	var result CleanupResult

	if opts.RetentionHours == 0 {
		opts.RetentionHours = defaultRetentionHours
	}
	cutoffTime := time.Now().Add(-time.Duration(opts.RetentionHours) * time.Hour)

	entries, err := os.ReadDir(opts.MediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("failed to read media directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}

		path := filepath.Join(opts.MediaDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.Warn(fmt.Sprintf("Failed to stat %s: %v", path, err))
			continue
		}

		if info.ModTime().After(cutoffTime) {
			result.Skipped++
			continue
		}

		age := time.Since(info.ModTime()).Round(time.Minute)
		if opts.DryRun {
			log.Info(fmt.Sprintf("[DRY RUN] Would remove: %s (age: %s)", path, age))
			result.Removed++
			result.BytesFreed += info.Size()
			continue
		}

		if err := os.Remove(path); err != nil {
			log.Error(fmt.Sprintf("Failed to remove %s", path), err)
			continue
		}
		log.Info(fmt.Sprintf("Removed partial download: %s (age: %s)", path, age))
		result.Removed++
		result.BytesFreed += info.Size()
	}

	log.Info(fmt.Sprintf("Partial cleanup complete: %d removed, %d skipped (too recent), %s freed",
		result.Removed, result.Skipped, FormatBytes(uint64(result.BytesFreed))))
	return result, nil
}
