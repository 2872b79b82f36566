package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	tempExt              = ".tmp"
	defaultTempRetention = time.Hour
)

// PruneOptions holds configuration for cache pruning
type PruneOptions struct {
	// TempRetention is how long leftover temp files are kept (default 1h)
	TempRetention time.Duration
	DryRun        bool
}

// PruneStats reports what a prune pass did
type PruneStats struct {
	Expired      int
	OrphanedTemp int
	Kept         int
	BytesFreed   int64
}

// Prune removes expired entries and temp files left behind by interrupted writes.
// With a ttl of zero entries never expire, so only temp files are considered.
func (s *Store) Prune(opts PruneOptions) (PruneStats, error) {
	var stats PruneStats

	if opts.TempRetention <= 0 {
		opts.TempRetention = defaultTempRetention
	}

	entries, err := s.readDir()
	if err != nil {
		if isNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := s.now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		path := filepath.Join(s.dir, name)

		var remove bool
		switch {
		case strings.HasSuffix(name, tempExt):
			remove = now.Sub(entry.ModTime()) > opts.TempRetention
			if remove {
				stats.OrphanedTemp++
			}
		case strings.HasSuffix(name, entryExt):
			remove = s.expired(entry.ModTime())
			if remove {
				stats.Expired++
			}
		default:
			continue
		}

		if !remove {
			stats.Kept++
			continue
		}

		fields := map[string]interface{}{
			"path": path,
			"age":  now.Sub(entry.ModTime()).Round(time.Second).String(),
		}
		if opts.DryRun {
			s.logger.WithFields(fields).Info("[DRY RUN] would remove cache file")
			stats.BytesFreed += entry.Size()
			continue
		}

		if err := s.fs.Remove(path); err != nil {
			s.logger.WithFields(fields).Error("failed to remove cache file", err)
			continue
		}
		stats.BytesFreed += entry.Size()
	}

	s.logger.WithFields(map[string]interface{}{
		"expired":       stats.Expired,
		"orphaned_temp": stats.OrphanedTemp,
		"kept":          stats.Kept,
		"dry_run":       opts.DryRun,
	}).Info("cache prune complete")

	return stats, nil
}

func (s *Store) readDir() ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, s.dir)
}
