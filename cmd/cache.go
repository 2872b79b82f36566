package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/glefebvre/vodharvest/internal/cache"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the request cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cache entries",
	Long: `Scan the cache directory and remove entries older than the cache TTL,
plus temp files left behind by interrupted writes.

With a TTL of zero entries never expire and only temp files are removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "=== Cache Prune ===")
		if dryRun {
			fmt.Fprintln(out, "Mode: DRY RUN (no files will be deleted)")
		}
		fmt.Fprintf(out, "Cache directory: %s\n", cfg.Cache.Dir)
		fmt.Fprintf(out, "TTL: %s\n\n", time.Duration(cfg.Cache.TTLSeconds)*time.Second)

		store := cache.New(cfg.Cache.Dir, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		stats, err := store.Prune(cache.PruneOptions{DryRun: dryRun})
		if err != nil {
			return fmt.Errorf("cache prune failed: %w", err)
		}

		fmt.Fprintf(out, "Expired entries: %d\n", stats.Expired)
		fmt.Fprintf(out, "Orphaned temp files: %d\n", stats.OrphanedTemp)
		fmt.Fprintf(out, "Kept: %d\n", stats.Kept)
		fmt.Fprintf(out, "Freed: %s\n", humanize.IBytes(uint64(stats.BytesFreed)))
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().Bool("dry-run", false, "list what would be removed without deleting")
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
