package main

import (
	"fmt"

	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/downloader"
	"github.com/spf13/cobra"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage downloaded media",
}

var mediaCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up partial MP4 files",
	Long: `Scan the media directory and remove partial remux outputs (*.part.mp4)
that are older than the retention period (default: 24 hours).

Partial files are left behind when a harvest is killed while ffmpeg is
still writing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		retentionHours, _ := cmd.Flags().GetInt("retention-hours")
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "=== Partial Download Cleanup ===")
		if dryRun {
			fmt.Fprintln(out, "Mode: DRY RUN (no files will be deleted)")
		}
		fmt.Fprintf(out, "Media directory: %s\n", cfg.Downloads.MediaDir)
		fmt.Fprintf(out, "Retention: %d hours\n\n", retentionHours)

		result, err := downloader.CleanupPartials(downloader.CleanupOptions{
			MediaDir:       cfg.Downloads.MediaDir,
			RetentionHours: retentionHours,
			DryRun:         dryRun,
		})
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}

		fmt.Fprintf(out, "Removed: %d, kept: %d, freed: %s\n",
			result.Removed, result.Skipped, downloader.FormatBytes(uint64(result.BytesFreed)))
		return nil
	},
}

func init() {
	mediaCleanupCmd.Flags().Bool("dry-run", false, "list what would be removed without deleting")
	mediaCleanupCmd.Flags().Int("retention-hours", 24, "remove partial files older than this")
	mediaCmd.AddCommand(mediaCleanupCmd)
	rootCmd.AddCommand(mediaCmd)
}
