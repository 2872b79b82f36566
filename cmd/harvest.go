package main

import (
	"context"
	"fmt"
	"time"

	"github.com/glefebvre/vodharvest/internal/cache"
	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/export"
	"github.com/glefebvre/vodharvest/internal/external/vod"
	"github.com/glefebvre/vodharvest/internal/harvest"
	"github.com/glefebvre/vodharvest/internal/metrics"
	"github.com/glefebvre/vodharvest/internal/retry"
	"github.com/glefebvre/vodharvest/internal/shutdown"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Export the VOD catalog of a provider module",
	Long: `Log in to the provider, walk every catalog page and write the show
artifacts to the output directory:

  {module}_vod_shows.json, {module}_vod_shows.csv, {module}_vod_by_category.json,
  {module}_vod_library.json

--with-episodes adds {module}_vod_episodes_by_show.json, --with-streams adds
{module}_vod_streams_by_episode.json, and --download-mp4 remuxes every
resolved episode into the media directory with ffmpeg. Flags override the
configuration file.`,
	RunE: runHarvest,
}

func init() {
	f := harvestCmd.Flags()
	f.String("base-url", "", "provider API base URL")
	f.String("module", "", "provider module, e.g. antena-play")
	f.String("out-dir", "", "output directory for the artifacts")
	f.String("search", "", "only export shows matching this search query")
	f.Int("max-pages", 0, "stop after this many catalog pages (0 = all)")
	f.Float64("sleep", 0.15, "seconds to sleep between upstream requests")
	f.Int("workers", 1, "concurrent episode and stream lookups")
	f.String("cache-dir", "", "request cache directory")
	f.Int("cache-ttl", 21600, "request cache TTL in seconds (0 = never expire)")
	f.Bool("no-cache", false, "disable the request cache")
	f.Bool("with-episodes", false, "fetch the episode list of every show")
	f.Int("episodes-max-pages", 0, "stop after this many episode pages per show (0 = all)")
	f.Bool("with-streams", false, "resolve the stream URL of every episode (implies --with-episodes)")
	f.Bool("download-mp4", false, "remux episodes to MP4 with ffmpeg (requires --with-streams)")
	f.String("ffmpeg", "", "ffmpeg binary")
	f.String("media-dir", "", "output directory for MP4 files")
	f.Int("max-downloads", 0, "stop after this many MP4 downloads (0 = no limit)")
	f.String("failure-policy", "", "what a failed download does: abort or continue")
	f.Bool("save-snapshot", false, "store the run in the snapshot database")
	rootCmd.AddCommand(harvestCmd)
}

// applyHarvestFlags copies explicitly set flags over the loaded configuration
func applyHarvestFlags(flags *pflag.FlagSet, cfg *config.Config) {
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	setString("base-url", &cfg.Upstream.BaseURL)
	setString("module", &cfg.Upstream.Module)
	setString("out-dir", &cfg.Harvest.OutDir)
	setString("search", &cfg.Harvest.Search)
	setInt("max-pages", &cfg.Harvest.MaxPages)
	setInt("workers", &cfg.Harvest.Workers)
	setInt("episodes-max-pages", &cfg.Harvest.EpisodesMaxPages)
	setBool("with-episodes", &cfg.Harvest.WithEpisodes)
	setBool("with-streams", &cfg.Harvest.WithStreams)
	if flags.Changed("sleep") {
		cfg.Harvest.DelaySeconds, _ = flags.GetFloat64("sleep")
	}

	setString("cache-dir", &cfg.Cache.Dir)
	setInt("cache-ttl", &cfg.Cache.TTLSeconds)
	setBool("no-cache", &cfg.Cache.Disabled)

	setBool("download-mp4", &cfg.Downloads.Enabled)
	setString("ffmpeg", &cfg.Downloads.FFmpeg)
	setString("media-dir", &cfg.Downloads.MediaDir)
	setInt("max-downloads", &cfg.Downloads.MaxDownloads)
	setString("failure-policy", &cfg.Downloads.FailurePolicy)

	setBool("save-snapshot", &cfg.Database.Enabled)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	applyHarvestFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return errors.ConfigError("invalid harvest options", err)
	}

	sh := shutdown.New(30 * time.Second)
	ctx, stop := sh.Context(cmd.Context())
	defer stop()
	defer sh.Shutdown()

	m := metrics.New()

	var store *cache.Store
	if cfg.CacheEnabled() {
		store = cache.New(cfg.Cache.Dir, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	client, err := vod.New(vod.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		Module:      cfg.Upstream.Module,
		Timeout:     time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		RetryConfig: retry.FromAttempts(cfg.Upstream.RetryAttempts),
		Cache:       store,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	filters, err := catalog.NewFilterSet(cfg.Filter)
	if err != nil {
		return errors.ConfigError("invalid catalog filters", err)
	}

	opts := []harvest.Option{
		harvest.WithMetrics(m),
		harvest.WithFilters(filters),
	}

	if cfg.Database.Enabled {
		if err := database.Initialize(); err != nil {
			return errors.DatabaseError("failed to open snapshot database", err)
		}
		sh.Register("database", func(ctx context.Context) error {
			return database.Close()
		})
		opts = append(opts, harvest.WithStore(database.NewStore(database.Get())))
	}

	res, err := harvest.New(client, harvest.OptionsFromConfig(cfg), opts...).Run(ctx)
	if err != nil {
		return err
	}

	summary := res.Summary(client.Module(), cfg.Harvest.OutDir, cfg.Downloads.MediaDir)
	fmt.Fprint(cmd.OutOrStdout(), export.RenderSummary(summary))
	return nil
}
