// Package harvest runs one export: it owns the upstream session for the run,
// walks the catalog, writes the artifacts and optionally downloads media.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/downloader"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/export"
	"github.com/glefebvre/vodharvest/internal/library"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/metrics"
	"github.com/glefebvre/vodharvest/internal/models"
	"github.com/glefebvre/vodharvest/internal/paginate"
	"github.com/glefebvre/vodharvest/internal/streams"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LockFile is created in the output directory for the duration of a run
const LockFile = ".vodharvest.lock"

// progressEvery is how often episode harvesting reports progress, in shows
const progressEvery = 25

// Upstream is the part of the VOD API a run needs; *vod.Client implements it
type Upstream interface {
	Login(ctx context.Context) error
	RefreshChannels(ctx context.Context) error
	ShowsPage(ctx context.Context, page int, search string) (json.RawMessage, error)
	EpisodesPage(ctx context.Context, showID string, page int) (json.RawMessage, error)
	EpisodeStream(ctx context.Context, showID, episodeID string) (json.RawMessage, error)
	Module() string
}

// Options holds the run settings
type Options struct {
	BaseURL          string
	OutDir           string
	Search           string
	MaxPages         int
	EpisodesMaxPages int
	Delay            time.Duration
	Workers          int

	WithEpisodes bool
	WithStreams  bool
	Download     bool
	FFmpeg       string
	Downloads    downloader.Options

	MetricsTextfile string
}

// OptionsFromConfig maps the loaded configuration onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	delay := time.Duration(cfg.Harvest.DelaySeconds * float64(time.Second))
	return Options{
		BaseURL:          cfg.Upstream.BaseURL,
		OutDir:           cfg.Harvest.OutDir,
		Search:           cfg.Harvest.Search,
		MaxPages:         cfg.Harvest.MaxPages,
		EpisodesMaxPages: cfg.Harvest.EpisodesMaxPages,
		Delay:            delay,
		Workers:          cfg.Harvest.Workers,
		WithEpisodes:     cfg.Harvest.WithEpisodes,
		WithStreams:      cfg.Harvest.WithStreams,
		Download:         cfg.Downloads.Enabled,
		FFmpeg:           cfg.Downloads.FFmpeg,
		Downloads:        downloader.OptionsFromConfig(cfg.Downloads, delay),
		MetricsTextfile:  cfg.Metrics.Textfile,
	}
}

// NeedsEpisodes reports whether per-show episode lists are fetched
func (o Options) NeedsEpisodes() bool {
	return o.WithEpisodes || o.NeedsStreams()
}

// NeedsStreams reports whether stream URLs are resolved
func (o Options) NeedsStreams() bool {
	return o.WithStreams || o.Download
}

// Result is everything a run produced
type Result struct {
	RunID          string
	Shows          []catalog.Show
	EpisodesByShow map[string][]catalog.Episode
	Streams        map[string]string
	Library        library.Library
	Downloads      *downloader.Stats
	Artifacts      []string
	Duration       time.Duration
}

// Pipeline sequences the stages of a run
type Pipeline struct {
	upstream Upstream
	opts     Options
	filters  *catalog.FilterSet
	remuxer  downloader.Remuxer
	store    *database.Store
	metrics  *metrics.Metrics
	fs       afero.Fs
	now      func() time.Time
	logger   *logger.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithFilters drops shows rejected by fs before export
func WithFilters(fs *catalog.FilterSet) Option {
	return func(p *Pipeline) {
		p.filters = fs
	}
}

// WithRemuxer replaces the ffmpeg remuxer
func WithRemuxer(r downloader.Remuxer) Option {
	return func(p *Pipeline) {
		p.remuxer = r
	}
}

// WithStore persists the run in the snapshot store
func WithStore(s *database.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithMetrics counts pages, streams and downloads on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithFs writes artifacts to fs instead of the OS filesystem
func WithFs(fs afero.Fs) Option {
	return func(p *Pipeline) {
		p.fs = fs
	}
}

// WithClock sets the clock used for generatedAt
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline over an upstream session
func New(upstream Upstream, opts Options, options ...Option) *Pipeline {
	p := &Pipeline{
		upstream: upstream,
		opts:     opts,
		fs:       afero.NewOsFs(),
		now:      time.Now,
		logger:   logger.AppLogger(),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.remuxer == nil {
		p.remuxer = downloader.FFmpegRemuxer{Bin: opts.FFmpeg}
	}
	return p
}

// Run executes one harvest. The output directory is locked for the duration
// of the run; a second concurrent run on the same directory fails fast.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = &Result{RunID: uuid.NewString()}
	ctx = logger.ContextWithRunID(ctx, res.RunID)
	log := p.logger.WithFields(map[string]interface{}{
		"run_id": res.RunID,
		"module": p.upstream.Module(),
	})

	unlock, err := p.lock()
	if err != nil {
		return res, err
	}
	defer unlock()

	run, err := p.beginRun(ctx, res.RunID)
	if err != nil {
		return res, err
	}
	defer func() {
		res.Duration = time.Since(start)
		p.finishRun(ctx, run, err)
		p.writeMetrics()
	}()

	log.InfoContext(ctx, "harvest started")

	if err := p.upstream.Login(ctx); err != nil {
		return res, err
	}
	if err := p.upstream.RefreshChannels(ctx); err != nil {
		return res, err
	}

	shows, err := p.harvestShows(ctx)
	if err != nil {
		return res, err
	}
	res.Shows = shows

	w := export.New(p.opts.OutDir, p.upstream.Module(), export.WithFs(p.fs))
	defer func() { res.Artifacts = w.Written() }()

	if err := w.WriteShows(shows); err != nil {
		return res, err
	}
	if err := w.WriteByCategory(catalog.GroupByCategory(shows)); err != nil {
		return res, err
	}
	if err := w.WriteShowsCSV(shows); err != nil {
		return res, err
	}

	res.EpisodesByShow = map[string][]catalog.Episode{}
	res.Streams = map[string]string{}

	if p.opts.NeedsEpisodes() {
		eps, err := p.harvestEpisodes(ctx, shows)
		if err != nil {
			return res, err
		}
		res.EpisodesByShow = eps
		if err := w.WriteEpisodesByShow(eps); err != nil {
			return res, err
		}
	}

	if p.opts.NeedsStreams() {
		resolved, err := streams.NewResolver(p.upstream, p.metrics).ResolveAll(ctx, res.EpisodesByShow, streams.Options{
			Workers: p.opts.Workers,
			Delay:   p.opts.Delay,
		})
		if err != nil {
			return res, err
		}
		res.Streams = resolved
		if err := w.WriteStreams(resolved); err != nil {
			return res, err
		}
	}

	res.Library = library.Build(shows, res.EpisodesByShow, p.opts.NeedsStreams(), res.Streams, p.now())
	if err := w.WriteLibrary(res.Library); err != nil {
		return res, err
	}

	if run != nil {
		if err := p.store.SaveSnapshot(ctx, run, database.Snapshot{
			Shows:          shows,
			EpisodesByShow: res.EpisodesByShow,
			Streams:        res.Streams,
		}); err != nil {
			return res, err
		}
	}

	if p.opts.Download {
		stats, err := p.download(ctx, run, res)
		res.Downloads = stats
		if err != nil {
			return res, err
		}
	}

	st := res.Library.Stats()
	log.WithFields(map[string]interface{}{
		"shows":    len(shows),
		"films":    st.Films,
		"serials":  st.Serials,
		"episodes": st.Episodes,
		"streams":  len(res.Streams),
	}).InfoContext(ctx, "harvest completed")

	return res, nil
}

// lock takes the output directory lock
func (p *Pipeline) lock() (func(), error) {
	if err := os.MkdirAll(p.opts.OutDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create output directory")
	}

	path := filepath.Join(p.opts.OutDir, LockFile)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to lock output directory")
	}
	if !ok {
		return nil, errors.PreconditionViolation(fmt.Sprintf("another harvest is writing to %s", p.opts.OutDir))
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			p.logger.WithFields(map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			}).Warn("failed to release output lock")
		}
	}, nil
}

// harvestShows walks every show page, then dedupes, filters and sorts
func (p *Pipeline) harvestShows(ctx context.Context) ([]catalog.Show, error) {
	fetch := func(ctx context.Context, page int) (json.RawMessage, error) {
		return p.upstream.ShowsPage(ctx, page, p.opts.Search)
	}

	var all []catalog.Show
	for body, err := range paginate.Walk(ctx, fetch, paginate.Options{MaxPages: p.opts.MaxPages, Delay: p.opts.Delay}) {
		if err != nil {
			return nil, err
		}
		p.metrics.ObservePage("shows")

		items, err := catalog.ExtractItems(body)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			all = append(all, catalog.DecodeShow(item))
		}
	}

	shows := catalog.Dedupe(all)
	if p.filters != nil && p.filters.Count() > 0 {
		before := len(shows)
		shows = p.filters.Apply(shows)
		p.logger.WithFields(map[string]interface{}{
			"kept":    len(shows),
			"dropped": before - len(shows),
		}).Info("applied catalog filters")
	}
	catalog.SortForExport(shows)

	p.logger.WithFields(map[string]interface{}{
		"fetched": len(all),
		"unique":  len(shows),
	}).InfoContext(ctx, "fetched shows")
	return shows, nil
}

// harvestEpisodes fetches the episode list of every show. With one worker
// pages are spaced by Delay inside each walk; with more, all walks share a
// token bucket at 1/Delay.
func (p *Pipeline) harvestEpisodes(ctx context.Context, shows []catalog.Show) (map[string][]catalog.Episode, error) {
	workers := max(p.opts.Workers, 1)
	walkDelay := p.opts.Delay
	limiter := rate.NewLimiter(rate.Inf, 1)
	if workers > 1 {
		walkDelay = 0
		if p.opts.Delay > 0 {
			limiter = rate.NewLimiter(rate.Every(p.opts.Delay), 1)
		}
	}

	var (
		mu     sync.Mutex
		done   int
		result = make(map[string][]catalog.Episode, len(shows))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, show := range shows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			eps, err := p.showEpisodes(gctx, show.ID, walkDelay, limiter)
			if err != nil {
				return err
			}

			mu.Lock()
			result[show.ID] = eps
			done++
			n := done
			mu.Unlock()

			if n%progressEvery == 0 {
				p.logger.WithFields(map[string]interface{}{
					"shows": n,
					"total": len(shows),
				}).InfoContext(gctx, "fetched episodes")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// showEpisodes walks the episode pages of one show. A page without an
// object "data" ends the walk.
func (p *Pipeline) showEpisodes(ctx context.Context, showID string, delay time.Duration, limiter *rate.Limiter) ([]catalog.Episode, error) {
	fetch := func(ctx context.Context, page int) (json.RawMessage, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.upstream.EpisodesPage(ctx, showID, page)
	}

	eps := []catalog.Episode{}
	for body, err := range paginate.Walk(ctx, fetch, paginate.Options{MaxPages: p.opts.EpisodesMaxPages, Delay: delay}) {
		if err != nil {
			return nil, err
		}
		p.metrics.ObservePage("episodes")

		items, ok := catalog.EpisodeItems(body)
		if !ok {
			break
		}
		eps = append(eps, catalog.DecodeEpisodes(items)...)
	}
	return eps, nil
}

// download materializes every resolved stream
func (p *Pipeline) download(ctx context.Context, run *models.HarvestRun, res *Result) (*downloader.Stats, error) {
	if !p.opts.WithStreams && len(res.Streams) == 0 {
		return nil, errors.PreconditionViolation("--download-mp4 requires --with-streams")
	}

	var recorder downloader.Recorder
	if run != nil {
		recorder = p.store.Recorder(run.ID)
	}

	jobs := downloader.BuildJobs(res.Shows, res.EpisodesByShow, res.Streams)
	p.logger.WithFields(map[string]interface{}{
		"jobs":      len(jobs),
		"media_dir": p.opts.Downloads.MediaDir,
	}).InfoContext(ctx, "starting downloads")

	return downloader.New(p.remuxer, p.opts.Downloads, recorder, p.metrics).Run(ctx, jobs)
}

func (p *Pipeline) beginRun(ctx context.Context, runID string) (*models.HarvestRun, error) {
	if p.store == nil {
		return nil, nil
	}

	run := &models.HarvestRun{
		RunID:   runID,
		Module:  p.upstream.Module(),
		BaseURL: p.opts.BaseURL,
	}
	if p.opts.Search != "" {
		search := p.opts.Search
		run.Search = &search
	}
	if err := p.store.BeginRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (p *Pipeline) finishRun(ctx context.Context, run *models.HarvestRun, runErr error) {
	if run == nil {
		return
	}
	// the run outcome is stored even when ctx was cancelled
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run, runErr); err != nil {
		p.logger.ErrorContext(ctx, "failed to finish harvest run", err)
	}
}

func (p *Pipeline) writeMetrics() {
	if p.metrics == nil || p.opts.MetricsTextfile == "" {
		return
	}
	if err := p.metrics.WriteTextfile(p.opts.MetricsTextfile); err != nil {
		p.logger.WithFields(map[string]interface{}{
			"path":  p.opts.MetricsTextfile,
			"error": err.Error(),
		}).Warn("failed to write metrics textfile")
	}
}

// Summary builds the console summary of a run
func (r *Result) Summary(module, outDir, mediaDir string) export.Summary {
	st := r.Library.Stats()
	s := export.Summary{
		Module:     module,
		OutDir:     outDir,
		Shows:      len(r.Shows),
		Categories: st.Categories,
		Films:      st.Films,
		Serials:    st.Serials,
		Episodes:   st.Episodes,
		Streams:    len(r.Streams),
		Duration:   r.Duration,
		Artifacts:  r.Artifacts,
	}
	if r.Downloads != nil {
		s.MediaDir = mediaDir
		s.Downloaded = r.Downloads.Downloaded
		s.Skipped = r.Downloads.Skipped
		s.Failed = r.Downloads.Failed
		s.Bytes = r.Downloads.Bytes
	}
	return s
}
