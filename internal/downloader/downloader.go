// Package downloader materializes resolved episode streams as local media
// files. Work is idempotent: files that already exist are never redone.
package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/circuitbreaker"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/metrics"
)

// Download statuses
const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

// Job is one episode to materialize
type Job struct {
	ShowID      string
	ShowName    string
	EpisodeID   string
	EpisodeName string
	StreamURL   string
}

func (j Job) showLabel() string {
	if j.ShowName != "" {
		return j.ShowName
	}
	return j.ShowID
}

func (j Job) episodeLabel() string {
	if j.EpisodeName != "" {
		return j.EpisodeName
	}
	return j.EpisodeID
}

// Outcome records what happened to one job
type Outcome struct {
	Job      Job
	Path     string
	Status   string
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Recorder persists outcomes; the snapshot store implements it
type Recorder interface {
	RecordDownload(ctx context.Context, o Outcome) error
}

// Options holds orchestrator configuration
type Options struct {
	MediaDir       string
	MaxDownloads   int
	Delay          time.Duration
	FailurePolicy  string
	MaxConsecutive uint
	MinFreeBytes   uint64
	FilenameMaxLen int
}

// OptionsFromConfig maps the downloads config section onto Options
func OptionsFromConfig(cfg config.DownloadsConfig, delay time.Duration) Options {
	return Options{
		MediaDir:       cfg.MediaDir,
		MaxDownloads:   cfg.MaxDownloads,
		Delay:          delay,
		FailurePolicy:  cfg.FailurePolicy,
		MaxConsecutive: uint(max(cfg.MaxConsecutiveFailures, 1)),
		MinFreeBytes:   uint64(max(cfg.MinFreeMB, 0)) * 1024 * 1024,
		FilenameMaxLen: cfg.FilenameMaxLen,
	}
}

// Stats summarizes a run
type Stats struct {
	Downloaded int
	Skipped    int
	Failed     int
	NoStream   int
	Bytes      int64
	Outcomes   []Outcome
}

// Orchestrator runs remux jobs sequentially
type Orchestrator struct {
	remuxer  Remuxer
	opts     Options
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. recorder and m may be nil.
func New(remuxer Remuxer, opts Options, recorder Recorder, m *metrics.Metrics) *Orchestrator {
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.FailurePolicyAbort
	}
	if opts.MaxConsecutive == 0 {
		opts.MaxConsecutive = 1
	}
	return &Orchestrator{
		remuxer:  remuxer,
		opts:     opts,
		recorder: recorder,
		metrics:  m,
		logger:   logger.AppLogger(),
		sleep:    sleepContext,
	}
}

// BuildJobs lists download jobs in show order, then episode order.
// Episodes without an id are skipped; a missing stream leaves StreamURL empty.
func BuildJobs(shows []catalog.Show, episodesByShow map[string][]catalog.Episode, streams map[string]string) []Job {
	var jobs []Job
	for _, s := range shows {
		for _, ep := range episodesByShow[s.ID] {
			if ep.ID == "" {
				continue
			}
			jobs = append(jobs, Job{
				ShowID:      s.ID,
				ShowName:    s.Name,
				EpisodeID:   ep.ID,
				EpisodeName: ep.Title(),
				StreamURL:   streams[catalog.StreamKey(s.ID, ep.ID)],
			})
		}
	}
	return jobs
}

// Run processes jobs in order. Jobs without a stream are skipped, jobs whose
// target already exists with content are skipped, and the run stops once
// MaxDownloads files were produced. Under the abort policy the first remux
// failure ends the run with a REMUX_FAILURE error; under the continue policy
// failures are recorded and the run ends only when MaxConsecutive failures
// happen in a row.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) (*Stats, error) {
	stats := &Stats{}

	if err := os.MkdirAll(o.opts.MediaDir, 0755); err != nil {
		return stats, errors.Wrap(err, errors.CodeInternal, "failed to create media directory")
	}
	if err := CheckFreeSpace(o.opts.MediaDir, o.opts.MinFreeBytes); err != nil {
		return stats, errors.Wrap(err, errors.CodePreconditionViolation, "not enough free space for downloads")
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		MaxFailures: o.opts.MaxConsecutive,
		OnStateChange: func(from, to circuitbreaker.State) {
			o.logger.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("download breaker changed state")
		},
	})

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if j.StreamURL == "" {
			stats.NoStream++
			continue
		}

		outcome := o.process(ctx, j, breaker)
		stats.Outcomes = append(stats.Outcomes, outcome)
		o.record(ctx, outcome)

		switch outcome.Status {
		case StatusSkipped:
			stats.Skipped++
			continue

		case StatusFailed:
			stats.Failed++
			if o.opts.FailurePolicy == config.FailurePolicyAbort {
				return stats, outcome.Err
			}
			if breaker.State() == circuitbreaker.StateOpen {
				return stats, errors.Wrap(outcome.Err, errors.CodeRemuxFailure,
					fmt.Sprintf("%d consecutive downloads failed", breaker.Failures()))
			}
			continue
		}

		stats.Downloaded++
		stats.Bytes += outcome.Bytes

		if o.opts.MaxDownloads > 0 && stats.Downloaded >= o.opts.MaxDownloads {
			o.logger.WithFields(map[string]interface{}{
				"max_downloads": o.opts.MaxDownloads,
			}).Info("download cap reached")
			break
		}

		if o.opts.Delay > 0 {
			if err := o.sleep(ctx, o.opts.Delay); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

func (o *Orchestrator) process(ctx context.Context, j Job, breaker *circuitbreaker.CircuitBreaker) Outcome {
	target := TargetPath(o.opts.MediaDir, j, o.opts.FilenameMaxLen)
	outcome := Outcome{Job: j, Path: target}

	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		outcome.Status = StatusSkipped
		outcome.Bytes = info.Size()
		o.metrics.ObserveDownload(metrics.DownloadSkipped)
		return outcome
	}

	log := o.logger.WithFields(map[string]interface{}{
		"show_id":    j.ShowID,
		"episode_id": j.EpisodeID,
		"path":       target,
	})
	log.Info("downloading episode")

	start := time.Now()
	err := breaker.Execute(func() error {
		return o.remux(ctx, j.StreamURL, target)
	})
	outcome.Duration = time.Since(start)

	if err != nil {
		if !stderrors.Is(err, circuitbreaker.ErrOpenState) {
			err = errors.Wrap(err, errors.CodeRemuxFailure, "remux failed for "+filepath.Base(target)).
				WithContext("show_id", j.ShowID).
				WithContext("episode_id", j.EpisodeID)
		}
		outcome.Status = StatusFailed
		outcome.Err = err
		o.metrics.ObserveDownload(metrics.DownloadFailed)
		log.Error("download failed", err)
		return outcome
	}

	if info, err := os.Stat(target); err == nil {
		outcome.Bytes = info.Size()
	}
	outcome.Status = StatusDownloaded
	o.metrics.ObserveDownload(metrics.DownloadOK)
	log.WithFields(map[string]interface{}{
		"size":        FormatBytes(uint64(outcome.Bytes)),
		"duration_ms": outcome.Duration.Milliseconds(),
	}).Info("download complete")
	return outcome
}

// remux writes to a partial file and renames it into place, so an
// interrupted run never leaves a non-empty target that would be skipped.
func (o *Orchestrator) remux(ctx context.Context, streamURL, target string) error {
	partial := partialPath(target)

	if err := o.remuxer.Remux(ctx, streamURL, partial); err != nil {
		os.Remove(partial)
		return err
	}

	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(partial), err)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, outcome Outcome) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordDownload(ctx, outcome); err != nil {
		o.logger.WithFields(map[string]interface{}{
			"show_id":    outcome.Job.ShowID,
			"episode_id": outcome.Job.EpisodeID,
		}).Warn("failed to record download outcome: " + err.Error())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
