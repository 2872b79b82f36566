package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/classifier"
	"github.com/glefebvre/vodharvest/internal/downloader"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/library"
	"github.com/glefebvre/vodharvest/internal/models"
	"gorm.io/gorm"
)

const insertBatchSize = 200

// Snapshot is the harvested catalog of one run
type Snapshot struct {
	Shows          []catalog.Show
	EpisodesByShow map[string][]catalog.Episode
	Streams        map[string]string
}

// Store reads and writes harvest snapshots
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// DB returns the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// BeginRun records a new run in the running state
func (s *Store) BeginRun(ctx context.Context, run *models.HarvestRun) error {
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return errors.DatabaseError("failed to create harvest run", err)
	}
	return nil
}

// SaveSnapshot stores every show and episode of a run in one transaction and
// updates the run counters
func (s *Store) SaveSnapshot(ctx context.Context, run *models.HarvestRun, snap Snapshot) error {
	records := make([]models.ShowRecord, 0, len(snap.Shows))
	episodeCount := 0
	for _, show := range snap.Shows {
		eps := snap.EpisodesByShow[show.ID]
		records = append(records, showRecord(run.ID, show, eps, snap.Streams))
		episodeCount += len(eps)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(records) > 0 {
			if err := tx.CreateInBatches(&records, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert shows: %w", err)
			}
		}

		return tx.Model(run).Updates(map[string]interface{}{
			"show_count":    len(records),
			"episode_count": episodeCount,
			"stream_count":  len(snap.Streams),
		}).Error
	})
	if err != nil {
		return errors.DatabaseError("failed to save snapshot", err)
	}

	run.ShowCount = len(records)
	run.EpisodeCount = episodeCount
	run.StreamCount = len(snap.Streams)
	return nil
}

// FinishRun marks a run completed, or failed when runErr is set
func (s *Store) FinishRun(ctx context.Context, run *models.HarvestRun, runErr error) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		msg := runErr.Error()
		run.Status = models.RunStatusFailed
		run.ErrorMessage = &msg
	}

	err := s.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":        run.Status,
		"completed_at":  run.CompletedAt,
		"error_message": run.ErrorMessage,
	}).Error
	if err != nil {
		return errors.DatabaseError("failed to finish harvest run", err)
	}
	return nil
}

// Recorder returns a downloader.Recorder that files outcomes under runID
func (s *Store) Recorder(runID uint) downloader.Recorder {
	return &runRecorder{store: s, runID: runID}
}

type runRecorder struct {
	store *Store
	runID uint
}

func (r *runRecorder) RecordDownload(ctx context.Context, o downloader.Outcome) error {
	return r.store.RecordDownload(ctx, r.runID, o)
}

// RecordDownload stores one download outcome
func (s *Store) RecordDownload(ctx context.Context, runID uint, o downloader.Outcome) error {
	rec := models.DownloadRecord{
		RunID:      runID,
		ShowID:     o.Job.ShowID,
		EpisodeID:  o.Job.EpisodeID,
		Path:       o.Path,
		Status:     o.Status,
		Bytes:      o.Bytes,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		msg := o.Err.Error()
		rec.ErrorMessage = &msg
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.DatabaseError("failed to record download", err)
	}
	return nil
}

func showRecord(runID uint, show catalog.Show, eps []catalog.Episode, streams map[string]string) models.ShowRecord {
	rec := models.ShowRecord{
		RunID:        runID,
		ShowID:       show.ID,
		Name:         show.Name,
		Category:     show.CategoryKey(),
		CategoryRaw:  show.CategoryRaw,
		Img:          show.Img,
		Link:         show.Link,
		Kind:         models.Kind(classifier.Classify(len(eps))),
		EpisodeCount: len(eps),
		Raw:          string(show.Raw),
	}

	for _, ep := range eps {
		if ep.ID == "" {
			continue
		}
		guess := classifier.ParseSeasonEpisode(ep.Title())
		er := models.EpisodeRecord{
			EpisodeID: ep.ID,
			Name:      ep.Name,
			Date:      ep.Date,
			Link:      ep.Link,
			Season:    guess.SeasonOr(library.DefaultSeason),
			Episode:   guess.Episode,
			Raw:       string(ep.Raw),
		}
		if url, ok := streams[catalog.StreamKey(show.ID, ep.ID)]; ok {
			er.StreamURL = &url
		}
		rec.Episodes = append(rec.Episodes, er)
	}
	return rec
}
