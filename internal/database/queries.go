package database

import (
	"context"
	stderrors "errors"

	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/models"
	"gorm.io/gorm"
)

// ShowQuery filters ListShows
type ShowQuery struct {
	Category string
	Kind     string
	Limit    int
	Offset   int
}

// CategorySummary counts shows per category
type CategorySummary struct {
	Category string `json:"category"`
	Shows    int64  `json:"shows"`
	Films    int64  `json:"films"`
	Serials  int64  `json:"serials"`
}

// LatestRun returns the most recent completed run
func (s *Store) LatestRun(ctx context.Context) (*models.HarvestRun, error) {
	var run models.HarvestRun
	err := s.db.WithContext(ctx).
		Where("status = ?", models.RunStatusCompleted).
		Order("id DESC").
		First(&run).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("harvest run", "latest")
		}
		return nil, errors.DatabaseError("failed to load latest run", err)
	}
	return &run, nil
}

// ListShows returns a page of shows of a run, ordered like the library
// (category, name, show id), with the total count before paging
func (s *Store) ListShows(ctx context.Context, runID uint, q ShowQuery) ([]models.ShowRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ShowRecord{}).Where("run_id = ?", runID)
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.DatabaseError("failed to count shows", err)
	}

	var shows []models.ShowRecord
	paged := query.Order("category ASC, name ASC, show_id ASC").Offset(q.Offset)
	if q.Limit > 0 {
		paged = paged.Limit(q.Limit)
	}
	if err := paged.Find(&shows).Error; err != nil {
		return nil, 0, errors.DatabaseError("failed to list shows", err)
	}
	return shows, total, nil
}

// GetShow returns one show of a run with its episodes in season order
func (s *Store) GetShow(ctx context.Context, runID uint, showID string) (*models.ShowRecord, error) {
	var show models.ShowRecord
	err := s.db.WithContext(ctx).
		Preload("Episodes", func(db *gorm.DB) *gorm.DB {
			// unnumbered episodes sort last, as in the library
			return db.Order("season ASC").
				Order("CASE WHEN episode IS NULL THEN 1 ELSE 0 END").
				Order("episode ASC, date ASC, episode_id ASC")
		}).
		Where("run_id = ? AND show_id = ?", runID, showID).
		First(&show).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("show", showID)
		}
		return nil, errors.DatabaseError("failed to load show", err)
	}
	return &show, nil
}

// Categories counts shows per category of a run, ordered by category
func (s *Store) Categories(ctx context.Context, runID uint) ([]CategorySummary, error) {
	var out []CategorySummary
	err := s.db.WithContext(ctx).
		Model(&models.ShowRecord{}).
		Select("category, COUNT(*) AS shows, "+
			"SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS films, "+
			"SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS serials",
			models.KindFilm, models.KindSerial).
		Where("run_id = ?", runID).
		Group("category").
		Order("category ASC").
		Scan(&out).Error
	if err != nil {
		return nil, errors.DatabaseError("failed to count categories", err)
	}
	return out, nil
}

// DownloadCounts returns the number of download outcomes per status for a run
func (s *Store) DownloadCounts(ctx context.Context, runID uint) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.DownloadRecord{}).
		Select("status, COUNT(*) AS count").
		Where("run_id = ?", runID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.DatabaseError("failed to count downloads", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
