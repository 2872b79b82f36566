package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/glefebvre/vodharvest/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB creates an in-memory SQLite database for testing
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.HarvestRun{},
		&models.ShowRecord{},
		&models.EpisodeRecord{},
		&models.DownloadRecord{},
	); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// CreateRun creates a completed test run
func CreateRun(db *gorm.DB, overrides ...func(*models.HarvestRun)) *models.HarvestRun {
	now := time.Now().UTC()
	run := &models.HarvestRun{
		RunID:       uuid.NewString(),
		Module:      "antena-play",
		BaseURL:     "http://127.0.0.1:8090",
		Status:      models.RunStatusCompleted,
		StartedAt:   now,
		CompletedAt: &now,
	}

	for _, override := range overrides {
		override(run)
	}

	db.Create(run)
	return run
}

// CreateShowRecord creates a test show belonging to runID
func CreateShowRecord(db *gorm.DB, runID uint, overrides ...func(*models.ShowRecord)) *models.ShowRecord {
	show := &models.ShowRecord{
		RunID:    runID,
		ShowID:   fmt.Sprintf("show_%d", time.Now().UnixNano()),
		Name:     "Test Show",
		Category: "Filme",
		Kind:     models.KindFilm,
		Raw:      `{}`,
	}

	for _, override := range overrides {
		override(show)
	}

	show.EpisodeCount = max(show.EpisodeCount, len(show.Episodes))
	db.Create(show)
	return show
}

// AssertCount verifies the count of records in a table
func AssertCount(t *testing.T, db *gorm.DB, model interface{}, expected int64, message string) {
	t.Helper()
	var count int64
	db.Model(model).Count(&count)
	if count != expected {
		t.Fatalf("%s: expected count %d, got %d", message, expected, count)
	}
}

// WithRunStatus sets the status of a run
func WithRunStatus(status models.RunStatus) func(*models.HarvestRun) {
	return func(run *models.HarvestRun) {
		run.Status = status
	}
}

// WithShowID sets the upstream id of a show
func WithShowID(id string) func(*models.ShowRecord) {
	return func(show *models.ShowRecord) {
		show.ShowID = id
	}
}

// WithName sets the name of a show
func WithName(name string) func(*models.ShowRecord) {
	return func(show *models.ShowRecord) {
		show.Name = name
	}
}

// WithCategory sets the category key of a show
func WithCategory(category string) func(*models.ShowRecord) {
	return func(show *models.ShowRecord) {
		show.Category = category
	}
}

// WithEpisodes attaches episodes to a show and marks it a serial when it has more than one
func WithEpisodes(episodes ...models.EpisodeRecord) func(*models.ShowRecord) {
	return func(show *models.ShowRecord) {
		show.Episodes = episodes
		if len(episodes) > 1 {
			show.Kind = models.KindSerial
		}
	}
}

// Episode builds an episode record; a zero episode number means unnumbered
func Episode(id string, season, episode int) models.EpisodeRecord {
	rec := models.EpisodeRecord{EpisodeID: id, Season: season, Raw: `{}`}
	name := "Episode " + id
	rec.Name = &name
	if episode > 0 {
		rec.Episode = &episode
	}
	return rec
}
