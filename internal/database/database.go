// Package database persists harvest snapshots so the read API can serve the
// latest catalog without re-harvesting.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var db *gorm.DB

// Initialize opens the configured database, runs migrations and keeps the
// handle for Get
func Initialize() error {
	cfg := config.Get()

	opened, err := Open(cfg.Database, cfg.GetDatabaseLogLevel())
	if err != nil {
		return err
	}

	db = opened
	return nil
}

// Open connects to the database described by cfg and runs migrations
func Open(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormAdapter(logger.DatabaseLogger(), logLevel, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return conn, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "", "sqlite":
		path := cfg.Path
		if cfg.DSN != "" {
			path = cfg.DSN
		}
		if path == "" {
			return nil, fmt.Errorf("database.path is required for the sqlite driver")
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Migrate creates or updates the snapshot tables
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&models.HarvestRun{},
		&models.ShowRecord{},
		&models.EpisodeRecord{},
		&models.DownloadRecord{},
	)
}

// Get returns the database instance
func Get() *gorm.DB {
	return db
}

// Set replaces the database instance (used by tests)
func Set(conn *gorm.DB) {
	db = conn
}

// HealthCheck verifies connectivity of the package-level database
func HealthCheck() error {
	return Ping(db)
}

// Ping verifies connectivity of conn
func Ping(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}
