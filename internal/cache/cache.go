// Package cache is a content-addressed, TTL-bounded disk cache for idempotent
// upstream reads. Entries are raw JSON objects stored one file per fingerprint.
// Reads never fail: any problem with an entry is reported as a miss.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/spf13/afero"
)

const entryExt = ".json"

// ErrNotObject is returned by Put for bodies that are not a JSON object
var ErrNotObject = errors.New("cache: body is not a JSON object")

// Store is a fingerprint-keyed cache rooted at a directory
type Store struct {
	fs     afero.Fs
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// Option customizes a Store
type Option func(*Store)

// WithFs replaces the filesystem (tests use afero.NewMemMapFs)
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithClock replaces the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for swallowed errors
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) {
		s.logger = log
	}
}

// New creates a cache store. A ttl of zero or less means entries never expire.
func New(dir string, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		fs:     afero.NewOsFs(),
		dir:    dir,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.AppLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the cache directory
func (s *Store) Dir() string {
	return s.dir
}

// TTL returns the configured expiry
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) path(fp string) string {
	return filepath.Join(s.dir, fp+entryExt)
}

// Get returns the cached object for fp.
// Missing, expired, unreadable and corrupt entries all report a miss.
func (s *Store) Get(fp string) (json.RawMessage, bool) {
	path := s.path(fp)

	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, false
	}
	if s.expired(info.ModTime()) {
		return nil, false
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		}).Debug("cache entry unreadable, treating as miss")
		return nil, false
	}
	if !IsObject(data) {
		s.logger.WithFields(map[string]interface{}{
			"path": path,
		}).Debug("cache entry corrupt, treating as miss")
		return nil, false
	}

	return json.RawMessage(data), true
}

func (s *Store) expired(written time.Time) bool {
	return s.ttl > 0 && s.now().Sub(written) > s.ttl
}

// Put stores body under fp. The entry is written to a temp file in the cache
// directory and renamed into place, so readers never see a partial file.
func (s *Store) Put(fp string, body []byte) error {
	if !IsObject(body) {
		return ErrNotObject
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, fp+".*"+tempExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, s.path(fp)); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// Touch sets the write timestamp of an entry (used to age entries in tests and tools)
func (s *Store) Touch(fp string, at time.Time) error {
	return s.fs.Chtimes(s.path(fp), at, at)
}

// IsObject reports whether data is a syntactically valid JSON object
func IsObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
