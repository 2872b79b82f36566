package downloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("partial"), 0644))
	at := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestCleanupPartials(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "Show - Ep 1.part.mp4")
	fresh := filepath.Join(dir, "Show - Ep 2.part.mp4")
	done := filepath.Join(dir, "Show - Ep 3.mp4")
	writeAged(t, stale, 48*time.Hour)
	writeAged(t, fresh, time.Minute)
	writeAged(t, done, 48*time.Hour)

	result, err := CleanupPartials(CleanupOptions{MediaDir: dir, RetentionHours: 24})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, int64(len("partial")), result.BytesFreed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, done, "finished media is never touched")
}

func TestCleanupPartials_DryRun(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "Show - Ep 1.part.mp4")
	writeAged(t, stale, 48*time.Hour)

	result, err := CleanupPartials(CleanupOptions{MediaDir: dir, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.FileExists(t, stale)
}

func TestCleanupPartials_MissingDir(t *testing.T) {
	result, err := CleanupPartials(CleanupOptions{MediaDir: filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{}, result)
}
