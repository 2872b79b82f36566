package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestAdapter(level string, slow time.Duration) (*GormAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, MinLevel: LevelDebug})
	return NewGormAdapter(l, level, slow), &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) Entry {
	t.Helper()
	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewGormAdapter_DefaultSlowThreshold(t *testing.T) {
	g, _ := newTestAdapter("info", 0)
	if g.slowThreshold != DefaultSlowQuery {
		t.Errorf("expected %v, got %v", DefaultSlowQuery, g.slowThreshold)
	}
}

func TestMapToGormLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"debug": gormlogger.Info,
		"info":  gormlogger.Warn,
		"warn":  gormlogger.Warn,
		"error": gormlogger.Error,
		"":      gormlogger.Warn,
	}
	for in, want := range tests {
		if got := mapToGormLevel(in); got != want {
			t.Errorf("mapToGormLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTrace_FailedStatementCarriesRunID(t *testing.T) {
	g, buf := newTestAdapter("info", time.Second)
	ctx := ContextWithRunID(context.Background(), "run-1")

	g.Trace(ctx, time.Now(), func() (string, int64) {
		return "INSERT INTO vod_shows ...", 0
	}, errors.New("constraint failed"))

	entry := decodeEntry(t, buf)
	if entry.Level != LevelError {
		t.Errorf("expected error level, got %s", entry.Level)
	}
	if entry.Context["run_id"] != "run-1" {
		t.Errorf("expected run_id run-1, got %v", entry.Context["run_id"])
	}
	if entry.Context["sql"] != "INSERT INTO vod_shows ..." {
		t.Errorf("unexpected sql %v", entry.Context["sql"])
	}
	if entry.Error != "constraint failed" {
		t.Errorf("unexpected error %q", entry.Error)
	}
}

func TestTrace_RecordNotFoundIsSilent(t *testing.T) {
	g, buf := newTestAdapter("info", time.Second)

	g.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM harvest_runs", 0
	}, gorm.ErrRecordNotFound)

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestTrace_SlowStatement(t *testing.T) {
	g, buf := newTestAdapter("info", time.Millisecond)

	g.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	entry := decodeEntry(t, buf)
	if entry.Level != LevelWarn {
		t.Errorf("expected warn level, got %s", entry.Level)
	}
	if entry.Context["threshold_ms"] != float64(1) {
		t.Errorf("unexpected threshold %v", entry.Context["threshold_ms"])
	}
}

func TestTrace_TruncatesLongStatements(t *testing.T) {
	g, buf := newTestAdapter("debug", time.Hour)

	g.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT " + strings.Repeat("(?)", 1000), 1000
	}, nil)

	entry := decodeEntry(t, buf)
	sql, _ := entry.Context["sql"].(string)
	if len([]rune(sql)) != sqlLimit+3 || !strings.HasSuffix(sql, "...") {
		t.Errorf("expected truncated statement, got %d runes", len([]rune(sql)))
	}
}

func TestTrace_Silent(t *testing.T) {
	g, buf := newTestAdapter("debug", time.Millisecond)
	silent := g.LogMode(gormlogger.Silent)

	silent.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, errors.New("boom"))

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
	if g.logLevel != gormlogger.Info {
		t.Error("LogMode must not modify the receiver")
	}
}
