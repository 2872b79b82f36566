package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the threshold above which a statement is logged as slow.
// Snapshot writes insert a whole catalog per statement, so it sits above
// gorm's own 200ms default.
const DefaultSlowQuery = 500 * time.Millisecond

// sqlLimit caps the statement text attached to a log entry
const sqlLimit = 512

// GormAdapter routes gorm's logging through the database logger. Statements
// run with db.WithContext(ctx) inherit the run and request IDs of ctx.
type GormAdapter struct {
	logger        *Logger
	logLevel      gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormAdapter creates a gorm logger for the given application log level.
// A zero slow threshold uses DefaultSlowQuery.
func NewGormAdapter(l *Logger, level string, slow time.Duration) *GormAdapter {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &GormAdapter{
		logger:        l,
		logLevel:      mapToGormLevel(level),
		slowThreshold: slow,
	}
}

// LogMode returns a copy of the adapter at the given level
func (g *GormAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.logLevel = level
	return &c
}

func (g *GormAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.logLevel >= gormlogger.Info {
		g.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *GormAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.logLevel >= gormlogger.Warn {
		g.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *GormAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.logLevel >= gormlogger.Error {
		g.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...), nil)
	}
}

// Trace logs failed and slow statements, and every statement at debug level.
// A missing record is an expected lookup result and is never logged.
func (g *GormAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if g.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := elapsed > g.slowThreshold

	switch {
	case failed && g.logLevel >= gormlogger.Error:
		g.statement(fc, elapsed).ErrorContext(ctx, "database statement failed", err)
	case slow && g.logLevel >= gormlogger.Warn:
		g.statement(fc, elapsed).WithFields(map[string]interface{}{
			"threshold_ms": g.slowThreshold.Milliseconds(),
		}).WarnContext(ctx, "slow database statement")
	case g.logLevel >= gormlogger.Info:
		g.statement(fc, elapsed).DebugContext(ctx, "database statement")
	}
}

func (g *GormAdapter) statement(fc func() (string, int64), elapsed time.Duration) *FieldLogger {
	sql, rows := fc()
	if runes := []rune(sql); len(runes) > sqlLimit {
		sql = string(runes[:sqlLimit]) + "..."
	}
	return g.logger.WithFields(map[string]interface{}{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1e3,
	})
}

// mapToGormLevel maps the application log level to gorm's: debug shows every
// statement, error shows failures only, anything else adds slow statements.
func mapToGormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}
