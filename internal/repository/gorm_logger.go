package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Miguel-Alzate/modr/internal/sqltrace"
)

// GormLogger routes gorm output through slog and feeds SQL statements to the
// request-scoped sqltrace collector when one is on the context.
type GormLogger struct {
	log           *slog.Logger
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func NewGormLogger(l *slog.Logger, level logger.LogLevel) *GormLogger {
	if l == nil {
		l = slog.Default()
	}
	return &GormLogger{
		log:           l,
		LogLevel:      level,
		SlowThreshold: time.Second,
	}
}

// ParseGormLevel maps the database.log_level setting.
func ParseGormLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.log.InfoContext(ctx, msg, "data", data)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.log.WarnContext(ctx, msg, "data", data)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.log.ErrorContext(ctx, msg, "data", data)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	collector := sqltrace.FromContext(ctx)
	if l.LogLevel <= logger.Silent && collector == nil {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	collector.Record(sql, elapsed, begin)

	fields := []any{
		"sql", sql,
		"rows", rows,
		"time_ms", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && l.LogLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.ErrorContext(ctx, "sql error", append(fields, "error", err)...)
	case elapsed > l.SlowThreshold && l.LogLevel >= logger.Warn:
		l.log.WarnContext(ctx, "slow sql", append(fields, "threshold", l.SlowThreshold.String())...)
	case l.LogLevel == logger.Info:
		l.log.DebugContext(ctx, "sql", fields...)
	}
}
