package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowQueryThreshold is how long a statement may take before it is logged as
// slow at the Warn level.
const SlowQueryThreshold = 200 * time.Millisecond

// GormLogLevel maps the service's LOG_LEVEL onto GORM's levels. Only "debug"
// logs every statement; the default keeps slow queries and failures.
func GormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.Info
	case "error", "dpanic", "panic", "fatal":
		return logger.Error
	default:
		return logger.Warn
	}
}

// zapGormLogger sends GORM's output through the service's zap logger so SQL
// lines share the JSON format and fields of the access log.
type zapGormLogger struct {
	log   *zap.Logger
	level logger.LogLevel
	slow  time.Duration
}

func NewGormLogger(log *zap.Logger, level logger.LogLevel, slow time.Duration) logger.Interface {
	return &zapGormLogger{log: log, level: level, slow: slow}
}

func (l *zapGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapGormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace is called once per statement. Not-found and unique violations are
// expected outcomes (unknown activity, duplicate signup), so they are not
// logged as errors.
func (l *zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	expected := errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)

	switch {
	case err != nil && !expected && l.level >= logger.Error:
		sql, rows := fc()
		l.log.Error("query failed",
			zap.Error(err),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	case l.slow > 0 && elapsed > l.slow && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", l.slow),
		)
	case l.level >= logger.Info:
		sql, rows := fc()
		fields := []zap.Field{
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		l.log.Debug("query", fields...)
	}
}
