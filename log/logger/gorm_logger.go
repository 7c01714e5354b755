package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormOptions 数据库日志配置
type GormOptions struct {
	// 日志级别：silent, error, warn, info
	Level string `cfg:"level" def:"warn" validate:"omitempty,oneof=silent error warn info"`
	// 超过该耗时的语句按 warn 输出
	SlowThreshold time.Duration `cfg:"slowThreshold" def:"1s"`
}

// GormLogger 把 gorm 的日志转发到 Logger
type GormLogger struct {
	log           Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(log Logger, options *GormOptions) *GormLogger {
	l := &GormLogger{log: log, level: gormlogger.Warn, slowThreshold: time.Second}
	if options == nil {
		return l
	}
	switch options.Level {
	case "silent":
		l.level = gormlogger.Silent
	case "error":
		l.level = gormlogger.Error
	case "info":
		l.level = gormlogger.Info
	}
	if options.SlowThreshold > 0 {
		l.slowThreshold = options.SlowThreshold
	}
	return l
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "sql failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow sql", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.DebugContext(ctx, "sql", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
