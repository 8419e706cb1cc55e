package logger

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"

	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// 批量写入已读回执时 SQL 很长, 日志只保留前缀
const gormSQLMaxLen = 1024

// SlogGormLogger 将 gorm 日志输出到 slog, 慢查询单独告警
type SlogGormLogger struct {
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func NewGormLogger() *SlogGormLogger {
	return &SlogGormLogger{LogLevel: logger.Warn, SlowThreshold: 200 * time.Millisecond}
}

func (l *SlogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.LogLevel = level
	return &clone
}

func (l *SlogGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		log.InfoContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		log.WarnContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		log.ErrorContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	failed := err != nil && !errors.Is(err, logger.ErrRecordNotFound)
	slow := l.SlowThreshold > 0 && elapsed > l.SlowThreshold
	if !failed && !slow && l.LogLevel < logger.Info {
		return
	}

	sql, rows := fc()
	fields := []any{
		log.String("sql_op", sqlOperation(sql)),
		log.String("sql", truncateSQL(sql)),
		log.Int64("rows", rows),
		log.Duration("latency", elapsed),
		log.String("caller", utils.FileWithLineNum()),
	}
	switch {
	case failed:
		log.ErrorContext(ctx, "SQL failed", append(fields, log.Any("err", err))...)
	case slow:
		log.WarnContext(ctx, "SQL slow", fields...)
	default:
		log.DebugContext(ctx, "SQL", fields...)
	}
}

func sqlOperation(sql string) string {
	if op, _, ok := strings.Cut(strings.TrimSpace(sql), " "); ok {
		return strings.ToUpper(op)
	}
	return "QUERY"
}

func truncateSQL(sql string) string {
	if len(sql) <= gormSQLMaxLen {
		return sql
	}
	return sql[:gormSQLMaxLen] + "...[truncated]"
}
