package logger

import (
	"context"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

const (
	mongoSlow          = 200 * time.Millisecond
	mongoDetailMaxSize = 512
)

// 驱动自身的握手与心跳命令不记录
var mongoQuietCommands = map[string]bool{
	"hello":        true,
	"isMaster":     true,
	"ismaster":     true,
	"ping":         true,
	"endSessions":  true,
	"saslStart":    true,
	"saslContinue": true,
}

// NewMongoMonitor 记录投递审计日志的写入, 失败与慢命令单独告警
func NewMongoMonitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			if mongoQuietCommands[evt.CommandName] {
				return
			}
			detail := evt.Command.String()
			if len(detail) > mongoDetailMaxSize {
				detail = detail[:mongoDetailMaxSize] + "...[truncated]"
			}
			log.DebugContext(ctx, "Audit store command",
				log.String("mongo_cmd", evt.CommandName),
				log.String("mongo_db", evt.DatabaseName),
				log.Int64("mongo_request_id", evt.RequestID),
				log.String("mongo_detail", detail),
			)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			if mongoQuietCommands[evt.CommandName] || evt.Duration <= mongoSlow {
				return
			}
			log.WarnContext(ctx, "Audit store slow command",
				log.String("mongo_cmd", evt.CommandName),
				log.Int64("mongo_request_id", evt.RequestID),
				log.Duration("latency", evt.Duration),
			)
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			log.ErrorContext(ctx, "Audit store command failed",
				log.String("mongo_cmd", evt.CommandName),
				log.Int64("mongo_request_id", evt.RequestID),
				log.Duration("latency", evt.Duration),
				log.String("err", evt.Failure),
			)
		},
	}
}
