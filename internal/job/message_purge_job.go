package job

import (
	"Courier/internal/pkg/logger"
	"Courier/internal/repository"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const purgeBatchSize = 500

// MessagePurgeJob 物理清理软删除超过保留期的消息
type MessagePurgeJob struct {
	messageRepo repository.MessageRepo
	retention   time.Duration
}

func NewMessagePurgeJob(messageRepo repository.MessageRepo, retention time.Duration) *MessagePurgeJob {
	return &MessagePurgeJob{messageRepo: messageRepo, retention: retention}
}

func (s *MessagePurgeJob) Run() {
	ctx := logger.WithTraceID(context.Background(), "job-purge-"+uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	purged, err := s.messageRepo.PurgeDeleted(ctx, cutoff, purgeBatchSize)
	if err != nil {
		log.ErrorContext(ctx, "purge deleted messages failed", "purged", purged, "err", err)
		return
	}
	if purged > 0 {
		log.InfoContext(ctx, "message purge job finished", "purged", purged, "cutoff", cutoff)
	}
}
