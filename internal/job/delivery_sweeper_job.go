package job

import (
	"Courier/internal/pkg/logger"
	"Courier/internal/repository"
	"Courier/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const sweepBatchSize = 500

// DeliverySweeperJob 内存队列不持久, 重启或队列满时遗留的投递由此重新入队
type DeliverySweeperJob struct {
	deliveryRepo repository.DeliveryRepo
	queue        service.DeliveryQueue
	staleAfter   time.Duration
}

func NewDeliverySweeperJob(deliveryRepo repository.DeliveryRepo, queue service.DeliveryQueue, staleAfter time.Duration) *DeliverySweeperJob {
	return &DeliverySweeperJob{
		deliveryRepo: deliveryRepo,
		queue:        queue,
		staleAfter:   staleAfter,
	}
}

func (s *DeliverySweeperJob) Run() {
	ctx := logger.WithTraceID(context.Background(), "job-sweep-"+uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	now := time.Now().UTC()
	cutoff := now.Add(-s.staleAfter)

	// 尝试次数已用尽但结果未落库 (进程在发送中退出)
	failed, err := s.deliveryRepo.FailExhausted(ctx, cutoff, now)
	if err != nil {
		log.ErrorContext(ctx, "fail exhausted deliveries error", "err", err)
	} else if failed > 0 {
		log.WarnContext(ctx, "exhausted deliveries marked failed", "count", failed)
	}

	stale, err := s.deliveryRepo.GetStale(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.ErrorContext(ctx, "load stale deliveries error", "err", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	tasks := make([]service.DeliveryTask, len(stale))
	for i, d := range stale {
		tasks[i] = service.DeliveryTask{ID: d.ID, Channel: d.Channel.Name}
	}
	s.queue.Enqueue(tasks...)
	log.InfoContext(ctx, "stale deliveries re-enqueued", "count", len(tasks))
}
