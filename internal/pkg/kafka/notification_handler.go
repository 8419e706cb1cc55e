package kafka

import (
	"Courier/internal/api/dto"
	"Courier/internal/pkg/logger"
	"Courier/internal/service"
	"context"
	"fmt"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// NotificationHandler 消费业务服务发出的 notification.create 事件
type NotificationHandler struct {
	notifier service.NotificationCreator
}

func NewNotificationHandler(notifier service.NotificationCreator) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

func (s *NotificationHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("notification consumer setup")
	return nil
}

func (s *NotificationHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("notification consumer cleanup")
	return nil
}

func (s *NotificationHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-notification consume claim", "partition", claim.Partition())
	if err := pullMessageBatch(session, claim, s.logic); err != nil {
		log.Error("topic-notification process batch error", "err", err)
		return err
	}
	return nil
}

func (s *NotificationHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = logger.WithTraceID(ctx, traceIDOf(msg))

	var req dto.CreateNotificationReq
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrSkipMessage, err)
	}

	n, err := s.notifier.CreateNotification(ctx, &req)
	if err != nil {
		if code, _ := service.Classify(err); code == service.BadRequest {
			return fmt.Errorf("%w: %v", ErrSkipMessage, err)
		}
		return err
	}
	log.InfoContext(ctx, "notification created from event", "notification_id", n.ID, "offset", msg.Offset)
	return nil
}

// traceIDOf 优先使用上游写入的 trace_id 头
func traceIDOf(msg *sarama.ConsumerMessage) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == logger.TraceIDKey && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return "kafka-" + uuid.NewString()
}
