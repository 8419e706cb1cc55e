package kafka

import (
	"Courier/internal/api/config"
	"Courier/internal/service"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	topic                string
	notificationConsumer sarama.ConsumerGroup
	notificationHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, notifier service.NotificationCreator) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka, cfg.KafkaNotificationConsumer.GroupID)

	notificationConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaNotificationConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		topic:                cfg.KafkaNotificationConsumer.Topic,
		notificationConsumer: notificationConsumer,
		notificationHandler:  NewNotificationHandler(notifier),
	}, nil
}

// Start 启动所有消费者, 阻塞至 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	go func() {
		for err := range m.notificationConsumer.Errors() {
			log.Error("Notification consumer error", "err", err)
		}
	}()

	go func() {
		log.Info("Notification consumer started", "topic", m.topic)
		for {
			if err := m.notificationConsumer.Consume(ctx, []string{m.topic}, m.notificationHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.notificationConsumer.Close(); err != nil {
		log.Error("Failed to close notification consumer", "err", err)
	}
	return nil
}
