package realtime

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster 多实例部署时经由 Redis Pub/Sub 广播, 每个实例订阅同一频道后投递到本地 Hub
type RedisBroadcaster struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
}

func NewRedisBroadcaster(rdb *redis.Client, channel string, hub *Hub) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, channel: channel, hub: hub}
}

// Publish 依次同步发布, 保证同一调用方的顺序
func (b *RedisBroadcaster) Publish(ctx context.Context, envs ...*Envelope) error {
	for _, env := range envs {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode envelope: %w", err)
		}
		if err = b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
			return fmt.Errorf("publish envelope: %w", err)
		}
	}
	return nil
}

// Run 订阅频道并投递到本地 Hub, 直到 ctx 结束
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer func() {
		_ = pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	log.Info("Fan-out subscriber started", "channel", b.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("Fan-out subscriber stopping...")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error("Failed to decode fan-out envelope", "err", err)
				continue
			}
			b.hub.Deliver(&env)
		}
	}
}
