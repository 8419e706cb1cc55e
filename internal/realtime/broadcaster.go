package realtime

import "context"

// Broadcaster 将信封分发给订阅者, 调用返回时同一调用方发出的信封保持顺序
type Broadcaster interface {
	Publish(ctx context.Context, envs ...*Envelope) error
}

// LocalBroadcaster 单进程部署, 直接投递到本地 Hub
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(_ context.Context, envs ...*Envelope) error {
	for _, env := range envs {
		b.hub.Deliver(env)
	}
	return nil
}
