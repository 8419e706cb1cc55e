package sender

import (
	"Courier/internal/model"
	"Courier/internal/realtime"
	"context"
	"errors"
)

// WebSender 站内渠道: 推送到接收者的个人组, 站内信箱本身即持久化的通知记录
type WebSender struct {
	broadcaster realtime.Broadcaster
}

func NewWebSender(broadcaster realtime.Broadcaster) *WebSender {
	return &WebSender{broadcaster: broadcaster}
}

func (s *WebSender) Channel() string {
	return model.ChannelWeb
}

func (s *WebSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.Frame) == 0 {
		return Permanent(errors.New("empty web frame"))
	}
	env := &realtime.Envelope{Group: realtime.UserGroup(msg.RecipientID), Payload: msg.Frame}
	return s.broadcaster.Publish(ctx, env)
}
