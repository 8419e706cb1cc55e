package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/realtime"
	"context"
)

// OnlineChecker 在线状态查询
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// PresenceService 输入状态等临时信号, 不落库也不重试
type PresenceService interface {
	Typing(ctx context.Context, userID, conversationID string, typing bool) error
	IsOnline(userID string) bool
}

type presenceServiceImpl struct {
	broadcaster realtime.Broadcaster
	online      OnlineChecker
}

func NewPresenceService(broadcaster realtime.Broadcaster, online OnlineChecker) PresenceService {
	return &presenceServiceImpl{broadcaster: broadcaster, online: online}
}

// Typing 转发给会话组内的其他用户, 不回显给发送者自己的连接
func (s *presenceServiceImpl) Typing(ctx context.Context, userID, conversationID string, typing bool) error {
	env, err := realtime.NewEnvelope(realtime.ConversationGroup(conversationID), &dto.TypingFrame{
		FrameHeader:    realtime.NewHeader(dto.FrameTyping),
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       typing,
	})
	if err != nil {
		return err
	}
	return s.broadcaster.Publish(ctx, env.Exclude(userID))
}

func (s *presenceServiceImpl) IsOnline(userID string) bool {
	if s.online == nil {
		return false
	}
	return s.online.IsOnline(userID)
}
