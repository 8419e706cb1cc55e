package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"gorm.io/gorm"
)

// ReadService 已读回执与未读计数
type ReadService interface {
	MarkConversationRead(ctx context.Context, userID, conversationID string) (*dto.ReadResultDTO, error)
	MarkMessageRead(ctx context.Context, userID, messageID string) (*dto.ReadResultDTO, error)
}

type readServiceImpl struct {
	convRepo    repository.ConversationRepo
	messageRepo repository.MessageRepo
	readRepo    repository.ReadRepo
	broadcaster realtime.Broadcaster
}

func NewReadService(convRepo repository.ConversationRepo, messageRepo repository.MessageRepo, readRepo repository.ReadRepo, broadcaster realtime.Broadcaster) ReadService {
	return &readServiceImpl{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		readRepo:    readRepo,
		broadcaster: broadcaster,
	}
}

// MarkConversationRead 将当前水位以下的消息全部标记为已读并清零未读数
// 与并发发送交错时, 水位之后提交的消息留待下次计算
func (s *readServiceImpl) MarkConversationRead(ctx context.Context, userID, conversationID string) (*dto.ReadResultDTO, error) {
	if _, err := s.convRepo.GetMember(ctx, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConversationMember
		}
		return nil, err
	}

	res, err := s.readRepo.MarkConversationRead(ctx, conversationID, userID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConversationMember
		}
		return nil, err
	}

	s.publishReceipt(ctx, userID, conversationID, "")
	return &dto.ReadResultDTO{
		ConversationID: conversationID,
		Marked:         res.Marked,
		UnreadCount:    res.UnreadCount,
	}, nil
}

// MarkMessageRead 幂等, 重复调用不会产生新的已读记录
func (s *readServiceImpl) MarkMessageRead(ctx context.Context, userID, messageID string) (*dto.ReadResultDTO, error) {
	msg, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if _, err = s.convRepo.GetMember(ctx, msg.ConversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConversationMember
		}
		return nil, err
	}

	res, err := s.readRepo.MarkMessageRead(ctx, msg, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if res.Marked > 0 {
		s.publishReceipt(ctx, userID, msg.ConversationID, msg.ID)
	}
	return &dto.ReadResultDTO{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Marked:         res.Marked,
		UnreadCount:    res.UnreadCount,
	}, nil
}

func (s *readServiceImpl) publishReceipt(ctx context.Context, userID, conversationID, messageID string) {
	env, err := realtime.NewEnvelope(realtime.ConversationGroup(conversationID), &dto.ReadReceiptFrame{
		FrameHeader:    realtime.NewHeader(dto.FrameReadReceipt),
		UserID:         userID,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	if err != nil {
		log.ErrorContext(ctx, "encode read receipt failed", "err", err)
		return
	}
	if err = s.broadcaster.Publish(ctx, env.Exclude(userID)); err != nil {
		log.WarnContext(ctx, "publish read receipt failed", "conversation_id", conversationID, "err", err)
	}
}
