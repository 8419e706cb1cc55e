package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/es"
	"Courier/internal/pkg/metrics"
	"Courier/internal/pkg/util"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// SendMessage 校验 -> 落库(分配 seq) -> 广播, 落库与广播在会话锁内完成
// 索引与离线通知在提交后异步进行
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID string, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	content, err := s.validateContent(req.Content)
	if err != nil {
		metrics.RecordMessage("send", "rejected")
		return nil, err
	}
	msgType := req.MessageType
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if _, ok := model.MessageTypes[msgType]; !ok {
		metrics.RecordMessage("send", "rejected")
		return nil, ErrMessageTypeInvalid
	}
	if err = util.ValidateDTO(req); err != nil {
		metrics.RecordMessage("send", "rejected")
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	member, err := s.requireMember(ctx, req.ConversationID, senderID)
	if err != nil {
		metrics.RecordMessage("send", "rejected")
		return nil, err
	}
	conv := &member.Conversation
	if !conv.IsActive {
		metrics.RecordMessage("send", "rejected")
		return nil, ErrConversationInactive
	}

	if req.ReplyTo != nil && *req.ReplyTo != "" {
		parent, err := s.messageRepo.GetMessage(ctx, *req.ReplyTo)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if parent == nil || parent.ConversationID != conv.ID {
			metrics.RecordMessage("send", "rejected")
			return nil, ErrReplyInvalid
		}
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		MessageType:    msgType,
		Content:        content,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileSize:       req.FileSize,
	}
	if req.ReplyTo != nil && *req.ReplyTo != "" {
		msg.ReplyToID = req.ReplyTo
	}

	lock := s.lockFor(conv.ID)
	lock.Lock()
	if err = s.messageRepo.CreateMessage(ctx, msg); err != nil {
		lock.Unlock()
		metrics.RecordMessage("send", "failed")
		if errors.Is(err, repository.ErrConversationClosed) {
			return nil, ErrConversationInactive
		}
		log.ErrorContext(ctx, "persist message failed", "conversation_id", conv.ID, "sender_id", senderID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	msg.UpdatedAt = msg.CreatedAt
	res := toMessageDTO(msg)
	s.broadcastMessage(ctx, conv, res)
	lock.Unlock()

	metrics.RecordMessage("send", "ok")
	log.InfoContext(ctx, "message sent", "conversation_id", conv.ID, "message_id", msg.ID, "seq", msg.Seq)

	s.async(ctx, func(bgCtx context.Context) {
		s.indexMessage(bgCtx, msg)
		s.notifyParticipants(bgCtx, conv, msg)
	})
	return res, nil
}

// EditMessage 仅发送者可编辑, 已删除的消息不可编辑
func (s *imServiceImpl) EditMessage(ctx context.Context, userID, msgID string, req *dto.EditMessageReq) (*dto.MessageDTO, error) {
	content, err := s.validateContent(req.Content)
	if err != nil {
		return nil, err
	}
	msg, err := s.loadOwnMessage(ctx, userID, msgID)
	if err != nil {
		return nil, err
	}

	participants := s.participantsOf(ctx, msg.ConversationID)
	now := time.Now().UTC()
	lock := s.lockFor(msg.ConversationID)
	lock.Lock()
	if err = s.messageRepo.UpdateContent(ctx, msg.ID, content, now); err != nil {
		lock.Unlock()
		metrics.RecordMessage("edit", "failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageDeleted
		}
		return nil, err
	}
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	msg.UpdatedAt = now
	s.broadcastUpdate(ctx, msg, participants, dto.UpdateTypeEdited)
	lock.Unlock()

	metrics.RecordMessage("edit", "ok")
	s.async(ctx, func(bgCtx context.Context) {
		s.indexMessage(bgCtx, msg)
	})
	return toMessageDTO(msg), nil
}

// DeleteMessage 软删除, 仅发送者可操作
func (s *imServiceImpl) DeleteMessage(ctx context.Context, userID, msgID string) error {
	msg, err := s.loadOwnMessage(ctx, userID, msgID)
	if err != nil {
		return err
	}

	participants := s.participantsOf(ctx, msg.ConversationID)
	now := time.Now().UTC()
	lock := s.lockFor(msg.ConversationID)
	lock.Lock()
	if err = s.messageRepo.SoftDelete(ctx, msg.ID, now); err != nil {
		lock.Unlock()
		metrics.RecordMessage("delete", "failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageDeleted
		}
		return err
	}
	msg.IsDeleted = true
	msg.DeletedAt = &now
	msg.UpdatedAt = now
	s.broadcastUpdate(ctx, msg, participants, dto.UpdateTypeDeleted)
	lock.Unlock()

	metrics.RecordMessage("delete", "ok")
	s.async(ctx, func(bgCtx context.Context) {
		if s.messageIndex == nil {
			return
		}
		if err := s.messageIndex.DeleteMessage(bgCtx, msg.ID); err != nil {
			log.WarnContext(bgCtx, "remove message from index failed", "message_id", msg.ID, "err", err)
		}
	})
	return nil
}

// GetHistory 按 seq 倒序分页, 不包含已删除消息
func (s *imServiceImpl) GetHistory(ctx context.Context, userID, convID string, q *dto.HistoryQuery) ([]*dto.MessageDTO, error) {
	if _, err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}
	_, size, _ := util.ClampPage(1, q.PageSize, s.opts.DefaultPageSize, s.opts.MaxPageSize)
	msgs, err := s.messageRepo.GetHistory(ctx, convID, q.BeforeSeq, size)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, toMessageDTO(m))
	}
	return res, nil
}

// SearchMessages 在用户参与的会话内检索, 优先使用 ES, 失败时回退到数据库
func (s *imServiceImpl) SearchMessages(ctx context.Context, userID string, q *dto.SearchQuery) ([]*dto.MessageDTO, error) {
	keyword := util.Normalize(q.Q)
	if keyword == "" {
		return nil, ErrSearchQueryEmpty
	}

	convIDs, err := s.convRepo.GetActiveConversationIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if q.ConversationID != "" {
		found := false
		for _, id := range convIDs {
			if id == q.ConversationID {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotConversationMember
		}
		convIDs = []string{q.ConversationID}
	}
	if len(convIDs) == 0 {
		return []*dto.MessageDTO{}, nil
	}

	var msgs []*model.Message
	indexed := false
	if s.messageIndex != nil {
		msgs, err = s.searchIndex(ctx, convIDs, keyword)
		if err != nil {
			log.WarnContext(ctx, "message index search failed, falling back to database", "err", err)
		} else {
			indexed = true
		}
	}
	if !indexed {
		msgs, err = s.messageRepo.SearchMessages(ctx, convIDs, keyword, s.opts.SearchLimit)
		if err != nil {
			return nil, err
		}
	}

	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, toMessageDTO(m))
	}
	return res, nil
}

func (s *imServiceImpl) searchIndex(ctx context.Context, convIDs []string, keyword string) ([]*model.Message, error) {
	hits, err := s.messageIndex.SearchMessages(ctx, convIDs, keyword, s.opts.SearchLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	list, err := s.messageRepo.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Message, len(list))
	for _, m := range list {
		byID[m.ID] = m
	}
	// 保持检索结果的相关度顺序, 索引滞后时跳过已删除的消息
	res := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok && !m.IsDeleted {
			res = append(res, m)
		}
	}
	return res, nil
}

func (s *imServiceImpl) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrContentEmpty
	}
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

func (s *imServiceImpl) loadOwnMessage(ctx context.Context, userID, msgID string) (*model.Message, error) {
	msg, err := s.messageRepo.GetMessage(ctx, msgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageSender
	}
	if msg.IsDeleted {
		return nil, ErrMessageDeleted
	}
	return msg, nil
}

// broadcastMessage 推送到会话组, 并推送到参与者个人组中未打开该会话的连接
func (s *imServiceImpl) broadcastMessage(ctx context.Context, conv *model.Conversation, msg *dto.MessageDTO) {
	convGroup := realtime.ConversationGroup(conv.ID)
	env, err := realtime.NewEnvelope(convGroup, &dto.MessageFrame{
		FrameHeader: realtime.NewHeader(dto.FrameMessage),
		Message:     msg,
	})
	if err != nil {
		log.ErrorContext(ctx, "encode message frame failed", "message_id", msg.ID, "err", err)
		return
	}

	envs := make([]*realtime.Envelope, 0, len(conv.Participants)+1)
	envs = append(envs, env)
	for _, uid := range conv.Participants {
		envs = append(envs, env.Retarget(realtime.UserGroup(uid)).Except(convGroup))
	}
	if err = s.broadcaster.Publish(context.WithoutCancel(ctx), envs...); err != nil {
		log.ErrorContext(ctx, "broadcast message failed", "message_id", msg.ID, "err", err)
	}
}

// participantsOf 查询失败时只推送到会话组
func (s *imServiceImpl) participantsOf(ctx context.Context, convID string) []string {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		log.WarnContext(ctx, "load participants for fan-out failed", "conversation_id", convID, "err", err)
		return nil
	}
	return conv.Participants
}

// broadcastUpdate 与 broadcastMessage 相同的扇出: 会话组 + 未加入会话组的个人组
func (s *imServiceImpl) broadcastUpdate(ctx context.Context, msg *model.Message, participants []string, updateType string) {
	update := &dto.MessageUpdateDTO{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UpdateType:     updateType,
		IsEdited:       msg.IsEdited,
		IsDeleted:      msg.IsDeleted,
		UpdatedAt:      msg.UpdatedAt,
	}
	if updateType == dto.UpdateTypeEdited {
		content := msg.Content
		update.Content = &content
	}
	convGroup := realtime.ConversationGroup(msg.ConversationID)
	env, err := realtime.NewEnvelope(convGroup, &dto.MessageUpdateFrame{
		FrameHeader:      realtime.NewHeader(dto.FrameMessageUpdate),
		MessageUpdateDTO: update,
	})
	if err != nil {
		log.ErrorContext(ctx, "encode message update frame failed", "message_id", msg.ID, "err", err)
		return
	}

	envs := make([]*realtime.Envelope, 0, len(participants)+1)
	envs = append(envs, env)
	for _, uid := range participants {
		envs = append(envs, env.Retarget(realtime.UserGroup(uid)).Except(convGroup))
	}
	if err = s.broadcaster.Publish(context.WithoutCancel(ctx), envs...); err != nil {
		log.ErrorContext(ctx, "broadcast message update failed", "message_id", msg.ID, "err", err)
	}
}

func (s *imServiceImpl) indexMessage(ctx context.Context, msg *model.Message) {
	if s.messageIndex == nil {
		return
	}
	if err := s.messageIndex.IndexMessage(ctx, es.NewMessageES(msg)); err != nil {
		log.WarnContext(ctx, "index message failed", "message_id", msg.ID, "err", err)
	}
}

// notifyParticipants 为除发送者与免打扰成员外的参与者创建 new_message 通知
func (s *imServiceImpl) notifyParticipants(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	if s.notifier == nil {
		return
	}
	members, err := s.convRepo.GetMembers(ctx, conv.ID)
	if err != nil {
		log.WarnContext(ctx, "load conversation members failed", "conversation_id", conv.ID, "err", err)
		return
	}

	senderName := msg.SenderID
	if s.profiles != nil {
		if p, err := s.profiles.GetProfile(ctx, msg.SenderID); err == nil && p != nil {
			senderName = p.DisplayName()
		}
	}
	convTitle := conv.Title
	if convTitle == "" {
		convTitle = consts.DirectMessageTitle
	}

	for _, m := range members {
		if m.UserID == msg.SenderID || m.IsMuted {
			continue
		}
		_, err = s.notifier.CreateNotification(ctx, &dto.CreateNotificationReq{
			RecipientID: m.UserID,
			Type:        consts.NewMessageNotificationType,
			Title:       consts.NewMessageTitle,
			Message:     fmt.Sprintf("%s: %s", senderName, util.Truncate(msg.Content, consts.NewMessagePreviewRunes)),
			Data: map[string]any{
				"conversation_id":    conv.ID,
				"message_id":         msg.ID,
				"sender_id":          msg.SenderID,
				"sender_name":        senderName,
				"conversation_title": convTitle,
			},
			Priority:   model.PriorityNormal,
			ActionURL:  util.Ptr("/messages/" + conv.ID),
			ActionText: consts.ViewMessageText,
		})
		if err != nil {
			log.WarnContext(ctx, "create message notification failed",
				"conversation_id", conv.ID, "recipient_id", m.UserID, "err", err)
		}
	}
}
