package repository

import (
	"Courier/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ConversationFilter 会话列表筛选条件
type ConversationFilter struct {
	Type     string
	JobID    string
	BidID    string
	Archived *bool
	Offset   int
	Limit    int
}

// ConversationStats 会话统计
type ConversationStats struct {
	TotalConversations  int64
	UnreadConversations int64
	TotalUnreadMessages int64
}

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []string) error
	GetConversation(ctx context.Context, convID string) (*model.Conversation, error)
	GetConversationByDirectKey(ctx context.Context, directKey string) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, convID string, updates map[string]interface{}) error

	GetMember(ctx context.Context, convID, userID string) (*model.ConversationMember, error)
	GetMembers(ctx context.Context, convID string) ([]*model.ConversationMember, error)
	UpdateMember(ctx context.Context, convID, userID string, updates map[string]interface{}) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error

	GetUserConversationMemList(ctx context.Context, userID string, filter ConversationFilter) ([]*model.ConversationMember, int64, error)
	GetActiveConversationIDs(ctx context.Context, userID string) ([]string, error)
	GetStats(ctx context.Context, userID string) (*ConversationStats, error)
	GetOfflineUnreadMembers(ctx context.Context, seenBefore time.Time, limit int) ([]*model.ConversationMember, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 开启事务创建会话及初始成员
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		members := make([]*model.ConversationMember, 0, len(memberIDs))
		for _, uid := range memberIDs {
			members = append(members, &model.ConversationMember{
				ConversationID: conv.ID,
				UserID:         uid,
				JoinedAt:       now,
			})
		}
		return tx.Create(&members).Error
	})
	return errors.Wrap(err, "create conversation")
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", convID).First(&conv).Error; err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return &conv, nil
}

// GetConversationByDirectKey 根据单聊标识获取会话
func (s *conversationRepoImpl) GetConversationByDirectKey(ctx context.Context, directKey string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).Where("direct_key = ?", directKey).First(&conv).Error; err != nil {
		return nil, errors.Wrap(err, "get conversation by direct key")
	}
	return &conv, nil
}

func (s *conversationRepoImpl) UpdateConversation(ctx context.Context, convID string, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", convID).Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update conversation")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(gorm.ErrRecordNotFound, "update conversation")
	}
	return nil
}

// GetMember 获取成员记录, 同时装配会话
func (s *conversationRepoImpl) GetMember(ctx context.Context, convID, userID string) (*model.ConversationMember, error) {
	var member model.ConversationMember
	err := s.db.WithContext(ctx).Preload("Conversation").
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&member).Error
	if err != nil {
		return nil, errors.Wrap(err, "get conversation member")
	}
	return &member, nil
}

func (s *conversationRepoImpl) GetMembers(ctx context.Context, convID string) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).Where("conversation_id = ?", convID).Order("id ASC").Find(&members).Error
	return members, errors.Wrap(err, "get conversation members")
}

// UpdateMember 修改个人会话设置
func (s *conversationRepoImpl) UpdateMember(ctx context.Context, convID, userID string, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update conversation member")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(gorm.ErrRecordNotFound, "update conversation member")
	}
	return nil
}

// TouchLastSeen 更新用户在所有会话中的最后在线时间
func (s *conversationRepoImpl) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("user_id = ?", userID).
		Update("last_seen_at", at).Error
	return errors.Wrap(err, "touch last seen")
}

// GetUserConversationMemList 联表查询用户的会话, 置顶优先, 其次按最后消息时间倒序
func (s *conversationRepoImpl) GetUserConversationMemList(ctx context.Context, userID string, filter ConversationFilter) ([]*model.ConversationMember, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Joins("JOIN conversations c ON conversation_members.conversation_id = c.id").
			Where("conversation_members.user_id = ?", userID)
		if filter.Type != "" {
			db = db.Where("c.type = ?", filter.Type)
		}
		if filter.JobID != "" {
			db = db.Where("c.job_id = ?", filter.JobID)
		}
		if filter.BidID != "" {
			db = db.Where("c.bid_id = ?", filter.BidID)
		}
		if filter.Archived != nil {
			db = db.Where("conversation_members.is_archived = ?", *filter.Archived)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count user conversations")
	}

	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).Scopes(scope).
		Select("conversation_members.*").
		Preload("Conversation").
		Order("conversation_members.is_pinned DESC").
		Order("c.last_message_at IS NULL").
		Order("c.last_message_at DESC").
		Order("c.created_at DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&members).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list user conversations")
	}
	return members, total, nil
}

// GetActiveConversationIDs 用户参与的处于活跃状态的会话
func (s *conversationRepoImpl) GetActiveConversationIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Joins("JOIN conversations c ON conversation_members.conversation_id = c.id").
		Where("conversation_members.user_id = ? AND c.is_active = ?", userID, true).
		Pluck("conversation_members.conversation_id", &ids).Error
	return ids, errors.Wrap(err, "get active conversation ids")
}

// GetStats 统计活跃会话与未读数
func (s *conversationRepoImpl) GetStats(ctx context.Context, userID string) (*ConversationStats, error) {
	var stats ConversationStats
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Joins("JOIN conversations c ON conversation_members.conversation_id = c.id").
		Where("conversation_members.user_id = ? AND c.is_active = ?", userID, true).
		Select("COUNT(*) AS total_conversations, " +
			"COALESCE(SUM(CASE WHEN conversation_members.unread_count > 0 THEN 1 ELSE 0 END), 0) AS unread_conversations, " +
			"COALESCE(SUM(conversation_members.unread_count), 0) AS total_unread_messages").
		Scan(&stats).Error
	if err != nil {
		return nil, errors.Wrap(err, "get conversation stats")
	}
	return &stats, nil
}

// GetOfflineUnreadMembers 有未读且长时间未上线的成员 (不含免打扰)
func (s *conversationRepoImpl) GetOfflineUnreadMembers(ctx context.Context, seenBefore time.Time, limit int) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Joins("JOIN conversations c ON conversation_members.conversation_id = c.id").
		Where("conversation_members.unread_count > 0 AND conversation_members.is_muted = ?", false).
		Where("(conversation_members.last_seen_at IS NULL OR conversation_members.last_seen_at < ?)", seenBefore).
		Where("c.is_active = ?", true).
		Select("conversation_members.*").
		Preload("Conversation").
		Order("conversation_members.id ASC").
		Limit(limit).
		Find(&members).Error
	return members, errors.Wrap(err, "get offline unread members")
}
