package repository

import (
	"Courier/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrConversationClosed 会话不存在或已停用, 无法写入
var ErrConversationClosed = errors.New("conversation is closed")

type MessageRepo interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, msgID string) (*model.Message, error)
	GetMessageBySeq(ctx context.Context, convID string, seq uint64) (*model.Message, error)
	UpdateContent(ctx context.Context, msgID, content string, at time.Time) error
	SoftDelete(ctx context.Context, msgID string, at time.Time) error
	GetHistory(ctx context.Context, convID string, beforeSeq uint64, limit int) ([]*model.Message, error)
	SearchMessages(ctx context.Context, convIDs []string, keyword string, limit int) ([]*model.Message, error)
	GetMessagesByIDs(ctx context.Context, ids []string) ([]*model.Message, error)
	PurgeDeleted(ctx context.Context, deletedBefore time.Time, batch int) (int64, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// CreateMessage 在同一事务内完成定序、落库、发送者自读与其他成员未读数 +1
// 会话行的更新锁保证同一会话内的写入串行, 不同会话互不影响
func (s *messageRepoImpl) CreateMessage(ctx context.Context, msg *model.Message) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&model.Conversation{}).
			Where("id = ? AND is_active = ?", msg.ConversationID, true).
			Updates(map[string]interface{}{
				"max_msg_seq":     gorm.Expr("max_msg_seq + 1"),
				"last_message_at": now,
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConversationClosed
		}

		var seq uint64
		if err := tx.Model(&model.Conversation{}).Select("max_msg_seq").
			Where("id = ?", msg.ConversationID).Scan(&seq).Error; err != nil {
			return err
		}

		msg.Seq = seq
		msg.CreatedAt = now
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		if err := tx.Create(&model.MessageReadStatus{
			MessageID: msg.ID,
			UserID:    msg.SenderID,
			ReadAt:    now,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", msg.ConversationID, msg.SenderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	return errors.Wrap(err, "create message")
}

func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID string) (*model.Message, error) {
	var msg model.Message
	if err := s.db.WithContext(ctx).Where("id = ?", msgID).First(&msg).Error; err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	return &msg, nil
}

func (s *messageRepoImpl) GetMessageBySeq(ctx context.Context, convID string, seq uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Where("conversation_id = ? AND seq = ?", convID, seq).First(&msg).Error
	if err != nil {
		return nil, errors.Wrap(err, "get message by seq")
	}
	return &msg, nil
}

// UpdateContent 编辑未删除的消息
func (s *messageRepoImpl) UpdateContent(ctx context.Context, msgID, content string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND is_deleted = ?", msgID, false).
		Updates(map[string]interface{}{
			"content":    content,
			"is_edited":  true,
			"edited_at":  at,
			"updated_at": at,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update message content")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(gorm.ErrRecordNotFound, "update message content")
	}
	return nil
}

// SoftDelete 软删除, 已计入的未读数不做回溯修正
func (s *messageRepoImpl) SoftDelete(ctx context.Context, msgID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND is_deleted = ?", msgID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "soft delete message")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(gorm.ErrRecordNotFound, "soft delete message")
	}
	return nil
}

// GetHistory 按 seq 倒序拉取未删除的消息, beforeSeq 为 0 时从最新开始
func (s *messageRepoImpl) GetHistory(ctx context.Context, convID string, beforeSeq uint64, limit int) ([]*model.Message, error) {
	query := s.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", convID, false)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}
	var msgs []*model.Message
	err := query.Order("seq DESC").Limit(limit).Find(&msgs).Error
	return msgs, errors.Wrap(err, "get message history")
}

// SearchMessages 在给定会话范围内按关键字模糊匹配
func (s *messageRepoImpl) SearchMessages(ctx context.Context, convIDs []string, keyword string, limit int) ([]*model.Message, error) {
	if len(convIDs) == 0 {
		return nil, nil
	}
	var msgs []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ? AND is_deleted = ?", convIDs, false).
		Where("content LIKE ? ESCAPE '!'", "%"+escapeLike(keyword)+"%").
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, errors.Wrap(err, "search messages")
}

// GetMessagesByIDs 批量获取, 结果不保证顺序
func (s *messageRepoImpl) GetMessagesByIDs(ctx context.Context, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var msgs []*model.Message
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error
	return msgs, errors.Wrap(err, "get messages by ids")
}

// PurgeDeleted 物理删除软删除超过保留期的消息及其已读记录, 返回删除的消息数
func (s *messageRepoImpl) PurgeDeleted(ctx context.Context, deletedBefore time.Time, batch int) (int64, error) {
	var total int64
	for {
		var ids []string
		err := s.db.WithContext(ctx).Model(&model.Message{}).
			Where("is_deleted = ? AND deleted_at < ?", true, deletedBefore).
			Limit(batch).
			Pluck("id", &ids).Error
		if err != nil {
			return total, errors.Wrap(err, "select purgeable messages")
		}
		if len(ids) == 0 {
			return total, nil
		}

		var deleted int64
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("message_id IN ?", ids).Delete(&model.MessageReadStatus{}).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", ids).Delete(&model.Message{})
			deleted = res.RowsAffected
			return res.Error
		})
		if err != nil {
			return total, errors.Wrap(err, "purge messages")
		}
		total += deleted
		if len(ids) < batch {
			return total, nil
		}
	}
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '!' {
			out = append(out, '!')
		}
		out = append(out, r)
	}
	return string(out)
}
