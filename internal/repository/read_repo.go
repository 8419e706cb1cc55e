package repository

import (
	"Courier/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const readStatusBatchSize = 500

// ReadResult 标记已读后的成员状态
type ReadResult struct {
	Marked      int64
	UnreadCount int64
	Watermark   uint64
	LastReadID  *string
}

type ReadRepo interface {
	MarkMessageRead(ctx context.Context, msg *model.Message, userID string, at time.Time) (*ReadResult, error)
	MarkConversationRead(ctx context.Context, convID, userID string, at time.Time) (*ReadResult, error)
	IsRead(ctx context.Context, msgID, userID string) (bool, error)
}

type readRepoImpl struct {
	db *gorm.DB
}

func NewReadRepo(db *gorm.DB) ReadRepo {
	return &readRepoImpl{db: db}
}

// MarkMessageRead 幂等地写入单条已读记录
// 首次写入且该消息仍计入未读 (他人发送, 未删除, 高于已读水位) 时未读数 -1
func (s *readRepoImpl) MarkMessageRead(ctx context.Context, msg *model.Message, userID string, at time.Time) (*ReadResult, error) {
	result := &ReadResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 成员行加锁在前, 与整会话已读保持相同的加锁顺序
		var member model.ConversationMember
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ? AND user_id = ?", msg.ConversationID, userID).
			First(&member).Error; err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.MessageReadStatus{
			MessageID: msg.ID,
			UserID:    userID,
			ReadAt:    at,
		})
		if res.Error != nil {
			return res.Error
		}
		result.Marked = res.RowsAffected
		result.UnreadCount = member.UnreadCount
		result.Watermark = member.LastReadSeq

		if res.RowsAffected == 0 || msg.SenderID == userID || msg.IsDeleted || msg.Seq <= member.LastReadSeq {
			return nil
		}
		dec := tx.Model(&model.ConversationMember{}).
			Where("id = ? AND unread_count > 0", member.ID).
			Update("unread_count", gorm.Expr("unread_count - 1"))
		if dec.Error != nil {
			return dec.Error
		}
		if dec.RowsAffected > 0 {
			result.UnreadCount--
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "mark message read")
	}
	return result, nil
}

// MarkConversationRead 将会话内截至当前最大 seq 的他人消息全部标记已读, 并将未读数清零
// 水位之后提交的消息不会被本次清零覆盖, 其未读增量在成员行锁释放后生效
func (s *readRepoImpl) MarkConversationRead(ctx context.Context, convID, userID string, at time.Time) (*ReadResult, error) {
	result := &ReadResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member model.ConversationMember
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ? AND user_id = ?", convID, userID).
			First(&member).Error; err != nil {
			return err
		}

		var watermark uint64
		if err := tx.Model(&model.Conversation{}).Select("max_msg_seq").
			Where("id = ?", convID).Scan(&watermark).Error; err != nil {
			return err
		}

		var ids []string
		err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND seq <= ? AND is_deleted = ? AND sender_id <> ?", convID, watermark, false, userID).
			Where("NOT EXISTS (?)", tx.Model(&model.MessageReadStatus{}).Select("1").
				Where("message_read_statuses.message_id = messages.id AND message_read_statuses.user_id = ?", userID)).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}

		if len(ids) > 0 {
			rows := make([]model.MessageReadStatus, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, model.MessageReadStatus{MessageID: id, UserID: userID, ReadAt: at})
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, readStatusBatchSize)
			if res.Error != nil {
				return res.Error
			}
			result.Marked = res.RowsAffected
		}

		updates := map[string]interface{}{
			"unread_count":  0,
			"last_read_seq": watermark,
			"last_seen_at":  at,
		}
		if watermark > 0 {
			var lastID string
			if err := tx.Model(&model.Message{}).Select("id").
				Where("conversation_id = ? AND seq = ?", convID, watermark).
				Scan(&lastID).Error; err != nil {
				return err
			}
			if lastID != "" {
				updates["last_read_message_id"] = lastID
				result.LastReadID = &lastID
			}
		}
		if watermark < member.LastReadSeq {
			updates["last_read_seq"] = member.LastReadSeq
			watermark = member.LastReadSeq
		}
		result.Watermark = watermark

		return tx.Model(&model.ConversationMember{}).Where("id = ?", member.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "mark conversation read")
	}
	return result, nil
}

func (s *readRepoImpl) IsRead(ctx context.Context, msgID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.MessageReadStatus{}).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		Count(&count).Error
	return count > 0, errors.Wrap(err, "check read status")
}
