package repository

import (
	"Courier/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationFilter 通知列表筛选条件
type NotificationFilter struct {
	Status   string
	TypeName string
	Priority string
	Offset   int
	Limit    int
}

// NotificationStats 通知统计
type NotificationStats struct {
	Total  int64
	Unread int64
	Read   int64
}

var openNotificationStatuses = []string{
	model.NotificationStatusPending,
	model.NotificationStatusSent,
	model.NotificationStatusDelivered,
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n *model.Notification, channelIDs []uint64, maxAttempts int) ([]*model.NotificationDelivery, error)
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, filter NotificationFilter) ([]*model.Notification, int64, error)
	GetStats(ctx context.Context, recipientID string) (*NotificationStats, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailedIfExhausted(ctx context.Context, id string) (bool, error)
	DeleteNotification(ctx context.Context, id string) error
	HasOpenByData(ctx context.Context, recipientID string, typeID uint64, key, value string) (bool, error)
}

type notificationRepoImpl struct {
	db *gorm.DB
}

func NewNotificationRepo(db *gorm.DB) NotificationRepo {
	return &notificationRepoImpl{db: db}
}

// CreateNotification 事务内创建通知及每个渠道的投递记录
func (s *notificationRepoImpl) CreateNotification(ctx context.Context, n *model.Notification, channelIDs []uint64, maxAttempts int) ([]*model.NotificationDelivery, error) {
	deliveries := make([]*model.NotificationDelivery, 0, len(channelIDs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(n).Error; err != nil {
			return err
		}
		if len(channelIDs) == 0 {
			return nil
		}
		for _, cid := range channelIDs {
			deliveries = append(deliveries, &model.NotificationDelivery{
				NotificationID: n.ID,
				ChannelID:      cid,
				Status:         model.DeliveryStatusPending,
				MaxAttempts:    maxAttempts,
			})
		}
		return tx.Omit(clause.Associations).Create(&deliveries).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create notification")
	}
	return deliveries, nil
}

func (s *notificationRepoImpl) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.WithContext(ctx).Preload("NotificationType").Where("id = ?", id).First(&n).Error; err != nil {
		return nil, errors.Wrap(err, "get notification")
	}
	return &n, nil
}

// ListNotifications 按创建时间倒序分页
func (s *notificationRepoImpl) ListNotifications(ctx context.Context, recipientID string, filter NotificationFilter) ([]*model.Notification, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("notifications.recipient_id = ?", recipientID)
		if filter.Status != "" {
			db = db.Where("notifications.status = ?", filter.Status)
		}
		if filter.Priority != "" {
			db = db.Where("notifications.priority = ?", filter.Priority)
		}
		if filter.TypeName != "" {
			db = db.Joins("JOIN notification_types t ON notifications.notification_type_id = t.id").
				Where("t.name = ?", filter.TypeName)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Notification{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count notifications")
	}

	var list []*model.Notification
	err := s.db.WithContext(ctx).Model(&model.Notification{}).Scopes(scope).
		Select("notifications.*").
		Preload("NotificationType").
		Order("notifications.created_at DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list notifications")
	}
	return list, total, nil
}

func (s *notificationRepoImpl) GetStats(ctx context.Context, recipientID string) (*NotificationStats, error) {
	var stats NotificationStats
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ?", recipientID).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN status IN ? THEN 1 ELSE 0 END), 0) AS unread, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS `read`",
			openNotificationStatuses, model.NotificationStatusRead).
		Scan(&stats).Error
	if err != nil {
		return nil, errors.Wrap(err, "get notification stats")
	}
	return &stats, nil
}

// MarkRead 仅未读状态可迁移到 read, 返回是否发生变更
func (s *notificationRepoImpl) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ? AND status IN ?", id, recipientID, openNotificationStatuses).
		Updates(map[string]interface{}{"status": model.NotificationStatusRead, "read_at": at})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark notification read")
	}
	return res.RowsAffected > 0, nil
}

func (s *notificationRepoImpl) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND status IN ?", recipientID, openNotificationStatuses).
		Updates(map[string]interface{}{"status": model.NotificationStatusRead, "read_at": at})
	return res.RowsAffected, errors.Wrap(res.Error, "mark all notifications read")
}

// MarkSent pending -> sent
func (s *notificationRepoImpl) MarkSent(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND status = ?", id, model.NotificationStatusPending).
		Updates(map[string]interface{}{"status": model.NotificationStatusSent, "sent_at": at}).Error
	return errors.Wrap(err, "mark notification sent")
}

// MarkDelivered pending/sent -> delivered, 已读的通知不回退
func (s *notificationRepoImpl) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND status IN ?", id, []string{model.NotificationStatusPending, model.NotificationStatusSent}).
		Updates(map[string]interface{}{
			"status":       model.NotificationStatusDelivered,
			"delivered_at": at,
			"sent_at":      gorm.Expr("COALESCE(sent_at, ?)", at),
		}).Error
	return errors.Wrap(err, "mark notification delivered")
}

// MarkFailedIfExhausted 所有渠道均终态失败时, pending/sent -> failed
func (s *notificationRepoImpl) MarkFailedIfExhausted(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND status IN ?", id, []string{model.NotificationStatusPending, model.NotificationStatusSent}).
		Where("NOT EXISTS (?)", s.db.Model(&model.NotificationDelivery{}).
			Select("1").
			Where("notification_id = ? AND status <> ?", id, model.DeliveryStatusFailed)).
		Update("status", model.NotificationStatusFailed)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark notification failed")
	}
	return res.RowsAffected > 0, nil
}

// DeleteNotification 删除通知及其投递记录
func (s *notificationRepoImpl) DeleteNotification(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("notification_id = ?", id).Delete(&model.NotificationDelivery{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Notification{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return errors.Wrap(err, "delete notification")
}

// HasOpenByData 是否存在 data[key] == value 且尚未读的同类通知
func (s *notificationRepoImpl) HasOpenByData(ctx context.Context, recipientID string, typeID uint64, key, value string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND notification_type_id = ? AND status IN ?", recipientID, typeID, openNotificationStatuses).
		Where(datatypes.JSONQuery("data").Equals(value, key)).
		Count(&count).Error
	return count > 0, errors.Wrap(err, "check open notification")
}
