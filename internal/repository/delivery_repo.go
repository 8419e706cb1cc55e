package repository

import (
	"Courier/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrDeliveryClosed 投递记录已是终态或已达最大次数
var ErrDeliveryClosed = errors.New("delivery is closed")

var retryableDeliveryStatuses = []string{model.DeliveryStatusPending, model.DeliveryStatusSent}

type DeliveryRepo interface {
	GetDelivery(ctx context.Context, id uint64) (*model.NotificationDelivery, error)
	GetByNotification(ctx context.Context, notificationID string) ([]*model.NotificationDelivery, error)
	BeginAttempt(ctx context.Context, id uint64, at time.Time) (int, error)
	MarkDelivered(ctx context.Context, id uint64, at time.Time) error
	MarkRetry(ctx context.Context, id uint64, errMsg string) error
	MarkFailed(ctx context.Context, id uint64, errMsg string, at time.Time) error
	GetStale(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.NotificationDelivery, error)
	FailExhausted(ctx context.Context, updatedBefore, at time.Time) (int64, error)
}

type deliveryRepoImpl struct {
	db *gorm.DB
}

func NewDeliveryRepo(db *gorm.DB) DeliveryRepo {
	return &deliveryRepoImpl{db: db}
}

func (s *deliveryRepoImpl) GetDelivery(ctx context.Context, id uint64) (*model.NotificationDelivery, error) {
	var d model.NotificationDelivery
	if err := s.db.WithContext(ctx).Preload("Channel").Where("id = ?", id).First(&d).Error; err != nil {
		return nil, errors.Wrap(err, "get delivery")
	}
	return &d, nil
}

func (s *deliveryRepoImpl) GetByNotification(ctx context.Context, notificationID string) ([]*model.NotificationDelivery, error) {
	var list []*model.NotificationDelivery
	err := s.db.WithContext(ctx).Preload("Channel").
		Where("notification_id = ?", notificationID).
		Order("id ASC").
		Find(&list).Error
	return list, errors.Wrap(err, "get deliveries by notification")
}

// BeginAttempt 原子地占用一次尝试机会, 返回本次是第几次尝试
func (s *deliveryRepoImpl) BeginAttempt(ctx context.Context, id uint64, at time.Time) (int, error) {
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.NotificationDelivery{}).
			Where("id = ? AND status IN ? AND attempts < max_attempts", id, retryableDeliveryStatuses).
			Updates(map[string]interface{}{
				"attempts": gorm.Expr("attempts + 1"),
				"status":   model.DeliveryStatusSent,
				"sent_at":  at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDeliveryClosed
		}
		return tx.Model(&model.NotificationDelivery{}).Select("attempts").Where("id = ?", id).Scan(&attempts).Error
	})
	if err != nil {
		return 0, errors.Wrap(err, "begin delivery attempt")
	}
	return attempts, nil
}

func (s *deliveryRepoImpl) MarkDelivered(ctx context.Context, id uint64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.DeliveryStatusDelivered,
			"delivered_at": at,
		}).Error
	return errors.Wrap(err, "mark delivery delivered")
}

// MarkRetry 记录失败原因, 回到 pending 等待重试
func (s *deliveryRepoImpl) MarkRetry(ctx context.Context, id uint64, errMsg string) error {
	err := s.db.WithContext(ctx).Model(&model.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.DeliveryStatusPending,
			"error_message": errMsg,
		}).Error
	return errors.Wrap(err, "mark delivery retry")
}

// MarkFailed 终态失败, 不再自动重试
func (s *deliveryRepoImpl) MarkFailed(ctx context.Context, id uint64, errMsg string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.NotificationDelivery{}).
		Where("id = ? AND status IN ?", id, retryableDeliveryStatuses).
		Updates(map[string]interface{}{
			"status":        model.DeliveryStatusFailed,
			"error_message": errMsg,
			"failed_at":     at,
		}).Error
	return errors.Wrap(err, "mark delivery failed")
}

// GetStale 长时间未推进且仍可重试的投递, 用于进程重启后的补偿
func (s *deliveryRepoImpl) GetStale(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.NotificationDelivery, error) {
	var list []*model.NotificationDelivery
	err := s.db.WithContext(ctx).Preload("Channel").
		Where("status IN ? AND attempts < max_attempts AND updated_at < ?", retryableDeliveryStatuses, updatedBefore).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, errors.Wrap(err, "get stale deliveries")
}

// FailExhausted 最后一次尝试已占用但结果未落库 (进程中断) 的投递直接置为失败
func (s *deliveryRepoImpl) FailExhausted(ctx context.Context, updatedBefore, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.NotificationDelivery{}).
		Where("status = ? AND attempts >= max_attempts AND updated_at < ?", model.DeliveryStatusSent, updatedBefore).
		Updates(map[string]interface{}{
			"status":        model.DeliveryStatusFailed,
			"error_message": "attempt outcome lost",
			"failed_at":     at,
		})
	return res.RowsAffected, errors.Wrap(res.Error, "fail exhausted deliveries")
}
