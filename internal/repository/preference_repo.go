package repository

import (
	"Courier/internal/model"
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type PreferenceRepo interface {
	GetPreference(ctx context.Context, userID string, typeID uint64) (*model.UserNotificationPreference, error)
	GetUserPreferences(ctx context.Context, userID string) ([]*model.UserNotificationPreference, error)
	SavePreference(ctx context.Context, userID string, typeID uint64, enabled bool, channels []model.NotificationChannel) (*model.UserNotificationPreference, error)
}

type preferenceRepoImpl struct {
	db *gorm.DB
}

func NewPreferenceRepo(db *gorm.DB) PreferenceRepo {
	return &preferenceRepoImpl{db: db}
}

func (s *preferenceRepoImpl) GetPreference(ctx context.Context, userID string, typeID uint64) (*model.UserNotificationPreference, error) {
	var pref model.UserNotificationPreference
	err := s.db.WithContext(ctx).Preload("Channels").
		Where("user_id = ? AND notification_type_id = ?", userID, typeID).
		First(&pref).Error
	if err != nil {
		return nil, errors.Wrap(err, "get notification preference")
	}
	return &pref, nil
}

func (s *preferenceRepoImpl) GetUserPreferences(ctx context.Context, userID string) ([]*model.UserNotificationPreference, error) {
	var list []*model.UserNotificationPreference
	err := s.db.WithContext(ctx).Preload("Channels").Preload("NotificationType").
		Where("user_id = ?", userID).
		Find(&list).Error
	return list, errors.Wrap(err, "get user preferences")
}

// SavePreference 新建或覆盖偏好, 渠道集合整体替换
func (s *preferenceRepoImpl) SavePreference(ctx context.Context, userID string, typeID uint64, enabled bool, channels []model.NotificationChannel) (*model.UserNotificationPreference, error) {
	var pref model.UserNotificationPreference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(model.UserNotificationPreference{UserID: userID, NotificationTypeID: typeID}).
			Attrs(model.UserNotificationPreference{IsEnabled: enabled}).
			FirstOrCreate(&pref).Error
		if err != nil {
			return err
		}
		if err = tx.Model(&pref).Update("is_enabled", enabled).Error; err != nil {
			return err
		}
		if err = tx.Model(&pref).Association("Channels").Replace(channels); err != nil {
			return err
		}
		pref.Channels = channels
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "save notification preference")
	}
	return &pref, nil
}
