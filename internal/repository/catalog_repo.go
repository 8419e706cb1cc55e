package repository

import (
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CatalogRepo 通知类型与渠道目录
type CatalogRepo interface {
	GetTypeByName(ctx context.Context, name string) (*model.NotificationType, error)
	GetTypeByID(ctx context.Context, id uint64) (*model.NotificationType, error)
	GetTypes(ctx context.Context) ([]*model.NotificationType, error)
	GetChannels(ctx context.Context) ([]model.NotificationChannel, error)
	GetChannelsByNames(ctx context.Context, names []string) ([]model.NotificationChannel, error)
	EnsureDefaults(ctx context.Context, channels []string, types []consts.NotificationTypeSeed) error
}

type catalogRepoImpl struct {
	db *gorm.DB
}

func NewCatalogRepo(db *gorm.DB) CatalogRepo {
	return &catalogRepoImpl{db: db}
}

func (s *catalogRepoImpl) GetTypeByName(ctx context.Context, name string) (*model.NotificationType, error) {
	var t model.NotificationType
	if err := s.db.WithContext(ctx).Preload("DefaultChannels").Where("name = ?", name).First(&t).Error; err != nil {
		return nil, errors.Wrap(err, "get notification type")
	}
	return &t, nil
}

func (s *catalogRepoImpl) GetTypeByID(ctx context.Context, id uint64) (*model.NotificationType, error) {
	var t model.NotificationType
	if err := s.db.WithContext(ctx).Preload("DefaultChannels").Where("id = ?", id).First(&t).Error; err != nil {
		return nil, errors.Wrap(err, "get notification type")
	}
	return &t, nil
}

func (s *catalogRepoImpl) GetTypes(ctx context.Context) ([]*model.NotificationType, error) {
	var list []*model.NotificationType
	err := s.db.WithContext(ctx).Preload("DefaultChannels").Order("id ASC").Find(&list).Error
	return list, errors.Wrap(err, "get notification types")
}

func (s *catalogRepoImpl) GetChannels(ctx context.Context) ([]model.NotificationChannel, error) {
	var list []model.NotificationChannel
	err := s.db.WithContext(ctx).Order("id ASC").Find(&list).Error
	return list, errors.Wrap(err, "get notification channels")
}

func (s *catalogRepoImpl) GetChannelsByNames(ctx context.Context, names []string) ([]model.NotificationChannel, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var list []model.NotificationChannel
	err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&list).Error
	return list, errors.Wrap(err, "get channels by names")
}

// EnsureDefaults 补齐缺失的渠道与通知类型, 已存在的记录保持原样
func (s *catalogRepoImpl) EnsureDefaults(ctx context.Context, channels []string, types []consts.NotificationTypeSeed) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]model.NotificationChannel, len(channels))
		for _, name := range channels {
			ch := model.NotificationChannel{}
			err := tx.Where(model.NotificationChannel{Name: name}).
				Attrs(model.NotificationChannel{IsActive: true}).
				FirstOrCreate(&ch).Error
			if err != nil {
				return err
			}
			byName[name] = ch
		}

		for _, seed := range types {
			var count int64
			if err := tx.Model(&model.NotificationType{}).Where("name = ?", seed.Name).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			t := model.NotificationType{
				Name:            seed.Name,
				Description:     seed.Description,
				TitleTemplate:   seed.TitleTemplate,
				MessageTemplate: seed.MessageTemplate,
				IsActive:        true,
			}
			for _, name := range seed.DefaultChannels {
				if ch, ok := byName[name]; ok {
					t.DefaultChannels = append(t.DefaultChannels, ch)
				}
			}
			if err := tx.Create(&t).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "ensure catalog defaults")
}
