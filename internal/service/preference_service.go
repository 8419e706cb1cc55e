package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/util"
	"Courier/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"gorm.io/gorm"
)

// PreferenceService 用户通知偏好
type PreferenceService interface {
	GetPreferences(ctx context.Context, userID string) ([]*dto.PreferenceDTO, error)
	UpdatePreference(ctx context.Context, userID, typeName string, req *dto.UpdatePreferenceReq) (*dto.PreferenceDTO, error)
}

type preferenceServiceImpl struct {
	prefRepo    repository.PreferenceRepo
	catalogRepo repository.CatalogRepo
	resolver    ChannelResolver
}

func NewPreferenceService(prefRepo repository.PreferenceRepo, catalogRepo repository.CatalogRepo, resolver ChannelResolver) PreferenceService {
	return &preferenceServiceImpl{
		prefRepo:    prefRepo,
		catalogRepo: catalogRepo,
		resolver:    resolver,
	}
}

// GetPreferences 返回每个启用中的通知类型的生效配置, 未设置的类型按默认渠道返回
func (s *preferenceServiceImpl) GetPreferences(ctx context.Context, userID string) ([]*dto.PreferenceDTO, error) {
	types, err := s.catalogRepo.GetTypes(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := s.prefRepo.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[uint64]*model.UserNotificationPreference, len(prefs))
	for _, p := range prefs {
		byType[p.NotificationTypeID] = p
	}

	res := make([]*dto.PreferenceDTO, 0, len(types))
	for _, t := range types {
		if !t.IsActive {
			continue
		}
		if p, ok := byType[t.ID]; ok {
			res = append(res, &dto.PreferenceDTO{
				Type:        t.Name,
				Description: t.Description,
				IsEnabled:   p.IsEnabled,
				Channels:    ChannelNames(orderChannels(activeChannels(p.Channels))),
			})
			continue
		}
		res = append(res, &dto.PreferenceDTO{
			Type:        t.Name,
			Description: t.Description,
			IsEnabled:   true,
			Channels:    ChannelNames(orderChannels(activeChannels(t.DefaultChannels))),
			Default:     true,
		})
	}
	return res, nil
}

// UpdatePreference 覆盖偏好并同步失效解析缓存
func (s *preferenceServiceImpl) UpdatePreference(ctx context.Context, userID, typeName string, req *dto.UpdatePreferenceReq) (*dto.PreferenceDTO, error) {
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	if req.IsEnabled == nil {
		return nil, ErrParamInvalid
	}

	t, err := s.catalogRepo.GetTypeByName(ctx, typeName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationTypeUnknown
		}
		return nil, err
	}

	names := util.UniqueSorted(req.Channels)
	channels, err := s.catalogRepo.GetChannelsByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(channels) != len(names) {
		return nil, ErrChannelUnknown
	}

	pref, err := s.prefRepo.SavePreference(ctx, userID, t.ID, *req.IsEnabled, channels)
	if err != nil {
		return nil, err
	}
	if err = s.resolver.Invalidate(ctx, userID, t.ID); err != nil {
		// 写入已生效但缓存仍为旧值
		log.ErrorContext(ctx, "invalidate preference cache failed", "user_id", userID, "type", typeName, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &dto.PreferenceDTO{
		Type:        t.Name,
		Description: t.Description,
		IsEnabled:   pref.IsEnabled,
		Channels:    ChannelNames(orderChannels(activeChannels(pref.Channels))),
	}, nil
}
