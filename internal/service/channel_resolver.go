package service

import (
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/redis"
	"Courier/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// ResolvedChannel 解析结果中的渠道
type ResolvedChannel struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// ChannelResolver 决定一条通知应走哪些渠道
type ChannelResolver interface {
	Resolve(ctx context.Context, userID string, typeID uint64) ([]ResolvedChannel, error)
	Invalidate(ctx context.Context, userID string, typeID uint64) error
}

// prefCacheEntry 偏好缓存, Exists=false 表示用户未设置 (同样缓存, 避免反复回源)
type prefCacheEntry struct {
	Exists   bool              `json:"exists"`
	Enabled  bool              `json:"enabled"`
	Channels []ResolvedChannel `json:"channels"`
}

type channelResolverImpl struct {
	prefRepo    repository.PreferenceRepo
	catalogRepo repository.CatalogRepo
	cache       *redis.Cache
	prefTTL     time.Duration
	typeTTL     time.Duration
}

// NewChannelResolver cache 为空时直接回源
func NewChannelResolver(prefRepo repository.PreferenceRepo, catalogRepo repository.CatalogRepo, cache *redis.Cache, prefTTL, typeTTL time.Duration) ChannelResolver {
	return &channelResolverImpl{
		prefRepo:    prefRepo,
		catalogRepo: catalogRepo,
		cache:       cache,
		prefTTL:     prefTTL,
		typeTTL:     typeTTL,
	}
}

func PrefCacheKey(userID string, typeID uint64) string {
	return fmt.Sprintf("%s%s:%d", consts.NotifyPrefKey, userID, typeID)
}

func TypeChannelsCacheKey(typeID uint64) string {
	return fmt.Sprintf("%s%d", consts.NotifyTypeChannelsKey, typeID)
}

// Resolve 偏好存在且关闭 -> 空集; 偏好存在且开启 -> 偏好渠道; 否则 -> 类型默认渠道
// 结果仅包含启用中的渠道, 去重并按固定顺序排列
func (s *channelResolverImpl) Resolve(ctx context.Context, userID string, typeID uint64) ([]ResolvedChannel, error) {
	pref, err := s.loadPreference(ctx, userID, typeID)
	if err != nil {
		return nil, err
	}
	if pref.Exists {
		if !pref.Enabled {
			return []ResolvedChannel{}, nil
		}
		return orderChannels(pref.Channels), nil
	}

	defaults, err := s.loadTypeChannels(ctx, typeID)
	if err != nil {
		return nil, err
	}
	return orderChannels(defaults), nil
}

// Invalidate 偏好写入后同步删除对应缓存键
func (s *channelResolverImpl) Invalidate(ctx context.Context, userID string, typeID uint64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteKey(ctx, PrefCacheKey(userID, typeID))
}

func (s *channelResolverImpl) loadPreference(ctx context.Context, userID string, typeID uint64) (*prefCacheEntry, error) {
	key := PrefCacheKey(userID, typeID)
	var entry prefCacheEntry
	if s.cache != nil {
		err := s.cache.GetJSON(ctx, key, &entry)
		if err == nil {
			return &entry, nil
		}
		if !errors.Is(err, redis.ErrMiss) {
			log.WarnContext(ctx, "preference cache read failed", "key", key, "err", err)
		}
	}

	pref, err := s.prefRepo.GetPreference(ctx, userID, typeID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry = prefCacheEntry{Exists: false}
	case err != nil:
		return nil, err
	default:
		entry = prefCacheEntry{
			Exists:   true,
			Enabled:  pref.IsEnabled,
			Channels: activeChannels(pref.Channels),
		}
	}

	if s.cache != nil {
		if err = s.cache.SetJSON(ctx, key, &entry, s.prefTTL); err != nil {
			log.WarnContext(ctx, "preference cache write failed", "key", key, "err", err)
		}
	}
	return &entry, nil
}

func (s *channelResolverImpl) loadTypeChannels(ctx context.Context, typeID uint64) ([]ResolvedChannel, error) {
	key := TypeChannelsCacheKey(typeID)
	var channels []ResolvedChannel
	if s.cache != nil {
		err := s.cache.GetJSON(ctx, key, &channels)
		if err == nil {
			return channels, nil
		}
		if !errors.Is(err, redis.ErrMiss) {
			log.WarnContext(ctx, "type channel cache read failed", "key", key, "err", err)
		}
	}

	nt, err := s.catalogRepo.GetTypeByID(ctx, typeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationTypeUnknown
		}
		return nil, err
	}
	channels = activeChannels(nt.DefaultChannels)

	if s.cache != nil {
		if err = s.cache.SetJSON(ctx, key, channels, s.typeTTL); err != nil {
			log.WarnContext(ctx, "type channel cache write failed", "key", key, "err", err)
		}
	}
	return channels, nil
}

func activeChannels(list []model.NotificationChannel) []ResolvedChannel {
	res := make([]ResolvedChannel, 0, len(list))
	for _, ch := range list {
		if !ch.IsActive {
			continue
		}
		res = append(res, ResolvedChannel{ID: ch.ID, Name: ch.Name})
	}
	return res
}

func orderChannels(list []ResolvedChannel) []ResolvedChannel {
	seen := make(map[string]struct{}, len(list))
	res := make([]ResolvedChannel, 0, len(list))
	for _, ch := range list {
		if _, ok := seen[ch.Name]; ok {
			continue
		}
		seen[ch.Name] = struct{}{}
		res = append(res, ch)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return channelRank(res[i].Name) < channelRank(res[j].Name)
	})
	return res
}

func channelRank(name string) int {
	if r, ok := model.ChannelRank[name]; ok {
		return r
	}
	return len(model.ChannelRank)
}

// ChannelNames 提取渠道名
func ChannelNames(list []ResolvedChannel) []string {
	names := make([]string, len(list))
	for i, ch := range list {
		names[i] = ch.Name
	}
	return names
}
