package userclient

import (
	"Courier/internal/api/config"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/redis"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

var ErrUserNotFound = errors.New("user not found")

// Profile 用户服务返回的资料
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatar_url"`
}

// DisplayName 优先全名, 其次用户名, 最后退回 ID
func (p *Profile) DisplayName() string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Username != "":
		return p.Username
	default:
		return p.ID
	}
}

// Client 用户服务客户端, 资料按用户缓存在 Redis
type Client struct {
	http  *resty.Client
	cache *redis.Cache
	ttl   time.Duration
}

func NewClient(cfg config.UsersServiceConfig, cache *redis.Cache) *Client {
	var httpClient *resty.Client
	if cfg.URL != "" {
		httpClient = resty.New().
			SetTimeout(5*time.Second).
			SetBaseURL(cfg.URL).
			SetAuthToken(cfg.ServiceToken).
			SetHeader("Accept", "application/json")
	}
	return &Client{
		http:  httpClient,
		cache: cache,
		ttl:   time.Duration(cfg.CacheTTL) * time.Second,
	}
}

// GetProfile 获取用户资料, 未配置用户服务时仅返回 ID
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if c.http == nil {
		return &Profile{ID: userID}, nil
	}

	key := consts.UserProfileKey + userID
	if c.cache != nil {
		var cached Profile
		err := c.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, redis.ErrMiss) {
			log.WarnContext(ctx, "Failed to read user profile cache", "user_id", userID, "err", err)
		}
	}

	var profile Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetResult(&profile).
		Get("/api/service/users/{id}/profile/")
	if err != nil {
		return nil, fmt.Errorf("fetch user profile: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch user profile: status %d", resp.StatusCode())
	}
	if profile.ID == "" {
		profile.ID = userID
	}

	if c.cache != nil {
		if err = c.cache.SetJSON(ctx, key, &profile, c.ttl); err != nil {
			log.WarnContext(ctx, "Failed to cache user profile", "user_id", userID, "err", err)
		}
	}
	return &profile, nil
}

// GetProfiles 并发获取多个用户资料, 单个失败时以仅含 ID 的资料代替
func (c *Client) GetProfiles(ctx context.Context, userIDs []string) map[string]*Profile {
	profiles := make([]*Profile, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, uid := range userIDs {
		g.Go(func() error {
			p, err := c.GetProfile(gctx, uid)
			if err != nil {
				log.WarnContext(ctx, "Failed to fetch user profile", "user_id", uid, "err", err)
				p = &Profile{ID: uid}
			}
			profiles[i] = p
			return nil
		})
	}
	_ = g.Wait()

	res := make(map[string]*Profile, len(userIDs))
	for i, uid := range userIDs {
		res[uid] = profiles[i]
	}
	return res
}
