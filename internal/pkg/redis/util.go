package redis

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// Cache 基于 Redis 的键值缓存, 所有键均由调用方显式拼装
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Client 返回底层客户端
func (s *Cache) Client() *redis.Client {
	return s.rdb
}

// GetValue 获取字符串类型的值, 不存在返回 ErrMiss
func (s *Cache) GetValue(ctx context.Context, key string) (string, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return value, nil
}

// SetWithExpiration 设置键值对并设置过期时间
func (s *Cache) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.rdb.Set(ctx, key, value, expiration).Err()
}

// GetJSON 读取并反序列化
func (s *Cache) GetJSON(ctx context.Context, key string, dst any) error {
	value, err := s.GetValue(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), dst)
}

// SetJSON 序列化后写入
func (s *Cache) SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, data, expiration).Err()
}

// TrySet 仅当键不存在时写入, 用于去重
func (s *Cache) TrySet(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, expiration).Result()
}

// DeleteKey 删除一个或多个键
func (s *Cache) DeleteKey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Exists 判断键是否存在
func (s *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}
