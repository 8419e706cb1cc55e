package logger

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLoggerHook 记录 Redis 错误与慢命令
// 只记录命令名与键, 参数里可能有令牌或消息体
type RedisLoggerHook struct {
	slow time.Duration
}

func NewRedisLogger() *RedisLoggerHook {
	return &RedisLoggerHook{slow: 100 * time.Millisecond}
}

func (s *RedisLoggerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		if err != nil {
			log.ErrorContext(ctx, "Redis dial failed",
				log.String("redis_addr", addr),
				log.Duration("latency", time.Since(start)),
				log.Any("err", err),
			)
		}
		return conn, err
	}
}

func (s *RedisLoggerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		elapsed := time.Since(start)

		if quietRedisErr(cmd, err) {
			return err
		}
		fields := []any{
			log.String("redis_cmd", cmd.Name()),
			log.String("redis_key", redisKey(cmd)),
			log.Duration("latency", elapsed),
		}
		if err != nil {
			log.ErrorContext(ctx, "Redis command failed", append(fields, log.Any("err", err))...)
		} else if elapsed > s.slow {
			log.WarnContext(ctx, "Redis command slow", fields...)
		}
		return err
	}
}

func (s *RedisLoggerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)

		if err == nil && elapsed <= s.slow {
			return nil
		}
		fields := []any{
			log.Int("redis_cmd_count", len(cmds)),
			log.Duration("latency", elapsed),
		}
		if len(cmds) > 0 {
			fields = append(fields, log.String("redis_first_cmd", cmds[0].Name()))
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			log.ErrorContext(ctx, "Redis pipeline failed", append(fields, log.Any("err", err))...)
		} else if err == nil {
			log.WarnContext(ctx, "Redis pipeline slow", fields...)
		}
		return err
	}
}

// quietRedisErr 缓存未命中与旧版服务端不支持 CLIENT SETINFO 不算错误
func quietRedisErr(cmd redis.Cmder, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return true
	}
	return cmd.Name() == "client" && strings.Contains(err.Error(), "setinfo")
}

// redisKey 键或频道名, 鉴权类命令不输出
func redisKey(cmd redis.Cmder) string {
	switch cmd.Name() {
	case "auth", "hello", "client":
		return ""
	}
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	return fmt.Sprint(args[1])
}
