package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisKeyOmitsPayloadAndCredentials(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cmd  redis.Cmder
		want string
	}{
		{redis.NewIntCmd(ctx, "publish", "courier:fanout", `{"body":"secret"}`), "courier:fanout"},
		{redis.NewStringCmd(ctx, "get", "courier:blacklist:jti-1"), "courier:blacklist:jti-1"},
		{redis.NewStatusCmd(ctx, "auth", "user", "hunter2"), ""},
		{redis.NewStatusCmd(ctx, "ping"), ""},
	}
	for _, c := range cases {
		if got := redisKey(c.cmd); got != c.want {
			t.Fatalf("%s: key = %q, want %q", c.cmd.Name(), got, c.want)
		}
	}
}

func TestQuietRedisErr(t *testing.T) {
	ctx := context.Background()
	get := redis.NewStringCmd(ctx, "get", "k")
	if !quietRedisErr(get, redis.Nil) {
		t.Fatal("cache miss should not be logged")
	}
	if quietRedisErr(get, errors.New("connection refused")) {
		t.Fatal("real failures must be logged")
	}
	setinfo := redis.NewStatusCmd(ctx, "client", "setinfo", "lib-name", "go-redis")
	if !quietRedisErr(setinfo, errors.New("ERR unknown subcommand 'setinfo'")) {
		t.Fatal("setinfo on old servers should be ignored")
	}
}
