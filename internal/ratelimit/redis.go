package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared by every server instance.
// Errors from redis let the request through.
type Redis struct {
	Client *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
	Logger *slog.Logger
}

func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{Client: client, Prefix: "rl", Limit: limit, Window: window}
}

func (l *Redis) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if l.Client == nil {
		return true, fmt.Errorf("redis client is nil")
	}
	k := fmt.Sprintf("%s:%s", l.Prefix, key)

	cnt, err := l.Client.Incr(ctx, k).Result()
	if err != nil {
		l.logger().Warn("ratelimit: redis unavailable, allowing", "err", err, "key", key)
		return true, err
	}
	if cnt == 1 {
		if err := l.Client.Expire(ctx, k, l.Window).Err(); err != nil {
			l.logger().Warn("ratelimit: set expiry failed", "err", err, "key", key)
		}
	}
	return cnt <= int64(l.Limit), nil
}

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
