package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis using the provided URL. Returns nil when the
// URL is empty so callers can run without a cache.
func NewClient(ctx context.Context, logger *slog.Logger, url string) (*redis.Client, error) {
	if url == "" {
		logger.InfoContext(ctx, "redis not configured, running without cache")
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.InfoContext(ctx, "connected to redis")
	return client, nil
}
