package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
)

// Client wraps the Redis client for queue operations
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient creates a new queue client. redisURL may be a redis:// URL or a
// bare host:port.
func NewClient(ctx context.Context, redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := config.RedisOptions(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Test connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis for queue service", "addr", opt.Addr)

	return &Client{
		rdb:    rdb,
		logger: logger,
	}, nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(rdb *redis.Client, logger *slog.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetRedisClient returns the underlying Redis client for direct operations
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}
