package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	prefix string
}

func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, prefix: "marketpulse"}, nil
}

// Wrap adapts an existing go-redis client.
func Wrap(client *redis.Client) *Client {
	return &Client{client: client, prefix: "marketpulse"}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) key(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, id)
}

// SetJSON stores value under kind:id for ttl.
func (c *Client) SetJSON(ctx context.Context, kind, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s cache value: %w", kind, err)
	}

	if err := c.client.Set(ctx, c.key(kind, id), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s cache: %w", kind, err)
	}

	logger.Debug("Cache set", zap.String("cache_type", kind), zap.Duration("ttl", ttl))
	return nil
}

// GetJSON decodes the value stored under kind:id into dest. A miss returns
// (false, nil).
func (c *Client) GetJSON(ctx context.Context, kind, id string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s cache: %w", kind, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s cache value: %w", kind, err)
	}

	metrics.CacheHits.WithLabelValues(kind).Inc()
	return true, nil
}

// Invalidate removes every key of the given kind.
func (c *Client) Invalidate(ctx context.Context, kind string) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, c.key(kind, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		removed++
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Cache invalidated", zap.String("cache_type", kind), zap.Int("removed", removed))
	return removed, nil
}
