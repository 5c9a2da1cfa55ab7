package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/core"
)

const cacheKeyPrefix = "remoteprint:printer:"

// Cache keeps short-lived printer snapshots in Redis in front of another
// directory. Redis failures fall through to the inner directory.
type Cache struct {
	inner  core.PrinterDirectory
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

type CacheOption func(*Cache)

func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

func NewCache(inner core.PrinterDirectory, client redis.UniversalClient, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &Cache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func cacheKey(id int64) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, id)
}

func (c *Cache) Get(ctx context.Context, id int64) (*core.Printer, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var p core.Printer
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		c.logger.Warn("discarding unreadable cached printer", zap.Int64("printer_id", id))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("printer cache read failed", zap.Int64("printer_id", id), zap.Error(err))
	}

	p, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, cacheKey(id), data, c.ttl).Err(); err != nil {
			c.logger.Warn("printer cache write failed", zap.Int64("printer_id", id), zap.Error(err))
		}
	}
	return p, nil
}

// Invalidate drops the snapshot for id so the next Get reads through.
func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate printer %d: %w", id, err)
	}
	return nil
}
