// Package cache provides a Redis-backed read-side cache for event
// summaries. It only ever serves the public listing; admission always
// re-reads capacity inside its own transaction, so a stale entry can
// never influence an admission decision.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/accessly-app/accessly/internal/config"
	"github.com/accessly-app/accessly/internal/model"
)

const eventListKey = "accessly:events:all"

// EventCache caches the event listing. A nil *EventCache is valid and
// disables caching, so callers never branch on configuration.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New connects to Redis and returns an EventCache, or nil when no
// Redis host is configured.
func New(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*EventCache, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &EventCache{client: client, ttl: cfg.TTL, log: log}, nil
}

// GetList returns the cached listing, or (nil, false) on miss,
// disabled cache, or any Redis failure. Failures are logged and
// swallowed: the listing still works without the cache.
func (c *EventCache) GetList(ctx context.Context) ([]model.EventSummary, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, eventListKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("event cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var events []model.EventSummary
	if err := json.Unmarshal(raw, &events); err != nil {
		c.log.Warn("event cache decode failed", zap.Error(err))
		return nil, false
	}
	return events, true
}

// SetList stores the listing with the configured TTL.
func (c *EventCache) SetList(ctx context.Context, events []model.EventSummary) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, eventListKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("event cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached listing. Called after any write that
// changes an event or its derived count.
func (c *EventCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, eventListKey).Err(); err != nil {
		c.log.Warn("event cache invalidate failed", zap.Error(err))
	}
}

// Close releases the underlying connection.
func (c *EventCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
