// Package cache holds the Redis-backed helpers: the per-card control
// discovery cache and the distributed lock used by reminder dispatch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viego-wallet/viego-backend/internal/controls"
)

const (
	// DefaultDiscoveryTTL bounds how long a card's supported control types
	// are trusted before the vendor is asked again.
	DefaultDiscoveryTTL = 6 * time.Hour
	// MaxDiscoveryTTL caps configured TTLs.
	MaxDiscoveryTTL = 12 * time.Hour
)

// DiscoveryCache stores complete availability results in Redis as JSON.
// Redis failures degrade to cache misses.
type DiscoveryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewDiscoveryCache clamps ttl to (0, MaxDiscoveryTTL], defaulting to
// DefaultDiscoveryTTL.
func NewDiscoveryCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *DiscoveryCache {
	if ttl <= 0 {
		ttl = DefaultDiscoveryTTL
	}
	if ttl > MaxDiscoveryTTL {
		ttl = MaxDiscoveryTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryCache{client: client, ttl: ttl, logger: logger}
}

func (c *DiscoveryCache) Get(ctx context.Context, pan string) (controls.Availability, bool) {
	val, err := c.client.Get(ctx, controls.CacheKey(pan)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("discovery cache read failed", "error", err)
		}
		return controls.Availability{}, false
	}

	var a controls.Availability
	if err := json.Unmarshal(val, &a); err != nil {
		c.logger.Warn("discovery cache entry is corrupt", "error", err)
		return controls.Availability{}, false
	}
	return a, true
}

func (c *DiscoveryCache) Set(ctx context.Context, pan string, a controls.Availability) {
	if !a.Complete() {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		c.logger.Warn("discovery cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, controls.CacheKey(pan), data, c.ttl).Err(); err != nil {
		c.logger.Warn("discovery cache write failed", "error", err)
	}
}

func (c *DiscoveryCache) Invalidate(ctx context.Context, pan string) {
	if err := c.client.Del(ctx, controls.CacheKey(pan)).Err(); err != nil {
		c.logger.Warn("discovery cache delete failed", "error", err)
	}
}
