// Package cache keeps the live channel list in Redis so the dashboard can show
// it while the platform is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"github.com/redis/go-redis/v9"
)

// Connect parses url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// ChannelCache stores category channel lists as JSON with a TTL. A nil client
// disables it: Get always misses and Set is a no-op.
type ChannelCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewChannelCache(rdb *redis.Client, ttl time.Duration) *ChannelCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChannelCache{rdb: rdb, ttl: ttl}
}

func (c *ChannelCache) Enabled() bool { return c != nil && c.rdb != nil }

func key(categoryID string) string {
	return "ticket-bridge:channels:" + categoryID
}

// Get returns the cached list and whether there was one.
func (c *ChannelCache) Get(ctx context.Context, categoryID string) ([]platform.Channel, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	val, err := c.rdb.Get(ctx, key(categoryID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: get channels: %w", err)
	}
	var out []platform.Channel
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, false, fmt.Errorf("redis: decode channels: %w", err)
	}
	return out, true, nil
}

func (c *ChannelCache) Set(ctx context.Context, categoryID string, channels []platform.Channel) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(channels)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(categoryID), data, c.ttl).Err()
}

func (c *ChannelCache) Invalidate(ctx context.Context, categoryID string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, key(categoryID)).Err()
}

func (c *ChannelCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
