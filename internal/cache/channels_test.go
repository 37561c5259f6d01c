package cache

import (
	"context"
	"testing"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := NewChannelCache(nil, 0)
	ctx := context.Background()
	assert.False(t, c.Enabled())

	require.NoError(t, c.Set(ctx, "10", []platform.Channel{{ID: "100"}}))
	got, ok, err := c.Get(ctx, "10")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, "10"))
	assert.NoError(t, c.Close())
}

func TestUnreachableRedisSurfacesErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewChannelCache(rdb, time.Minute)
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "10")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestKeyIsScopedByCategory(t *testing.T) {
	assert.NotEqual(t, key("10"), key("11"))
	assert.Contains(t, key("10"), "10")
}
