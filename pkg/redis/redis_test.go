package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

// liveClient connects to TEST_REDIS_ADDR or skips
func liveClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := Dial(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")
	cfg := PolygonRateLimit(5)

	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, cfg.Limit, remaining)

	assert.NoError(t, limiter.For(cfg).Wait(context.Background()))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result []string
	found, err := cache.Get(ctx, UniverseKey("20250115"), &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, UniverseKey("20250115"), []string{"AAPL"}, TTLSession))
	assert.NoError(t, cache.Delete(ctx, UniverseKey("20250115")))
}

func TestCache_Nil(t *testing.T) {
	var cache *Cache

	var result []string
	found, err := cache.Get(context.Background(), "k", &result)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "universe:20250115", UniverseKey("20250115"))
	assert.Equal(t, "ticker:ref:AAPL:20250115", TickerReferenceKey("AAPL", "20250115"))
}

func TestCache_RoundTrip(t *testing.T) {
	client := liveClient(t)
	cache := NewCache(client, "gapwatch-test")
	ctx := context.Background()

	key := UniverseKey("19990101")
	require.NoError(t, cache.Set(ctx, key, []string{"AAPL", "MSFT"}, time.Minute))
	defer cache.Delete(ctx, key)

	var got []string
	found, err := cache.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}

func TestRateLimiter_Live(t *testing.T) {
	client := liveClient(t)
	limiter := NewRateLimiter(client, "gapwatch-test")
	cfg := RateLimitConfig{Key: "burst", Limit: 2, Window: time.Second}
	ctx := context.Background()
	defer client.Redis().Del(ctx, "gapwatch-test:ratelimit:burst")

	first, _, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	second, _, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	third, _, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)

	assert.True(t, first)
	assert.True(t, second)
	assert.False(t, third)
}
