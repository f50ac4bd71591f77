package zoom

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenCache(t *testing.T) (*RedisTokenCache, *redis.Client) {
	t.Helper()
	addr := os.Getenv("ZOOM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ZOOM_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	cache := NewRedisTokenCache(client, "test:zoom:token:"+uuid.NewString())
	t.Cleanup(func() { client.Del(context.Background(), cache.key) })
	return cache, client
}

func TestRedisTokenCacheRoundTrip(t *testing.T) {
	cache, client := newTestTokenCache(t)
	ctx := context.Background()

	token, expiry, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.True(t, expiry.IsZero())

	want := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, cache.Set(ctx, "tok-a", want))
	token, expiry, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-a", token)
	assert.True(t, want.Equal(expiry))

	ttl, err := client.TTL(ctx, cache.key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestRedisTokenCacheSkipsExpired(t *testing.T) {
	cache, client := newTestTokenCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "stale", time.Now().Add(-time.Minute)))
	n, err := client.Exists(ctx, cache.key).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisTokenCacheCorruptValue(t *testing.T) {
	cache, client := newTestTokenCache(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, cache.key, "not json", time.Minute).Err())
	_, _, err := cache.Get(ctx)
	require.Error(t, err)
}

func TestRedisTokenCacheSharedBetweenClients(t *testing.T) {
	cache, _ := newTestTokenCache(t)
	f := newFakeZoom(t)
	ctx := context.Background()

	first, err := f.client(cache).AccessToken(ctx)
	require.NoError(t, err)
	second, err := f.client(cache).AccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}
