package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTokenCacheKey is the Redis key for the shared access token.
const DefaultTokenCacheKey = "zoom:access_token"

// TokenCache shares access tokens between processes.
type TokenCache interface {
	// Get returns an empty token when nothing is cached.
	Get(ctx context.Context) (string, time.Time, error)
	Set(ctx context.Context, token string, expiry time.Time) error
}

// RedisTokenCache stores the token in Redis until it expires.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache creates a Redis-backed token cache. An empty key uses DefaultTokenCacheKey.
func NewRedisTokenCache(client *redis.Client, key string) *RedisTokenCache {
	if key == "" {
		key = DefaultTokenCacheKey
	}
	return &RedisTokenCache{client: client, key: key}
}

type cachedToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// Get returns the cached token, if any.
func (c *RedisTokenCache) Get(ctx context.Context) (string, time.Time, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, fmt.Errorf("redis get token: %w", err)
	}
	var ct cachedToken
	if err := json.Unmarshal(raw, &ct); err != nil {
		return "", time.Time{}, fmt.Errorf("decode cached token: %w", err)
	}
	return ct.Token, ct.Expiry, nil
}

// Set stores token until expiry.
func (c *RedisTokenCache) Set(ctx context.Context, token string, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cachedToken{Token: token, Expiry: expiry})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}
