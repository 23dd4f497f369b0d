package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "token:session:"
	SessionCacheTTL  = 30 * time.Second
)

// SessionCache stores rendered session status responses by session token.
type SessionCache interface {
	// Get decodes the cached value into dst and reports a hit.
	Get(ctx context.Context, token string, dst any) (bool, error)
	Set(ctx context.Context, token string, value any) error
	Invalidate(ctx context.Context, token string) error
}

type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client, ttl: SessionCacheTTL}
}

func (c *RedisSessionCache) Get(ctx context.Context, token string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cached session %s: %w", token, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached session %s: %w", token, err)
	}
	return true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, token string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", token, err)
	}

	if err := c.client.Set(ctx, sessionKeyPrefix+token, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache session %s: %w", token, err)
	}
	return nil
}

func (c *RedisSessionCache) Invalidate(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("invalidate session %s: %w", token, err)
	}
	return nil
}

// NopSessionCache never hits.
type NopSessionCache struct{}

func (NopSessionCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NopSessionCache) Set(context.Context, string, any) error         { return nil }
func (NopSessionCache) Invalidate(context.Context, string) error       { return nil }
