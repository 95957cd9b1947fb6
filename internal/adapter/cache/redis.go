package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arturoeanton/bookverse/internal/domain"
)

// RedisSessionCache keeps the provider session under a single key so a
// restarted server resumes the same session.
type RedisSessionCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSessionCache connects to redisURL and verifies the connection.
func NewRedisSessionCache(redisURL, key string, ttl time.Duration) (*RedisSessionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSessionCacheWithClient(client, key, ttl), nil
}

// NewRedisSessionCacheWithClient wraps an existing client.
func NewRedisSessionCacheWithClient(client *redis.Client, key string, ttl time.Duration) *RedisSessionCache {
	return &RedisSessionCache{client: client, key: key, ttl: ttl}
}

// Load returns the cached session, or nil when none is stored.
func (c *RedisSessionCache) Load(ctx context.Context) (*domain.Session, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Save stores s with the configured TTL.
func (c *RedisSessionCache) Save(ctx context.Context, s *domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the cached session.
func (c *RedisSessionCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}
