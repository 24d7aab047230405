package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Cache is the small key/value surface the API and the notifier need.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// Claim sets key only if it is absent and reports whether it did.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Client adapts a go-redis client to Cache.
type Client struct{ RDB *redis.Client }

func (c Client) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := c.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (c Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.RDB.Set(ctx, key, value, ttl).Err()
}

func (c Client) Del(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, key).Err()
}

func (c Client) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.RDB.SetNX(ctx, key, "1", ttl).Result()
}

