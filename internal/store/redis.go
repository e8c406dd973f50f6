package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

const redisPrefix = "lunar:result:"

// Redis caches results as JSON values with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis connects to addr and verifies the connection. Returns nil and no
// error when addr is empty.
func OpenRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return NewRedis(client, ttl), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Name returns "redis".
func (r *Redis) Name() string { return "redis" }

// Get loads the cached result for key.
func (r *Redis) Get(ctx context.Context, key string) (*lunar.Result, bool, error) {
	data, err := r.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var res lunar.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decoding cached result %s: %w", key, err)
	}
	return &res, true, nil
}

// Put caches res under key for the configured TTL.
func (r *Redis) Put(ctx context.Context, key string, res *lunar.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := r.client.Set(ctx, redisPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
