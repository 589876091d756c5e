package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores carts as JSON strings in Redis
type RedisPersister struct {
	client *redis.Client
	ttl    time.Duration // 0 keeps carts forever
}

// NewRedisPersister connects to Redis and verifies the connection
func NewRedisPersister(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisPersisterFromClient(client, ttl), nil
}

// NewRedisPersisterFromClient wraps an existing client
func NewRedisPersisterFromClient(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, ttl: ttl}
}

func (r *RedisPersister) Name() string { return "redis" }

func (r *RedisPersister) Load(ctx context.Context, key string) (Snapshot, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("redis get error: %w", err)
	}
	return decode(data)
}

// Save writes the snapshot and refreshes the key's TTL
func (r *RedisPersister) Save(ctx context.Context, key string, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisPersister) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisPersister) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisPersister) Close() error {
	return r.client.Close()
}
