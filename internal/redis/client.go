package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings Redis. The same client backs the slot
// locker and the Redis session store.
func NewRedisClient(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	return connect(ctx, &redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,
	})
}

// NewRedisClientFromURL is like NewRedisClient but takes a redis:// or
// rediss:// URL. The database index and TLS settings of the URL are kept.
func NewRedisClientFromURL(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return connect(ctx, opts)
}

func connect(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 1
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
