package db

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the counter/cache store. When ping fails the
// client is still returned together with the error: callers that fail open
// (rate limiter, response cache) keep it and degrade until Redis is back.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return rdb, err
	}

	return rdb, nil
}
