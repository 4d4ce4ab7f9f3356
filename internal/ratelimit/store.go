package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the window counter store used by the limiter.
type Store interface {
	// Get returns the integer value of each key; missing keys read as 0.
	Get(ctx context.Context, keys ...string) ([]int64, error)
	// IncrExpire increments every key and sets its TTL in one round trip.
	IncrExpire(ctx context.Context, keys []string, ttls []time.Duration) ([]int64, error)
	// SetNX creates a flag key with ttl unless it already exists.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL returns the remaining lifetime per key; 0 means the key is absent.
	TTL(ctx context.Context, keys ...string) ([]time.Duration, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]int64) error
}

// RedisStore implements Store on go-redis.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, keys ...string) ([]int64, error) {
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(keys))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

func (s *RedisStore) IncrExpire(ctx context.Context, keys []string, ttls []time.Duration) ([]int64, error) {
	if len(keys) != len(ttls) {
		return nil, fmt.Errorf("incr: %d keys but %d ttls", len(keys), len(ttls))
	}
	pipe := s.rdb.TxPipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, ttls[i])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]int64, len(cmds))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (s *RedisStore) TTL(ctx context.Context, keys ...string) ([]time.Duration, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.PTTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]time.Duration, len(cmds))
	for i, c := range cmds {
		switch d := c.Val(); {
		case d == -2:
			out[i] = 0
		case d == -1:
			// present without expiry
			out[i] = -1
		default:
			out[i] = d
		}
	}
	return out, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.rdb.Del(ctx, keys...).Result()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HSet(ctx context.Context, key string, values map[string]int64) error {
	args := make(map[string]any, len(values))
	for k, v := range values {
		args[k] = v
	}
	return s.rdb.HSet(ctx, key, args).Err()
}
