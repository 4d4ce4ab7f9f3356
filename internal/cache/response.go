package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/metrics"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultKeyPrefix = "response:"
	DefaultTTL       = 24 * time.Hour

	scanCount = 200
)

// Key is the default-prefixed key, response:{request_id}.
func Key(requestID string) string { return DefaultKeyPrefix + requestID }

// ResponseCache is a cache-aside store of computed responses. It is advisory:
// every Redis failure degrades to a miss or a no-op and is logged.
type ResponseCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

type Option func(*ResponseCache)

// WithKeyPrefix namespaces entries; empty keeps DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *ResponseCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func NewResponseCache(rdb redis.UniversalClient, defaultTTL time.Duration, log *zap.Logger, opts ...Option) *ResponseCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &ResponseCache{rdb: rdb, ttl: defaultTTL, prefix: DefaultKeyPrefix, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResponseCache) key(requestID string) string { return c.prefix + requestID }

func (c *ResponseCache) degraded(op string, err error, fields ...zap.Field) {
	c.errors.Add(1)
	metrics.ResponseCacheTotal.WithLabelValues("error").Inc()
	c.log.Warn("response cache degraded", append(fields, zap.String("op", op), zap.Error(err))...)
}

func (c *ResponseCache) Get(ctx context.Context, requestID string) (model.CachedResponse, bool) {
	raw, err := c.rdb.Get(ctx, c.key(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		metrics.ResponseCacheTotal.WithLabelValues("miss").Inc()
		return model.CachedResponse{}, false
	}
	if err != nil {
		c.degraded("get", err, zap.String("request_id", requestID))
		return model.CachedResponse{}, false
	}

	var resp model.CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.degraded("decode", err, zap.String("request_id", requestID))
		return model.CachedResponse{}, false
	}
	c.hits.Add(1)
	metrics.ResponseCacheTotal.WithLabelValues("hit").Inc()
	return resp, true
}

// Set stores resp; ttl <= 0 uses the default TTL.
func (c *ResponseCache) Set(ctx context.Context, requestID string, resp model.CachedResponse, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		c.degraded("encode", err, zap.String("request_id", requestID))
		return false
	}
	if err := c.rdb.Set(ctx, c.key(requestID), raw, ttl).Err(); err != nil {
		c.degraded("set", err, zap.String("request_id", requestID))
		return false
	}
	return true
}

// Invalidate deletes one entry and reports whether it existed.
func (c *ResponseCache) Invalidate(ctx context.Context, requestID string) bool {
	n, err := c.rdb.Del(ctx, c.key(requestID)).Result()
	if err != nil {
		c.degraded("invalidate", err, zap.String("request_id", requestID))
		return false
	}
	return n > 0
}

// scan walks all response keys in chunks.
func (c *ResponseCache) scan(ctx context.Context, fn func(keys []string) error) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", scanCount).Iterator()
	chunk := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		chunk = append(chunk, iter.Val())
		if len(chunk) == scanCount {
			if err := fn(chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(chunk) > 0 {
		return fn(chunk)
	}
	return nil
}

// InvalidateBySubject deletes every entry whose subject_id matches. O(n) in key count.
func (c *ResponseCache) InvalidateBySubject(ctx context.Context, subjectID string) int {
	deleted := 0
	err := c.scan(ctx, func(keys []string) error {
		vals, err := c.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		var match []string
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var resp model.CachedResponse
			if json.Unmarshal([]byte(s), &resp) == nil && resp.SubjectID == subjectID {
				match = append(match, keys[i])
			}
		}
		if len(match) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, match...).Result()
		deleted += int(n)
		return err
	})
	if err != nil {
		c.degraded("invalidate_subject", err, zap.String("subject_id", subjectID))
	}
	c.log.Info("subject cache invalidated", zap.String("subject_id", subjectID), zap.Int("deleted", deleted))
	return deleted
}

// Clear deletes all response entries.
func (c *ResponseCache) Clear(ctx context.Context) int {
	deleted := 0
	err := c.scan(ctx, func(keys []string) error {
		n, err := c.rdb.Del(ctx, keys...).Result()
		deleted += int(n)
		return err
	})
	if err != nil {
		c.degraded("clear", err)
	}
	c.log.Info("response cache cleared", zap.Int("deleted", deleted))
	return deleted
}

type Stats struct {
	KeyCount  int     `json:"key_count"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Errors    int64   `json:"errors"`
	HitRatio  float64 `json:"hit_ratio"`
	Connected bool    `json:"connected"`
}

// Stats reports process-local hit counters and the current key count.
func (c *ResponseCache) Stats(ctx context.Context) Stats {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = math.Round(float64(st.Hits)/float64(total)*10000) / 10000
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.degraded("ping", err)
		return st
	}
	st.Connected = true
	err := c.scan(ctx, func(keys []string) error {
		st.KeyCount += len(keys)
		return nil
	})
	if err != nil {
		c.degraded("stats", err)
	}
	return st
}
