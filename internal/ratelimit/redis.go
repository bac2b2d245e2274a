package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares counters across instances. Expiry is handled by Redis,
// so Sweep is a no-op.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "citadel:ratelimit:",
	}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit Limit) (Result, error) {
	rkey := s.prefix + key

	count, err := s.rdb.Incr(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		if err := s.rdb.PExpire(ctx, rkey, limit.Window).Err(); err != nil {
			return Result{}, err
		}
	}

	ttl, err := s.rdb.PTTL(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}
	if ttl < 0 {
		// Key lost its expiry (e.g. Redis restart between INCR and PEXPIRE);
		// reattach the window rather than lock the client out forever.
		ttl = limit.Window
		_ = s.rdb.PExpire(ctx, rkey, ttl).Err()
	}

	remaining := limit.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   int(count) <= limit.MaxRequests,
		Remaining: remaining,
		ResetTime: time.Now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = int(ttl.Seconds())
		if res.RetryAfter < 1 {
			res.RetryAfter = 1
		}
	}
	return res, nil
}

func (s *RedisStore) Sweep() {}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
