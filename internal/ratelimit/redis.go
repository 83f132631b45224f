package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed-window counters across instances.
// Key layout: {prefix}{rule}:{key}, expiring when the window ends.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Cmdable, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, now: time.Now}
}

var _ Limiter = (*RedisLimiter)(nil)

func (l *RedisLimiter) Check(ctx context.Context, key string, rule Rule) (Result, error) {
	k := l.prefix + rule.Name + ":" + key

	// INCR and read the remaining TTL in one round trip
	pipe := l.rdb.Pipeline()
	cnt := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	now := l.now()
	remainingTTL := ttl.Val()
	if cnt.Val() == 1 || remainingTTL < 0 {
		// first hit of the window (or a key that lost its expiry)
		if err := l.rdb.PExpire(ctx, k, rule.Window).Err(); err != nil {
			return Result{}, err
		}
		remainingTTL = rule.Window
	}

	res := Result{Limit: rule.MaxRequests, ResetTime: now.Add(remainingTTL)}
	if cnt.Val() > int64(rule.MaxRequests) {
		return res, nil
	}
	res.Allowed = true
	res.Remaining = rule.MaxRequests - int(cnt.Val())
	return res, nil
}
