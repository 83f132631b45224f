package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, "test:"), mr
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLimiter(t)
	rule := Rule{Name: "checkout", MaxRequests: 5, Window: time.Minute}

	for i := 1; i <= 5; i++ {
		res, err := l.Check(ctx, "u1", rule)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
		assert.Equal(t, 5-i, res.Remaining)
	}

	res, err := l.Check(ctx, "u1", rule)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	assert.True(t, mr.Exists("test:checkout:u1"))
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL("test:checkout:u1").Seconds(), 1)

	mr.FastForward(time.Minute + time.Second)

	res, err = l.Check(ctx, "u1", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestRedisLimiterRestoresLostExpiry(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLimiter(t)
	rule := Rule{Name: "search", MaxRequests: 10, Window: 30 * time.Second}

	require.NoError(t, mr.Set("test:search:ip", "3"))

	res, err := l.Check(ctx, "ip", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 6, res.Remaining)
	assert.Positive(t, mr.TTL("test:search:ip"))
}

func TestRedisLimiterStoreDown(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLimiter(t)
	mr.Close()

	_, err := l.Check(ctx, "u1", Rule{Name: "x", MaxRequests: 1, Window: time.Second})
	assert.Error(t, err)
}
