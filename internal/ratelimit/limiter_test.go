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

func newLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLimiter(rdb, "test-salt"), mr
}

func TestCheckAllowsWithinRate(t *testing.T) {
	l, _ := newLimiter(t)
	cfg := LimitConfig{Rate: 2, Window: time.Minute}

	d, err := l.Check(context.Background(), "rl:ip:abc", cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = l.Check(context.Background(), "rl:ip:abc", cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = l.Check(context.Background(), "rl:ip:abc", cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestCheckWindowExpires(t *testing.T) {
	l, mr := newLimiter(t)
	cfg := LimitConfig{Rate: 1, Window: time.Second}

	d, err := l.Check(context.Background(), "rl:ip:abc", cfg)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Check(context.Background(), "rl:ip:abc", cfg)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	mr.FastForward(2 * time.Second)

	d, err = l.Check(context.Background(), "rl:ip:abc", cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheckRedisUnavailable(t *testing.T) {
	l, mr := newLimiter(t)
	mr.Close()

	_, err := l.Check(context.Background(), "rl:ip:abc", LimitConfig{Rate: 1, Window: time.Second})
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestHashIPStable(t *testing.T) {
	l, _ := newLimiter(t)
	assert.Equal(t, l.HashIP("10.0.0.1"), l.HashIP("10.0.0.1"))
	assert.NotEqual(t, l.HashIP("10.0.0.1"), l.HashIP("10.0.0.2"))
}
