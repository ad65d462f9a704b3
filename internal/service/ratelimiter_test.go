package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/rryowa/botgate/internal/storage/redis"
)

func newTestKV(t *testing.T) (*redisstore.KeyValueStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisstore.NewKeyValueStore(rdb), mr
}

func TestRateLimiterCountsDownToLimit(t *testing.T) {
	kv, _ := newTestKV(t)
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_250)}
	rl := NewRateLimiter(kv).WithNow(clock.Now)
	ctx := context.Background()

	for _, want := range []int{4, 3, 2, 1, 0} {
		res, err := rl.Check(ctx, "rl:ip:10.0.0.1", time.Minute, 5)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, int64(1_700_000_000+60), res.ResetTime)
		clock.Advance(time.Second)
	}

	// count is 6 here and 6 <= 5 does not hold
	res, err := rl.Check(ctx, "rl:ip:10.0.0.1", time.Minute, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestRateLimiterWindowSlides(t *testing.T) {
	kv, _ := newTestKV(t)
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	rl := NewRateLimiter(kv).WithNow(clock.Now)
	ctx := context.Background()

	for range 3 {
		_, err := rl.Check(ctx, "k", time.Minute, 2)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)
	res, err := rl.Check(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, clock.Now().Unix()+60, res.ResetTime)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	kv, _ := newTestKV(t)
	rl := NewRateLimiter(kv)
	ctx := context.Background()

	_, err := rl.Check(ctx, "rl:ip:1.1.1.1", time.Minute, 1)
	require.NoError(t, err)
	res, err := rl.Check(ctx, "rl:ip:1.1.1.1:user", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestRateLimiterFailsClosed(t *testing.T) {
	kv, mr := newTestKV(t)
	rl := NewRateLimiter(kv)
	mr.Close()

	_, err := rl.Check(context.Background(), "k", time.Minute, 5)
	require.ErrorIs(t, err, ErrRateLimitService)
}
