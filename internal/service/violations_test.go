package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/botgate/internal/util"
)

var testViolations = util.ViolationsConfig{
	MaxViolations:  3,
	MemoryDuration: 24 * time.Hour,
	BlockDuration:  15 * time.Minute,
}

var testPrefixes = util.KeyPrefixes{
	IP:         "rl:ip:",
	Violations: "rl:violations:",
	Blocks:     "rl:blocks:",
}

func TestViolationTrackerEscalatesToBlock(t *testing.T) {
	kv, mr := newTestKV(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	vt := NewViolationTracker(kv, testViolations, testPrefixes).WithNow(clock.Now)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		st, err := vt.Track(ctx, "10.0.0.1", testViolations.MemoryDuration)
		require.NoError(t, err)
		assert.Equal(t, i, st.Violations)
		assert.False(t, st.IsBlocked)
		assert.Zero(t, st.BlockExpiry)
	}

	_, blocked, err := vt.BlockedUntil(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, blocked)

	want := clock.Now().Add(15 * time.Minute).Unix()
	for i := int64(3); i <= 4; i++ {
		st, err := vt.Track(ctx, "10.0.0.1", testViolations.MemoryDuration)
		require.NoError(t, err)
		assert.Equal(t, i, st.Violations)
		assert.True(t, st.IsBlocked)
		assert.Equal(t, want, st.BlockExpiry)
	}

	until, blocked, err := vt.BlockedUntil(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, want, until)

	assert.Equal(t, 24*time.Hour, mr.TTL("rl:violations:10.0.0.1"))
	assert.Equal(t, 15*time.Minute, mr.TTL("rl:blocks:10.0.0.1"))
}

func TestViolationTrackerBlockExpires(t *testing.T) {
	kv, mr := newTestKV(t)
	vt := NewViolationTracker(kv, testViolations, testPrefixes)
	ctx := context.Background()

	for range 3 {
		_, err := vt.Track(ctx, "10.0.0.2:user", time.Hour)
		require.NoError(t, err)
	}
	mr.FastForward(16 * time.Minute)

	_, blocked, err := vt.BlockedUntil(ctx, "10.0.0.2:user")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestViolationTrackerStoreFailure(t *testing.T) {
	kv, mr := newTestKV(t)
	vt := NewViolationTracker(kv, testViolations, testPrefixes)
	mr.Close()

	_, err := vt.Track(context.Background(), "x", time.Hour)
	require.ErrorIs(t, err, ErrViolationTracker)
}
