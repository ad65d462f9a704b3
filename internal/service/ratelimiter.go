package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
)

// RateLimiter is a sliding-window log limiter. Each key holds one entry per request
// scored by its arrival time in milliseconds.
type RateLimiter struct {
	store storage.KeyValueStore
	now   func() time.Time
}

func NewRateLimiter(store storage.KeyValueStore) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

// WithNow replaces the clock. It is meant for tests.
func (rl *RateLimiter) WithNow(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Check records the current request under key and reports whether it fits in the window.
// The current request is counted before the comparison, so count == limit is still allowed.
func (rl *RateLimiter) Check(ctx context.Context, key string, window time.Duration, limit int) (models.RateLimitResult, error) {
	windowSeconds := int64(window / time.Second)
	nowMillis := rl.now().UnixMilli()
	windowStart := nowMillis - windowSeconds*1000

	scores, err := rl.store.SlidingWindow(ctx, key, nowMillis, windowStart, window)
	if err != nil {
		return models.RateLimitResult{}, ErrRateLimitService.Wrap(fmt.Errorf("sliding window %s: %w", key, err))
	}

	count := len(scores)
	oldest := nowMillis
	if count > 0 {
		oldest = scores[0]
	}

	return models.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		ResetTime: oldest/1000 + windowSeconds,
	}, nil
}
