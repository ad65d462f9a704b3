package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// incrementWithTTLScript increments KEYS[1] and starts its expiry clock only on the
// first increment, so later increments never extend the window.
const incrementWithTTLScript = `
local count = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return tonumber(redis.call('GET', KEYS[1]))
`

var incrementWithTTLLua = redis.NewScript(incrementWithTTLScript)

type KeyValueStore struct {
	client redis.UniversalClient
}

func NewKeyValueStore(client redis.UniversalClient) *KeyValueStore {
	return &KeyValueStore{client: client}
}

func (s *KeyValueStore) SlidingWindow(
	ctx context.Context,
	key string,
	nowMillis, windowStartMillis int64,
	ttl time.Duration,
) ([]int64, error) {
	// members must be unique per request, two hits in the same millisecond are two entries
	member := strconv.FormatInt(nowMillis, 10) + "-" + uuid.NewString()

	var rangeCmd *redis.ZSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStartMillis, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMillis), Member: member})
		rangeCmd = pipe.ZRangeWithScores(ctx, key, 0, -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sliding window pipeline: %w", err)
	}

	entries, err := rangeCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("sliding window range: %w", err)
	}

	scores := make([]int64, 0, len(entries))
	for _, e := range entries {
		scores = append(scores, int64(e.Score))
	}
	return scores, nil
}

func (s *KeyValueStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementWithTTLLua.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return count, nil
}

func (s *KeyValueStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *KeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *KeyValueStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
