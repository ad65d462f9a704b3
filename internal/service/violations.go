package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
	"github.com/rryowa/botgate/internal/util"
)

// ViolationTracker counts violations per identifier and escalates to a temporary block.
type ViolationTracker struct {
	store         storage.KeyValueStore
	maxViolations int64
	blockDuration time.Duration
	violationsKey string
	blocksKey     string
	now           func() time.Time
}

func NewViolationTracker(store storage.KeyValueStore, cfg util.ViolationsConfig, prefixes util.KeyPrefixes) *ViolationTracker {
	return &ViolationTracker{
		store:         store,
		maxViolations: cfg.MaxViolations,
		blockDuration: cfg.BlockDuration,
		violationsKey: prefixes.Violations,
		blocksKey:     prefixes.Blocks,
		now:           time.Now,
	}
}

// WithNow replaces the clock. It is meant for tests.
func (vt *ViolationTracker) WithNow(now func() time.Time) *ViolationTracker {
	vt.now = now
	return vt
}

// Track records one violation for identifier. The counter expires memory after its
// first increment; later increments do not extend it.
func (vt *ViolationTracker) Track(ctx context.Context, identifier string, memory time.Duration) (models.ViolationStatus, error) {
	violations, err := vt.store.IncrementWithTTL(ctx, vt.violationsKey+identifier, memory)
	if err != nil {
		return models.ViolationStatus{}, ErrViolationTracker.Wrap(fmt.Errorf("increment violations: %w", err))
	}

	status := models.ViolationStatus{Violations: violations}
	if violations < vt.maxViolations {
		return status, nil
	}

	expiry := vt.now().Add(vt.blockDuration).Unix()
	if err := vt.store.SetWithTTL(ctx, vt.blocksKey+identifier, strconv.FormatInt(expiry, 10), vt.blockDuration); err != nil {
		return models.ViolationStatus{}, ErrViolationTracker.Wrap(fmt.Errorf("set block marker: %w", err))
	}

	status.IsBlocked = true
	status.BlockExpiry = expiry
	return status, nil
}

// BlockedUntil reports whether identifier is under an active block and when it ends in unix seconds.
func (vt *ViolationTracker) BlockedUntil(ctx context.Context, identifier string) (int64, bool, error) {
	val, ok, err := vt.store.Get(ctx, vt.blocksKey+identifier)
	if err != nil {
		return 0, false, ErrViolationTracker.Wrap(fmt.Errorf("read block marker: %w", err))
	}
	if !ok {
		return 0, false, nil
	}

	expiry, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		expiry = vt.now().Add(vt.blockDuration).Unix()
	}
	return expiry, true, nil
}
