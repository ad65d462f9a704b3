package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rryowa/botgate/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	// ErrSessionConflict means the stored record no longer carries the expected version.
	ErrSessionConflict = errors.New("session version conflict")
)

// UserRepository owns the UserAccount aggregate, session records included.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Save persists the user and replaces its full list of session records.
	Save(ctx context.Context, user *models.User) error
	// RotateSession replaces the record of family only if it still carries expectedVersion.
	RotateSession(ctx context.Context, userID, family, expectedVersion string, next models.RefreshTokenRecord) error
	DeleteSessionFamily(ctx context.Context, userID, family string) error
}

// KeyValueStore is the subset of an atomic key-value store the abuse-mitigation layer relies on.
// Every method runs as a single ordered batch.
type KeyValueStore interface {
	// SlidingWindow prunes entries scored at or below windowStart, adds one entry scored now,
	// refreshes the key TTL and returns the scores of the remaining entries in ascending order.
	SlidingWindow(ctx context.Context, key string, nowMillis, windowStartMillis int64, ttl time.Duration) ([]int64, error)
	// IncrementWithTTL increments a counter, sets ttl only when the key has none and returns the new value.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Ping(ctx context.Context) error
}
