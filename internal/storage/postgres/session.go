package postgres

import (
	"context"
	"fmt"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
)

const (
	qSessionList   = `SELECT family, version, expires_at FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at`
	qSessionClear  = `DELETE FROM refresh_tokens WHERE user_id = $1`
	qSessionInsert = `INSERT INTO refresh_tokens (user_id, family, version, expires_at) VALUES ($1, $2, $3, $4)`
	qSessionRotate = `UPDATE refresh_tokens SET version = $4, expires_at = $5 WHERE user_id = $1 AND family = $2 AND version = $3`
	qSessionDelete = `DELETE FROM refresh_tokens WHERE user_id = $1 AND family = $2`
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string) ([]models.RefreshTokenRecord, error) {
	rows, err := r.db.Query(ctx, qSessionList, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []models.RefreshTokenRecord
	for rows.Next() {
		var rec models.RefreshTokenRecord
		if err := rows.Scan(&rec.Family, &rec.Version, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return records, nil
}

// ReplaceSessions drops every record of the user and writes records in order.
func (r *SessionRepository) ReplaceSessions(ctx context.Context, userID string, records []models.RefreshTokenRecord) error {
	if _, err := r.db.Exec(ctx, qSessionClear, userID); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	for _, rec := range records {
		if _, err := r.db.Exec(ctx, qSessionInsert, userID, rec.Family, rec.Version, rec.ExpiresAt); err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
	}
	return nil
}

// RotateSession is a compare-and-swap on the stored version of a family.
func (r *SessionRepository) RotateSession(
	ctx context.Context,
	userID, family, expectedVersion string,
	next models.RefreshTokenRecord,
) error {
	tag, err := r.db.Exec(ctx, qSessionRotate, userID, family, expectedVersion, next.Version, next.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrSessionConflict
	}
	return nil
}

func (r *SessionRepository) DeleteSessionFamily(ctx context.Context, userID, family string) error {
	if _, err := r.db.Exec(ctx, qSessionDelete, userID, family); err != nil {
		return fmt.Errorf("failed to delete session family: %w", err)
	}
	return nil
}
