package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
)

const uniqueViolation = "23505"

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	db           TxBeginner
	queryTimeout time.Duration
	*UserRepository
	*SessionRepository
}

var _ storage.UserRepository = (*Storage)(nil)

func NewStorage(db TxBeginner, queryTimeout time.Duration) *Storage {
	return &Storage{
		db:                db,
		queryTimeout:      queryTimeout,
		UserRepository:    NewUserRepository(db),
		SessionRepository: NewSessionRepository(db),
	}
}

func (s *Storage) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.withSessions(ctx, user)
}

func (s *Storage) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withSessions(ctx, user)
}

// Create inserts the user together with its initial session records.
func (s *Storage) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := NewUserRepository(tx).CreateUser(ctx, user); err != nil {
			return err
		}
		return NewSessionRepository(tx).ReplaceSessions(ctx, user.ID, user.SessionRecords)
	})
}

// Save updates the user row and replaces the whole session list in one transaction.
func (s *Storage) Save(ctx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := NewUserRepository(tx).UpdateUser(ctx, user); err != nil {
			return err
		}
		return NewSessionRepository(tx).ReplaceSessions(ctx, user.ID, user.SessionRecords)
	})
}

func (s *Storage) RotateSession(
	ctx context.Context,
	userID, family, expectedVersion string,
	next models.RefreshTokenRecord,
) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.SessionRepository.RotateSession(ctx, userID, family, expectedVersion, next)
}

func (s *Storage) DeleteSessionFamily(ctx context.Context, userID, family string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.SessionRepository.DeleteSessionFamily(ctx, userID, family)
}

func (s *Storage) withSessions(ctx context.Context, user *models.User) (*models.User, error) {
	records, err := s.ListSessions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.SessionRecords = records
	return user, nil
}

func (s *Storage) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
