package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
)

const (
	qUserInsert = `INSERT INTO users (id, email, password_hash, last_login, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	qUserUpdate = `UPDATE users SET email = $2, password_hash = $3, last_login = $4, updated_at = $5 WHERE id = $1`
	qUserByID   = `SELECT id::text, email, password_hash, last_login, created_at, updated_at FROM users WHERE id = $1`
	qUserByMail = `SELECT id::text, email, password_hash, last_login, created_at, updated_at FROM users WHERE email = $1`
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.Exec(ctx, qUserInsert,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.LastLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := r.db.Exec(ctx, qUserUpdate,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.LastLogin,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, qUserByMail, email)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, qUserByID, id)
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
