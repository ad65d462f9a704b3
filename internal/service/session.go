package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/obs"
	"github.com/rryowa/botgate/internal/storage"
)

const minPasswordLength = 8

var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SessionService runs the credential lifecycle: register, login, refresh rotation and logout.
// Every user holds at most one session record; a refresh token is accepted only while its
// family and version match that record.
type SessionService struct {
	users    storage.UserRepository
	tokens   *TokenService
	hasher   PasswordHasher
	notifier SecurityNotifier
	metrics  *obs.Metrics
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewSessionService(
	log *zap.SugaredLogger,
	users storage.UserRepository,
	tokens *TokenService,
	hasher PasswordHasher,
	notifier SecurityNotifier,
	metrics *obs.Metrics,
) *SessionService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &SessionService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// WithNow replaces the clock used for record expiry. It is meant for tests.
func (s *SessionService) WithNow(now func() time.Time) *SessionService {
	s.now = now
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrCredentialsRequired
	}
	if !emailRegexp.MatchString(email) {
		return ErrEmailFormat
	}
	return nil
}

func (s *SessionService) Register(ctx context.Context, email, password string) (*models.AuthResult, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("register", obs.OutcomeRejected).Inc()
		return nil, err
	}
	if len(password) < minPasswordLength {
		s.metrics.AuthAttempts.WithLabelValues("register", obs.OutcomeRejected).Inc()
		return nil, ErrPasswordLength
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		s.metrics.AuthAttempts.WithLabelValues("register", obs.OutcomeRejected).Inc()
		return nil, ErrUserExists
	case !errors.Is(err, storage.ErrUserNotFound):
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tokens, record, err := s.issuePair(user.ID, "")
	if err != nil {
		return nil, err
	}
	user.SessionRecords = []models.RefreshTokenRecord{record}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.AuthAttempts.WithLabelValues("register", obs.OutcomeSuccess).Inc()
	s.log.Infow("user registered", "user_id", user.ID)

	return &models.AuthResult{User: user, Tokens: tokens}, nil
}

// Login replaces whatever session the user had with a new family.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("login", obs.OutcomeRejected).Inc()
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.metrics.AuthAttempts.WithLabelValues("login", obs.OutcomeFailure).Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, ErrLoginFailed.Wrap(err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, ErrLoginFailed.Wrap(err)
	}
	if !ok {
		s.metrics.AuthAttempts.WithLabelValues("login", obs.OutcomeFailure).Inc()
		return nil, ErrInvalidCredentials
	}

	tokens, record, err := s.issuePair(user.ID, "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	user.SessionRecords = []models.RefreshTokenRecord{record}
	user.LastLogin = &now
	user.UpdatedAt = now

	if err := s.users.Save(ctx, user); err != nil {
		return nil, ErrLoginFailed.Wrap(err)
	}

	s.metrics.AuthAttempts.WithLabelValues("login", obs.OutcomeSuccess).Inc()
	return &models.AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh rotates the presented refresh token to the next version of its family.
// Presenting a superseded version revokes the whole family.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.AuthResult, error) {
	ctx, span := obs.Tracer().Start(ctx, "session.refresh")
	defer span.End()

	result, outcome, err := s.refresh(ctx, refreshToken, meta)
	s.metrics.RefreshOutcomes.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("refresh.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}
	return result, err
}

func (s *SessionService) refresh(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.AuthResult, string, error) {
	if refreshToken == "" {
		return nil, obs.OutcomeRejected, ErrRefreshTokenRequired
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, obs.OutcomeRejected, ErrInvalidRefreshToken.Wrap(err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, obs.OutcomeRejected, ErrInvalidRefreshToken
		}
		return nil, obs.OutcomeFailure, fmt.Errorf("find user by id: %w", err)
	}

	record, ok := user.SessionRecord(claims.Family)
	if !ok {
		return nil, obs.OutcomeRejected, ErrInvalidRefreshToken
	}

	if record.Version != claims.Version {
		if err := s.revokeFamily(ctx, user.ID, claims.Family, meta); err != nil {
			return nil, obs.OutcomeFailure, err
		}
		return nil, obs.OutcomeReuse, ErrTokenReuseDetected
	}

	if record.Expired(s.now()) {
		return nil, obs.OutcomeExpired, ErrRefreshTokenExpired
	}

	tokens, next, err := s.issuePair(user.ID, claims.Family)
	if err != nil {
		return nil, obs.OutcomeFailure, err
	}

	err = s.users.RotateSession(ctx, user.ID, claims.Family, claims.Version, next)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrSessionConflict):
		// another request rotated this version first
		if err := s.revokeFamily(ctx, user.ID, claims.Family, meta); err != nil {
			return nil, obs.OutcomeFailure, err
		}
		return nil, obs.OutcomeReuse, ErrTokenReuseDetected
	case errors.Is(err, storage.ErrUserNotFound):
		return nil, obs.OutcomeRejected, ErrInvalidRefreshToken
	default:
		return nil, obs.OutcomeFailure, fmt.Errorf("rotate session: %w", err)
	}

	user.SessionRecords = []models.RefreshTokenRecord{next}
	return &models.AuthResult{User: user, Tokens: tokens}, obs.OutcomeRotated, nil
}

// Logout clears every session record of the user.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrNotAuthenticated
		}
		return ErrLogoutFailed.Wrap(err)
	}

	user.SessionRecords = nil
	user.UpdatedAt = s.now()
	if err := s.users.Save(ctx, user); err != nil {
		return ErrLogoutFailed.Wrap(err)
	}
	return nil
}

func (s *SessionService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

func (s *SessionService) issuePair(userID, family string) (models.TokenPair, models.RefreshTokenRecord, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return models.TokenPair{}, models.RefreshTokenRecord{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(userID, family)
	if err != nil {
		return models.TokenPair{}, models.RefreshTokenRecord{}, err
	}

	return models.TokenPair{AccessToken: access, RefreshToken: refresh.Token},
		models.RefreshTokenRecord{Family: refresh.Family, Version: refresh.Version, ExpiresAt: refresh.ExpiresAt},
		nil
}

func (s *SessionService) revokeFamily(ctx context.Context, userID, family string, meta models.ClientMeta) error {
	s.log.Warnw("refresh token reuse detected, revoking family",
		"user_id", userID, "family", family, "ip", meta.IPAddress)

	if err := s.users.DeleteSessionFamily(ctx, userID, family); err != nil {
		return fmt.Errorf("delete session family: %w", err)
	}
	s.metrics.FamiliesRevoked.Inc()

	s.notifier.Notify(ctx, models.SecurityEvent{
		Type:       EventRefreshTokenReuse,
		UserID:     userID,
		Family:     family,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		OccurredAt: s.now().Unix(),
	})
	return nil
}
