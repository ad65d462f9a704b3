package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rryowa/botgate/internal/util"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrWrongTokenType       = errors.New("wrong token type")
	ErrExpiryMismatch       = errors.New("expiresAt claim does not match exp")
)

type TokenService struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces the wall clock used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) { ts.now = now }
}

func NewTokenService(cfg util.TokenConfig, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		accessKey:  cfg.AccessKey(),
		refreshKey: cfg.RefreshKey(),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

type AccessClaims struct {
	UserID string `json:"uid"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims carry the lineage a refresh token belongs to. RecordExpiresAt is the
// record expiry (unix seconds) the token was minted with and always equals exp.
type RefreshClaims struct {
	UserID          string `json:"uid"`
	Type            string `json:"typ"`
	Family          string `json:"family"`
	Version         string `json:"version"`
	RecordExpiresAt int64  `json:"expiresAt"`
	jwt.RegisteredClaims
}

// IssuedRefreshToken is a signed refresh token together with the record the server must store for it.
type IssuedRefreshToken struct {
	Token     string
	Family    string
	Version   string
	ExpiresAt time.Time
}

// IssueAccessToken creates an HS512 signed access token with a fresh JTI.
func (ts *TokenService) IssueAccessToken(userID string) (string, error) {
	now := ts.now()
	claims := &AccessClaims{
		UserID: userID,
		Type:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(ts.accessKey)
	if err != nil {
		return "", ErrTokenGeneration.Wrap(fmt.Errorf("signed string: %w", err))
	}
	return signed, nil
}

// IssueRefreshToken mints the next version of family. An empty family starts a new lineage.
func (ts *TokenService) IssueRefreshToken(userID, family string) (IssuedRefreshToken, error) {
	if family == "" {
		family = uuid.NewString()
	}
	now := ts.now()
	expiresAt := jwt.NewNumericDate(now.Add(ts.refreshTTL))
	version := uuid.NewString()

	claims := &RefreshClaims{
		UserID:          userID,
		Type:            tokenTypeRefresh,
		Family:          family,
		Version:         version,
		RecordExpiresAt: expiresAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        version,
			Issuer:    ts.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(ts.refreshKey)
	if err != nil {
		return IssuedRefreshToken{}, ErrTokenGeneration.
			WithDetails("Failed to generate refresh token").
			Wrap(fmt.Errorf("signed string: %w", err))
	}

	return IssuedRefreshToken{
		Token:     signed,
		Family:    family,
		Version:   version,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// VerifyAccessToken fails with ErrAccessTokenExpired or ErrAccessTokenInvalid.
func (ts *TokenService) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(token, ts.accessKey, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired.Wrap(err)
		}
		return nil, ErrAccessTokenInvalid.Wrap(err)
	}
	if claims.Type != tokenTypeAccess || claims.UserID == "" {
		return nil, ErrAccessTokenInvalid.Wrap(ErrWrongTokenType)
	}
	return claims, nil
}

// VerifyRefreshToken fails with ErrRefreshTokenExpired or ErrInvalidRefreshToken.
func (ts *TokenService) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(token, ts.refreshKey, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrRefreshTokenExpired.Wrap(err)
		}
		return nil, ErrInvalidRefreshToken.Wrap(err)
	}
	if claims.Type != tokenTypeRefresh || claims.UserID == "" || claims.Family == "" || claims.Version == "" {
		return nil, ErrInvalidRefreshToken.Wrap(ErrWrongTokenType)
	}
	if claims.RecordExpiresAt != claims.ExpiresAt.Unix() {
		return nil, ErrInvalidRefreshToken.Wrap(ErrExpiryMismatch)
	}
	return claims, nil
}

func (ts *TokenService) parse(token string, key []byte, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}

	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return key, nil
		},
		opts...,
	)
	if err != nil {
		return fmt.Errorf("parse token claims: %w", err)
	}
	if parsed == nil || !parsed.Valid {
		return errors.New("token invalid")
	}
	return nil
}
