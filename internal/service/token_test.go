package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/botgate/internal/util"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testTokenConfig() util.TokenConfig {
	return util.TokenConfig{
		JWTSecret:     "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "botgate-test",
	}
}

func newTestTokenService(clock *fakeClock) *TokenService {
	return NewTokenService(testTokenConfig(), WithClock(clock.Now))
}

func TestAccessTokenExpiryBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	ts := newTestTokenService(clock)

	token, err := ts.IssueAccessToken("user-1")
	require.NoError(t, err)

	clock.Advance(14*time.Minute + 59*time.Second)
	claims, err := ts.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	clock.Advance(time.Second)
	_, err = ts.VerifyAccessToken(token)
	require.ErrorIs(t, err, ErrAccessTokenExpired)

	var respErr *util.MyResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "Access token expired", respErr.Details)
}

func TestVerifyAccessTokenRejectsGarbage(t *testing.T) {
	ts := newTestTokenService(&fakeClock{t: time.Now()})

	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := ts.VerifyAccessToken(token)
		require.ErrorIs(t, err, ErrAccessTokenInvalid, "token %q", token)
	}
}

func TestVerifyAccessTokenRejectsForeignSignature(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	other := NewTokenService(util.TokenConfig{JWTSecret: "other", AccessTTL: time.Minute}, WithClock(clock.Now))

	token, err := other.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = newTestTokenService(clock).VerifyAccessToken(token)
	require.ErrorIs(t, err, ErrAccessTokenInvalid)
}

func TestVerifyAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	claims := &AccessClaims{
		UserID: "user-1",
		Type:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = newTestTokenService(clock).VerifyAccessToken(token)
	require.ErrorIs(t, err, ErrAccessTokenInvalid)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cfg := testTokenConfig()
	cfg.RefreshSecret = ""
	ts := NewTokenService(cfg, WithClock(clock.Now))

	issued, err := ts.IssueRefreshToken("user-1", "")
	require.NoError(t, err)

	_, err = ts.VerifyAccessToken(issued.Token)
	require.ErrorIs(t, err, ErrAccessTokenInvalid)
}

func TestIssueRefreshTokenMintsFamilyAndVersion(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	ts := newTestTokenService(clock)

	first, err := ts.IssueRefreshToken("user-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, first.Family)
	require.NotEmpty(t, first.Version)
	assert.True(t, clock.Now().Add(7*24*time.Hour).Equal(first.ExpiresAt))

	next, err := ts.IssueRefreshToken("user-1", first.Family)
	require.NoError(t, err)
	assert.Equal(t, first.Family, next.Family)
	assert.NotEqual(t, first.Version, next.Version)

	claims, err := ts.VerifyRefreshToken(next.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, next.Family, claims.Family)
	assert.Equal(t, next.Version, claims.Version)
	assert.True(t, next.ExpiresAt.Equal(claims.ExpiresAt.Time))
	assert.Equal(t, next.ExpiresAt.Unix(), claims.RecordExpiresAt)
}

func TestVerifyRefreshTokenRejectsExpiryMismatch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	exp := clock.Now().Add(time.Hour)
	claims := &RefreshClaims{
		UserID:          "user-1",
		Type:            tokenTypeRefresh,
		Family:          "family-1",
		Version:         "version-1",
		RecordExpiresAt: exp.Add(24 * time.Hour).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("refresh-secret"))
	require.NoError(t, err)

	_, err = newTestTokenService(clock).VerifyRefreshToken(token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	require.ErrorIs(t, err, ErrExpiryMismatch)
}

func TestVerifyRefreshTokenExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	ts := newTestTokenService(clock)

	issued, err := ts.IssueRefreshToken("user-1", "")
	require.NoError(t, err)

	clock.Advance(7 * 24 * time.Hour)
	_, err = ts.VerifyRefreshToken(issued.Token)
	require.ErrorIs(t, err, ErrRefreshTokenExpired)
}

func TestAccessTokenIsNotARefreshToken(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cfg := testTokenConfig()
	cfg.RefreshSecret = ""
	ts := NewTokenService(cfg, WithClock(clock.Now))

	token, err := ts.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = ts.VerifyRefreshToken(token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}
