package util

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/botgate")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, []byte("secret"), cfg.Token.RefreshKey())

	rl := cfg.RateLimiter
	assert.Equal(t, RateLimitTier{Window: time.Minute, Limit: 100}, rl.Authenticated)
	assert.Equal(t, RateLimitTier{Window: time.Minute, Limit: 20}, rl.Unauthenticated)
	assert.Equal(t, int64(3), rl.Violations.MaxViolations)
	assert.Equal(t, 24*time.Hour, rl.Violations.MemoryDuration)
	assert.Equal(t, 15*time.Minute, rl.Violations.BlockDuration)
	assert.True(t, rl.Violations.CountAllRequests)
	assert.Equal(t, KeyPrefixes{IP: "rl:ip:", Violations: "rl:violations:", Blocks: "rl:blocks:"}, rl.KeyPrefixes)

	assert.False(t, cfg.Cookie.Secure)
	assert.Equal(t, "none", cfg.Notifier.Driver)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.10")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.Server.TrustedProxies)

	t.Setenv("SERVER_TRUSTED_PROXIES", "not-an-ip")
	_, err = loadConfig("")
	require.Error(t, err)
}

func TestParseTrustedProxy(t *testing.T) {
	ipNet, err := ParseTrustedProxy("192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10/32", ipNet.String())

	ipNet, err = ParseTrustedProxy("10.0.0.0/8")
	require.NoError(t, err)
	assert.True(t, ipNet.Contains(net.ParseIP("10.1.2.3")))

	ipNet, err = ParseTrustedProxy("::1")
	require.NoError(t, err)
	assert.Equal(t, "::1/128", ipNet.String())

	_, err = ParseTrustedProxy("proxy.local")
	require.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("RATELIMIT_UNAUTHENTICATED_LIMIT", "5")
	t.Setenv("RATELIMIT_VIOLATIONS_BLOCK_DURATION", "1h")
	t.Setenv("RATELIMIT_VIOLATIONS_COUNT_ALL_REQUESTS", "false")
	t.Setenv("APP_ENV", EnvProduction)

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimiter.Unauthenticated.Limit)
	assert.Equal(t, time.Hour, cfg.RateLimiter.Violations.BlockDuration)
	assert.False(t, cfg.RateLimiter.Violations.CountAllRequests)
	assert.Equal(t, []byte("refresh"), cfg.Token.RefreshKey())
	assert.True(t, cfg.App.IsProduction())
	assert.True(t, cfg.Cookie.Secure)
}

func TestLoadConfigFromFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ratelimit:
  authenticated:
    window: 30s
    limit: 7
notifier:
  driver: webhook
  webhook_url: http://localhost:9090/
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, RateLimitTier{Window: 30 * time.Second, Limit: 7}, cfg.RateLimiter.Authenticated)
	assert.Equal(t, "webhook", cfg.Notifier.Driver)
	assert.Equal(t, "http://localhost:9090/", cfg.Notifier.WebhookURL)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := loadConfig("")
	require.ErrorIs(t, err, ErrMissingConfig)
}

func TestLoadConfigMemoryDriverNeedsNoDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_DRIVER", DriverMemory)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.DB.Driver)

	t.Setenv("DB_DRIVER", DriverPostgres)
	_, err = loadConfig("")
	require.ErrorIs(t, err, ErrMissingConfig)
}
