package util

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func loadDotEnv() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	defaultAuthWindow    = time.Minute
	defaultAuthLimit     = 100
	defaultAnonWindow    = time.Minute
	defaultAnonLimit     = 20
	defaultMaxViolations = 3
	defaultMemoryTime    = 24 * time.Hour
	defaultBlockTime     = 15 * time.Minute
)

var ErrMissingConfig = errors.New("missing required config")

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

func (a AppConfig) IsProduction() bool { return a.Env == EnvProduction }

type ServerConfig struct {
	ServerAddr      string        `mapstructure:"addr"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	// TrustedProxies lists proxy addresses or CIDR ranges whose X-Forwarded-For is honoured.
	// When empty the client address is the socket peer.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// ParseTrustedProxy accepts a CIDR range or a single address.
func ParseTrustedProxy(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, ipNet, err := net.ParseCIDR(s)
		return ipNet, err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid proxy address %q", s)
	}
	bits := 128
	if ip4 := ip.To4(); ip4 != nil {
		ip, bits = ip4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

type TokenConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	Issuer        string        `mapstructure:"issuer"`
}

func (c TokenConfig) AccessKey() []byte { return []byte(c.JWTSecret) }

// RefreshKey falls back to the access secret when no dedicated refresh secret is configured.
func (c TokenConfig) RefreshKey() []byte {
	if c.RefreshSecret == "" {
		return []byte(c.JWTSecret)
	}
	return []byte(c.RefreshSecret)
}

type CookieConfig struct {
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
	Path   string `mapstructure:"path"`
}

type RateLimitTier struct {
	Window time.Duration `mapstructure:"window"`
	Limit  int           `mapstructure:"limit"`
}

type ViolationsConfig struct {
	MaxViolations    int64         `mapstructure:"max"`
	MemoryDuration   time.Duration `mapstructure:"memory_duration"`
	BlockDuration    time.Duration `mapstructure:"block_duration"`
	CountAllRequests bool          `mapstructure:"count_all_requests"`
}

type KeyPrefixes struct {
	IP         string `mapstructure:"ip"`
	Violations string `mapstructure:"violations"`
	Blocks     string `mapstructure:"blocks"`
}

type RateLimiterConfig struct {
	Authenticated   RateLimitTier    `mapstructure:"authenticated"`
	Unauthenticated RateLimitTier    `mapstructure:"unauthenticated"`
	Violations      ViolationsConfig `mapstructure:"violations"`
	KeyPrefixes     KeyPrefixes      `mapstructure:"key_prefixes"`
}

// DBConfig selects the user store. Driver is "postgres" or "memory"; the memory driver keeps users in process memory.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	MigrationsRun   bool          `mapstructure:"migrations_run"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type OTELConfig struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"otlp_endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// NotifierConfig selects where security events go: "none", "webhook" or "kafka".
type NotifierConfig struct {
	Driver       string        `mapstructure:"driver"`
	WebhookURL   string        `mapstructure:"webhook_url"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Token       TokenConfig       `mapstructure:"token"`
	Cookie      CookieConfig      `mapstructure:"cookie"`
	RateLimiter RateLimiterConfig `mapstructure:"ratelimit"`
	DB          DBConfig          `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	OTEL        OTELConfig        `mapstructure:"otel"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
}

// LoadConfig reads .env, an optional YAML file (CONFIG_PATH) and the environment.
func LoadConfig() (*Config, error) {
	loadDotEnv()
	return loadConfig(os.Getenv("CONFIG_PATH"))
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file %s: %v", path, err)
		}
	}

	setDefaults(v)

	// legacy variable names
	_ = v.BindEnv("token.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("token.refresh_secret", "JWT_REFRESH_SECRET")
	_ = v.BindEnv("db.dsn", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("server.addr", "SERVER_ADDRESS")
	_ = v.BindEnv("notifier.webhook_url", "WEBHOOK_URL")
	_ = v.BindEnv("app.env", "APP_ENV")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.App.IsProduction() {
		cfg.Cookie.Secure = true
	}

	switch {
	case cfg.Token.JWTSecret == "":
		return nil, errors.Join(ErrMissingConfig, errors.New("JWT_SECRET is not set"))
	case cfg.DB.Driver == DriverPostgres && cfg.DB.DSN == "":
		return nil, errors.Join(ErrMissingConfig, errors.New("DATABASE_URL is not set"))
	case cfg.Redis.Addr == "":
		return nil, errors.Join(ErrMissingConfig, errors.New("REDIS_ADDR is not set"))
	}

	for _, p := range cfg.Server.TrustedProxies {
		if _, err := ParseTrustedProxy(p); err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "botgate")
	v.SetDefault("app.env", EnvDevelopment)
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.addr", defaultServerAddr)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.graceful_timeout", defaultGracefulTimeout)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("token.access_ttl", defaultAccessTTL)
	v.SetDefault("token.refresh_ttl", defaultRefreshTTL)
	v.SetDefault("token.issuer", "botgate")

	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.path", "/")

	v.SetDefault("ratelimit.authenticated.window", defaultAuthWindow)
	v.SetDefault("ratelimit.authenticated.limit", defaultAuthLimit)
	v.SetDefault("ratelimit.unauthenticated.window", defaultAnonWindow)
	v.SetDefault("ratelimit.unauthenticated.limit", defaultAnonLimit)
	v.SetDefault("ratelimit.violations.max", defaultMaxViolations)
	v.SetDefault("ratelimit.violations.memory_duration", defaultMemoryTime)
	v.SetDefault("ratelimit.violations.block_duration", defaultBlockTime)
	v.SetDefault("ratelimit.violations.count_all_requests", true)
	v.SetDefault("ratelimit.key_prefixes.ip", "rl:ip:")
	v.SetDefault("ratelimit.key_prefixes.violations", "rl:violations:")
	v.SetDefault("ratelimit.key_prefixes.blocks", "rl:blocks:")

	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.query_timeout", "2s")
	v.SetDefault("db.migrations_run", true)

	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "botgate")
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetDefault("notifier.driver", "none")
	v.SetDefault("notifier.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("notifier.kafka_topic", "security-events")
	v.SetDefault("notifier.timeout", "5s")
}
