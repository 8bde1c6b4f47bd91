// Package serverconfig loads the sessiongate server configuration from an
// optional YAML file overlaid by environment variables.
package serverconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/sessiongate"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	LogLevel        string        `yaml:"log_level"`

	JWT      JWTConfig      `yaml:"jwt"`
	Store    StoreConfig    `yaml:"store"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Audit    bool           `yaml:"audit"`
}

// JWTConfig mirrors the token settings of the engine. Secret is normally
// supplied through JWT_SECRET rather than the file.
type JWTConfig struct {
	Secret           string        `yaml:"secret"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	ResetPasswordTTL time.Duration `yaml:"reset_password_ttl"`
	VerifyEmailTTL   time.Duration `yaml:"verify_email_ttl"`
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
}

type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	DatabaseURL string        `yaml:"database_url"`
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type ThrottleConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures int           `yaml:"max_failures"`
	Window      time.Duration `yaml:"window"`
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() Config {
	engine := sessiongate.DefaultConfig()
	return Config{
		Addr:            ":3000",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		JWT: JWTConfig{
			AccessTTL:        engine.JWT.AccessTTL,
			RefreshTTL:       engine.JWT.RefreshTTL,
			ResetPasswordTTL: engine.JWT.ResetPasswordTTL,
			VerifyEmailTTL:   engine.JWT.VerifyEmailTTL,
		},
		Store: StoreConfig{
			Backend:     BackendMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "sg",
		},
		Throttle: ThrottleConfig{
			MaxFailures: engine.Handshake.MaxFailures,
			Window:      engine.Handshake.FailureWindow,
		},
	}
}

// Load reads path (when non-empty) over Default and then applies the
// environment. It fails fast when JWT_SECRET is missing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT %q", port)
		}
		cfg.Addr = ":" + port
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}

	minutes := func(key string, dst *time.Duration) error {
		n, ok, err := getEnvInt(key)
		if err != nil || !ok {
			return err
		}
		*dst = time.Duration(n) * time.Minute
		return nil
	}
	if err := minutes("JWT_ACCESS_EXPIRATION_MINUTES", &cfg.JWT.AccessTTL); err != nil {
		return err
	}
	if err := minutes("JWT_RESET_PASSWORD_EXPIRATION_MINUTES", &cfg.JWT.ResetPasswordTTL); err != nil {
		return err
	}
	if err := minutes("JWT_VERIFY_EMAIL_EXPIRATION_MINUTES", &cfg.JWT.VerifyEmailTTL); err != nil {
		return err
	}
	if days, ok, err := getEnvInt("JWT_REFRESH_EXPIRATION_DAYS"); err != nil {
		return err
	} else if ok {
		cfg.JWT.RefreshTTL = time.Duration(days) * 24 * time.Hour
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("SOCKET_IO_CORS_ORIGIN"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("missing required environment variable: JWT_SECRET")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("redis backend requires redis_addr")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("postgres backend requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid store backend %q: must be memory, redis or postgres", c.Store.Backend)
	}
	if c.Store.CacheSize < 0 || c.Store.CacheTTL < 0 {
		return errors.New("cache size and ttl must not be negative")
	}
	if c.Store.CacheSize > 0 && c.Store.CacheTTL == 0 {
		return errors.New("cache_ttl is required when cache_size is set")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	engine := c.Engine()
	return engine.Validate()
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// Engine maps the server settings onto an engine configuration.
func (c *Config) Engine() sessiongate.Config {
	cfg := sessiongate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	cfg.JWT.ResetPasswordTTL = c.JWT.ResetPasswordTTL
	cfg.JWT.VerifyEmailTTL = c.JWT.VerifyEmailTTL
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience

	cfg.Handshake.EnableThrottle = c.Throttle.Enabled
	cfg.Handshake.MaxFailures = c.Throttle.MaxFailures
	cfg.Handshake.FailureWindow = c.Throttle.Window
	cfg.Handshake.RedisPrefix = c.Store.RedisPrefix

	cfg.Audit.Enabled = c.Audit
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func getEnvInt(key string) (int, bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, true, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
