package sessiongate

import (
	"errors"
	"time"
)

// Config holds all engine settings. Obtain a populated value from
// DefaultConfig and override fields before passing it to Builder.WithConfig.
type Config struct {
	JWT       JWTConfig
	Lookup    LookupConfig
	Handshake HandshakeConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing and verification.
type JWTConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ResetPasswordTTL time.Duration
	VerifyEmailTTL   time.Duration
	SigningMethod    string // "hs256" (default) or "ed25519"
	PrivateKey       []byte
	PublicKey        []byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	KeyID            string
}

/*
====================================
LOOKUP CONFIG
====================================
*/

// LookupConfig bounds the identity lookup performed after token validation.
type LookupConfig struct {
	Timeout time.Duration
}

/*
====================================
HANDSHAKE CONFIG
====================================
*/

// HandshakeConfig controls socket handshake failure throttling. Throttling
// requires a Redis client.
type HandshakeConfig struct {
	EnableThrottle bool
	MaxFailures    int
	FailureWindow  time.Duration
	RedisPrefix    string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Signing keys are left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:        30 * time.Minute,
			RefreshTTL:       30 * 24 * time.Hour,
			ResetPasswordTTL: 10 * time.Minute,
			VerifyEmailTTL:   10 * time.Minute,
			SigningMethod:    "hs256",
			Leeway:           0,
		},
		Lookup: LookupConfig{
			Timeout: 2 * time.Second,
		},
		Handshake: HandshakeConfig{
			EnableThrottle: false,
			MaxFailures:    10,
			FailureWindow:  time.Minute,
			RedisPrefix:    "sg",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for missing keys and out-of-range
// values. It is called by Builder.Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 || c.JWT.ResetPasswordTTL <= 0 || c.JWT.VerifyEmailTTL <= 0 {
		return errors.New("JWT token TTLs must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 PrivateKey must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Lookup
	if c.Lookup.Timeout <= 0 {
		return errors.New("Lookup Timeout must be > 0")
	}

	// Handshake
	if c.Handshake.EnableThrottle {
		if c.Handshake.MaxFailures <= 0 {
			return errors.New("Handshake MaxFailures must be > 0 when throttling is enabled")
		}
		if c.Handshake.FailureWindow <= 0 {
			return errors.New("Handshake FailureWindow must be > 0 when throttling is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
