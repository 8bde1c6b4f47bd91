package sessiongate

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/sessiongate/internal/rate"
	"github.com/MrEthical07/sessiongate/jwt"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use: Build may succeed at
// most once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	policy     *permission.Policy
	identities IdentityProvider
	auditSink  AuditSink
	logger     *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used for handshake throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPolicy overrides the role policy. Without it the engine uses
// permission.DefaultTable.
func (b *Builder) WithPolicy(p *permission.Policy) *Builder {
	b.policy = p
	return b
}

// WithIdentityProvider sets the lookup used to resolve token subjects.
// Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identities == nil {
		return nil, errors.New("identity provider required")
	}
	if cfg.Handshake.EnableThrottle && b.redis == nil {
		return nil, errors.New("handshake throttle requires redis client")
	}

	policy := b.policy
	if policy == nil {
		p, err := permission.NewPolicy(permission.DefaultTable)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)
	engine := &Engine{
		config:     cloneConfig(cfg),
		policy:     policy,
		jwtManager: jm,
		identities: b.identities,
		metrics:    metrics,
		logger:     logger.With("component", "engine"),
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, metrics, logger)

	if cfg.Handshake.EnableThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:        cfg.Handshake.RedisPrefix,
			MaxFailures:   cfg.Handshake.MaxFailures,
			FailureWindow: cfg.Handshake.FailureWindow,
		})
	}

	b.built = true

	return engine, nil
}
