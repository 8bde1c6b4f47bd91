package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix        string
	MaxFailures   int
	FailureWindow time.Duration
}

// Limiter counts handshake failures per remote address using Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "sg"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckHandshake returns ErrRateLimited when addr has already used up its
// failure budget for the current window. Empty addresses are never limited.
func (l *Limiter) CheckHandshake(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	count, err := l.redis.Get(ctx, l.handshakeKey(addr)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}

	return nil
}

// RecordHandshakeFailure counts one failed handshake for addr. It returns
// ErrRateLimited once the failure budget is exhausted.
func (l *Limiter) RecordHandshakeFailure(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.handshakeKey(addr), l.config.FailureWindow)
	if err != nil {
		return err
	}
	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}
	return nil
}

// ResetHandshake clears the failure counter for addr after a successful
// handshake.
func (l *Limiter) ResetHandshake(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.handshakeKey(addr)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// HandshakeFailures returns the current failure count for addr.
func (l *Limiter) HandshakeFailures(ctx context.Context, addr string) (int, error) {
	count, err := l.redis.Get(ctx, l.handshakeKey(addr)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) handshakeKey(addr string) string {
	return l.config.Prefix + ":hsf:" + addr
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
