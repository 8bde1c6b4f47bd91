package sessiongate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/sessiongate/internal/rate"
	"github.com/MrEthical07/sessiongate/jwt"
	"github.com/MrEthical07/sessiongate/permission"
)

// Engine verifies bearer tokens, authorizes HTTP requests against the role
// policy and authenticates socket handshakes.
//
// Engine holds no per-request state and is safe for concurrent use after
// Builder.Build.
type Engine struct {
	config     Config
	policy     *permission.Policy
	jwtManager *jwt.Manager
	identities IdentityProvider
	limiter    *rate.Limiter
	audit      *auditDispatcher
	metrics    *Metrics
	logger     *slog.Logger
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the counter set so the realtime layer can record into the
// same snapshot.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Logger returns the engine's structured logger.
func (e *Engine) Logger() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// RightsFor returns the right-set of role. Unknown roles yield the empty set.
func (e *Engine) RightsFor(role permission.Role) permission.RightSet {
	if e == nil {
		return permission.RightSet{}
	}
	return e.policy.RightsFor(role)
}

// Verify validates token and resolves its subject to a live identity.
//
// Errors: ErrMissingToken for an empty token; ErrInvalidToken (wrapping the
// parser error) for malformed, badly signed, expired or non-access tokens;
// ErrUnknownSubject when the identity no longer exists; ErrLookupUnavailable
// when the lookup fails or exceeds Lookup.Timeout.
func (e *Engine) Verify(ctx context.Context, token string) (*Identity, error) {
	if e == nil || e.jwtManager == nil || e.identities == nil {
		return nil, ErrEngineNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}()

	if token == "" {
		e.metricInc(MetricVerifyMissingToken)
		return nil, ErrMissingToken
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricVerifyInvalidToken)
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.Lookup.Timeout)
	defer cancel()

	identity, err := e.identities.FindIdentityByID(lookupCtx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.metricInc(MetricVerifyUnknownSubject)
			return nil, ErrUnknownSubject
		}
		e.metricInc(MetricLookupUnavailable)
		e.logger.Warn("identity lookup failed", "subject", claims.Subject, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLookupUnavailable, err)
	}
	if identity.ID == "" {
		identity.ID = claims.Subject
	}

	e.metricInc(MetricVerifySuccess)
	return &identity, nil
}

// Authorize verifies token and checks the identity against required.
//
// Any verification failure yields ErrUnauthenticated wrapping the cause. An
// empty required list admits every authenticated identity. Otherwise the
// identity is admitted when its role holds every required right, or when
// ownerID is non-empty and equal to the identity's own id. Everything else
// yields ErrForbidden.
func (e *Engine) Authorize(ctx context.Context, token string, required []permission.Right, ownerID string) (*Identity, error) {
	identity, err := e.Verify(ctx, token)
	if err != nil {
		e.metricInc(MetricAuthorizeUnauthenticated)
		e.emitAudit(ctx, auditEventAuthorizeFailure, false, "", "", err, nil)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if len(required) == 0 {
		e.metricInc(MetricAuthorizeSuccess)
		return identity, nil
	}

	if e.policy.Satisfies(identity.Role, required) {
		e.metricInc(MetricAuthorizeSuccess)
		return identity, nil
	}

	if ownerID != "" && ownerID == identity.ID {
		e.metricInc(MetricSelfAccessOverride)
		e.metricInc(MetricAuthorizeSuccess)
		return identity, nil
	}

	e.metricInc(MetricAuthorizeForbidden)
	e.emitAudit(ctx, auditEventAccessForbidden, false, identity.ID, "", ErrForbidden, func() map[string]string {
		return map[string]string{
			"role":     identity.Role.String(),
			"required": joinRights(required),
		}
	})
	return identity, ErrForbidden
}

// AuthenticateHandshake authenticates a socket connection attempt exactly
// once, before the connection is admitted. The handshake auth field takes
// precedence over the query token.
//
// Failures are returned as *HandshakeError whose Message is one of the
// Handshake* constants.
func (e *Engine) AuthenticateHandshake(ctx context.Context, hs Handshake) (*Identity, error) {
	if e == nil {
		return nil, newHandshakeError(ErrEngineNotReady)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = WithClientIP(ctx, hs.RemoteAddr)

	if e.limiter != nil {
		if err := e.limiter.CheckHandshake(ctx, hs.RemoteAddr); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return nil, e.rejectHandshake(ctx, hs, ErrHandshakeRateLimited)
			}
			// Throttle outages must not lock every client out.
			e.logger.Warn("handshake throttle unavailable", "error", err)
		}
	}

	identity, err := e.Verify(ctx, hs.token())
	if err != nil {
		if e.limiter != nil {
			if lerr := e.limiter.RecordHandshakeFailure(ctx, hs.RemoteAddr); lerr != nil && !errors.Is(lerr, rate.ErrRateLimited) {
				e.logger.Warn("handshake throttle unavailable", "error", lerr)
			}
		}
		return nil, e.rejectHandshake(ctx, hs, err)
	}

	if e.limiter != nil {
		if err := e.limiter.ResetHandshake(ctx, hs.RemoteAddr); err != nil {
			e.logger.Warn("handshake throttle reset failed", "error", err)
		}
	}

	e.metricInc(MetricHandshakeAccepted)
	e.emitAudit(ctx, auditEventHandshakeAccepted, true, identity.ID, "", nil, nil)
	return identity, nil
}

func (e *Engine) rejectHandshake(ctx context.Context, hs Handshake, cause error) *HandshakeError {
	herr := newHandshakeError(cause)
	if errors.Is(cause, ErrHandshakeRateLimited) {
		e.metricInc(MetricHandshakeRateLimited)
	}
	e.metricInc(MetricHandshakeRejected)
	e.logger.Debug("handshake rejected", "remote_addr", hs.RemoteAddr, "reason", herr.Message, "error", cause)
	e.emitAudit(ctx, auditEventHandshakeRejected, false, "", "", cause, func() map[string]string {
		return map[string]string{"message": herr.Message}
	})
	return herr
}

// IssueAccessToken mints an access token for subject. It serves the login
// collaborator and tests; the engine itself never logs anyone in.
func (e *Engine) IssueAccessToken(subject string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	return e.jwtManager.IssueAccess(subject)
}

// IssueToken mints a token of typ with the TTL configured for that type.
func (e *Engine) IssueToken(subject string, typ jwt.TokenType) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	var ttl time.Duration
	switch typ {
	case jwt.TypeAccess:
		ttl = e.config.JWT.AccessTTL
	case jwt.TypeRefresh:
		ttl = e.config.JWT.RefreshTTL
	case jwt.TypeResetPassword:
		ttl = e.config.JWT.ResetPasswordTTL
	case jwt.TypeVerifyEmail:
		ttl = e.config.JWT.VerifyEmailTTL
	default:
		return "", fmt.Errorf("unsupported token type %q", typ)
	}
	return e.jwtManager.Issue(subject, typ, ttl)
}

// RecordConnection emits the audit event for a connection entering or
// leaving the room graph.
func (e *Engine) RecordConnection(ctx context.Context, identity Identity, connID string, opened bool) {
	eventType := auditEventConnectionClosed
	if opened {
		eventType = auditEventConnectionOpened
	}
	e.emitAudit(ctx, eventType, true, identity.ID, connID, nil, nil)
}

func joinRights(rights []permission.Right) string {
	out := ""
	for i, r := range rights {
		if i > 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}
