package sessiongate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventAuthorizeFailure  = "authorize_failure"
	auditEventAccessForbidden   = "access_forbidden"
	auditEventHandshakeAccepted = "handshake_accepted"
	auditEventHandshakeRejected = "handshake_rejected"
	auditEventConnectionOpened  = "connection_opened"
	auditEventConnectionClosed  = "connection_closed"
)

// AuditErrorCode is the stable error classification written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrMissingToken      AuditErrorCode = "missing_token"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrUnknownSubject    AuditErrorCode = "unknown_subject"
	auditErrLookupUnavailable AuditErrorCode = "lookup_unavailable"
	auditErrForbidden         AuditErrorCode = "forbidden"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	connID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		UserID:       userID,
		ConnectionID: connID,
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMissingToken):
		return auditErrMissingToken
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnknownSubject):
		return auditErrUnknownSubject
	case errors.Is(err, ErrLookupUnavailable):
		return auditErrLookupUnavailable
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrHandshakeRateLimited):
		return auditErrRateLimited
	default:
		return auditErrInternal
	}
}
