package sessiongate

import "errors"

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken covers malformed, badly signed, expired and non-access tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownSubject is returned for a well-formed token whose subject has no identity.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrLookupUnavailable is returned when the identity lookup failed or timed out.
	ErrLookupUnavailable = errors.New("identity lookup unavailable")
	// ErrUnauthenticated wraps every verification failure seen by Authorize.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the identity lacks a required right and
	// does not own the target resource.
	ErrForbidden = errors.New("forbidden")
	// ErrIdentityNotFound must be returned by an IdentityProvider for unknown ids.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrHandshakeRateLimited is returned when a remote address exceeded its
	// handshake failure budget.
	ErrHandshakeRateLimited = errors.New("handshake rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Handshake rejection messages. Clients match on these strings.
const (
	HandshakeTokenRequired   = "Authentication error: Token required"
	HandshakeUserNotFound    = "Authentication error: User not found"
	HandshakeInvalidToken    = "Authentication error: Invalid token"
	HandshakeTooManyAttempts = "Authentication error: Too many attempts"
)

// HandshakeError is the rejection returned by AuthenticateHandshake. Message
// is sent to the client verbatim; Err keeps the underlying cause.
type HandshakeError struct {
	Message string
	Err     error
}

func (e *HandshakeError) Error() string {
	return e.Message
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func newHandshakeError(err error) *HandshakeError {
	switch {
	case errors.Is(err, ErrMissingToken):
		return &HandshakeError{Message: HandshakeTokenRequired, Err: err}
	case errors.Is(err, ErrUnknownSubject):
		return &HandshakeError{Message: HandshakeUserNotFound, Err: err}
	case errors.Is(err, ErrHandshakeRateLimited):
		return &HandshakeError{Message: HandshakeTooManyAttempts, Err: err}
	default:
		return &HandshakeError{Message: HandshakeInvalidToken, Err: err}
	}
}
