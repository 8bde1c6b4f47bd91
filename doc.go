// Package sessiongate authenticates and authorizes users of a multi-role
// learning platform over two channels: short-lived bearer tokens checked on
// every HTTP request, and socket connections authenticated once at handshake
// and trusted for their lifetime.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessiongate is the public surface. It exposes [Engine], [Builder], [Config]
// and the value types [Identity] and [Handshake]. Role rights live in
// permission, token cryptography in jwt, rooms and event routing in realtime,
// wire transports in transport and HTTP guards in middleware.
//
// # Failure taxonomy
//
//   - [ErrMissingToken], [ErrInvalidToken], [ErrUnknownSubject] and
//     [ErrLookupUnavailable] from Verify.
//   - [ErrUnauthenticated] (wrapping one of the above) and [ErrForbidden] from
//     Authorize. A token that fails validation never yields ErrForbidden.
//   - [*HandshakeError] from AuthenticateHandshake, whose message is the
//     client-facing string.
//
// # What this package must NOT do
//
//   - Touch room state. Handshake failure leaves no trace in the realtime layer.
//   - Re-authenticate live connections. An expiring token does not revoke an
//     admitted connection.
//   - Import any sub-package that re-imports sessiongate (no import cycles).
package sessiongate
