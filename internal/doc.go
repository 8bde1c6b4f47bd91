// Package internal holds packages private to sessiongate.
//
// # Sub-packages
//
//   - httpapi: user directory routes behind the request guard
//   - httputil: JSON responses and shared HTTP middleware
//   - rate: Redis-backed handshake failure throttle
//   - serverconfig: YAML plus environment configuration for cmd/sessiongate
package internal
