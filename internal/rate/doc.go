// Package rate provides Redis-backed fixed-window counters used to throttle
// repeated handshake authentication failures.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefix:
//   - hsf: handshake failures per remote address
//
// # What this package must NOT do
//
//   - Decide what a failure is (the engine reports failures).
//   - Be imported outside the sessiongate module.
package rate
