// Package permission holds the role policy table: the closed set of platform
// roles, the rights each role carries, and the bitmask registry used to
// evaluate them.
//
// # Model
//
// A [Right] is an opaque tag. Rights are assigned bit positions by a
// [Registry]; every [Role] owns exactly one [Mask64] built by the
// [RoleManager]. Both are frozen before use, so a [Policy] is read-only and
// safe to share across goroutines without locking on the hot path beyond the
// registry's read lock.
//
// # Fail-closed lookups
//
// [Policy.RightsFor] never fails. A role that was never registered, or
// [RoleUnknown], yields the empty [RightSet]. A required right that was never
// registered can not be satisfied by any role.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import sessiongate, jwt, or realtime.
//   - Allow registration after Freeze.
package permission
