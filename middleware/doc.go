// Package middleware exposes HTTP guards built on sessiongate.Engine.Authorize.
//
// # Guards
//
//   - [Authorize] requires every listed right.
//   - [AuthorizeOwner] also admits the owner of the targeted resource, whose
//     id is supplied by an [OwnerFunc] such as [PathOwner].
//   - [Authenticated] admits any valid token.
//
// Each guard reads the Authorization header, calls Engine.Authorize, and
// injects the resolved identity into the request context
// ([IdentityFromContext]). Failures render
// {"code":401,"message":"Please authenticate"} or
// {"code":403,"message":"Forbidden"}.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Decide rights itself; the policy lives in the engine.
package middleware
