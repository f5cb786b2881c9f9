// Package middleware exposes HTTP middleware adapters that enforce
// authentication and authorization on top of authcore.Engine.
//
// # Guards
//
//   - [Guard] validates the bearer access token and injects the Grant.
//   - [RequireCapability] is Guard plus a capability check.
//   - [RequireRole] is Guard plus a minimum-role check.
//
// Each guard reads the Authorization header, calls Engine.ValidateAccess, and
// injects the validated grant into the request context for handlers to read
// via [GrantFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to the
// Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access the session store (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
