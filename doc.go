// Package authcore provides the authentication and authorization engine for a
// project-management backend: argon2id credential verification, JWT access
// tokens, rotating refresh tokens with single-use enforcement, role-based
// authorization, and OAuth federation to Google and GitHub.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, Grant, MetricsSnapshot). Domain mechanics live
// in the token, password, rbac, session, and oauth subpackages; supporting
// infrastructure lives under internal/ and is never exported.
//
// # Performance contract
//
// ValidateAccess is the hot path: a signature check and claim decode with no
// store round-trip. Login, Refresh, and ValidateRefresh are allowed one
// session-store round-trip per call.
package authcore
