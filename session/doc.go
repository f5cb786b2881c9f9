// Package session provides the authoritative registry of live refresh-token
// identifiers, keyed by (subject, session).
//
// # Correctness contract
//
// At most one current refresh-token identifier exists per (subject, session).
// [Registry.Replace] has compare-and-swap semantics: under concurrent rotation
// attempts for the same session exactly one caller wins; the others observe
// [ErrNotCurrent]. Revoke is idempotent.
//
// Two implementations are provided: [RedisRegistry] (shared store, Lua-script
// CAS, the production default) and [MemoryRegistry] (per-subject locking,
// single process).
//
// # Architecture boundaries
//
// This package stores and swaps identifiers. It does not parse tokens, decide
// reuse policy, or emit audit events; the Engine does.
//
// # What this package must NOT do
//
//   - Import token, rbac, or the root authcore package.
//   - Hold a lock across a Redis round trip.
//   - Interpret a Replace mismatch: reporting ErrNotCurrent is the caller's
//     signal, containment is the caller's job.
package session
