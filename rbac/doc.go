// Package rbac implements role-based access control for the four fixed
// product roles: Admin, ProjectManager, Developer, and Viewer.
//
// # Decision model
//
// Capabilities are registered once at startup and assigned bit positions in a
// 64-bit mask. Each role carries an immutable capability mask; an allow
// decision is a single mask test. Roles additionally form a strict total
// order (Admin > ProjectManager > Developer > Viewer) used for at-least-role
// checks.
//
// # Architecture boundaries
//
// This package owns the capability registry, the role order, and the
// [Authorizer] decision functions. It never looks at tokens or sessions; the
// caller supplies a role it has already authenticated.
//
// # What this package must NOT do
//
//   - Perform I/O or hold mutable state after [Policy] construction.
//   - Default to allow: unknown roles and unknown capabilities always deny.
package rbac
