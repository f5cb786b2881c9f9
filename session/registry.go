package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Replace when no record exists for the
	// (subject, session) pair: the session was revoked or expired.
	ErrNotFound = errors.New("session not found")

	// ErrNotCurrent is returned by Replace when a record exists but the
	// presented token identifier is not its current one. This is the
	// single-winner signal: a concurrent rotation already superseded the
	// presented identifier.
	ErrNotCurrent = errors.New("refresh token not current")

	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("session backend unavailable")
)

// Record is one live session: the current refresh-token identifier for a
// (subject, session) pair plus rotation timestamps.
type Record struct {
	SubjectID     string    `json:"subject_id"`
	SessionID     string    `json:"session_id"`
	TokenID       string    `json:"token_id"`
	IssuedAt      time.Time `json:"issued_at"`
	LastRotatedAt time.Time `json:"last_rotated_at"`
}

// Registry is the authoritative store of live refresh-token identifiers.
// Every mutating operation is atomic with respect to concurrent callers for
// the same subject; implementations must not serialize unrelated subjects
// behind one lock.
type Registry interface {
	// Register stores rec as the current record for (subject, session),
	// expiring after ttl. Registering over an existing session replaces it.
	Register(ctx context.Context, rec Record, ttl time.Duration) error

	// IsCurrent reports whether tokenID is the current identifier for the
	// (subject, session) pair. A missing or expired record reports false
	// with no error.
	IsCurrent(ctx context.Context, subjectID, sessionID, tokenID string) (bool, error)

	// Replace atomically swaps oldID for newID. It fails with ErrNotFound
	// when no record exists and ErrNotCurrent when the record's current
	// identifier is not oldID. Exactly one of N concurrent Replace calls
	// presenting the same oldID succeeds.
	Replace(ctx context.Context, subjectID, sessionID, oldID, newID string, ttl time.Duration) error

	// Revoke removes the (subject, session) record. Revoking an absent
	// session is a no-op, not an error.
	Revoke(ctx context.Context, subjectID, sessionID string) error

	// RevokeAll removes every session of the subject and returns how many
	// were removed.
	RevokeAll(ctx context.Context, subjectID string) (int, error)
}
