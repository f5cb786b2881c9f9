package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry. Each subject owns its own lock,
// so rotations for different subjects never contend. Intended for tests and
// single-process deployments; use RedisRegistry when more than one process
// validates tokens.
type MemoryRegistry struct {
	mu       sync.RWMutex
	subjects map[string]*memorySubject
}

type memorySubject struct {
	mu       sync.Mutex
	sessions map[string]*memoryRecord
}

type memoryRecord struct {
	rec       Record
	expiresAt time.Time
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{subjects: make(map[string]*memorySubject)}
}

func (m *MemoryRegistry) subject(subjectID string, create bool) *memorySubject {
	m.mu.RLock()
	sub := m.subjects[subjectID]
	m.mu.RUnlock()
	if sub != nil || !create {
		return sub
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sub = m.subjects[subjectID]; sub == nil {
		sub = &memorySubject{sessions: make(map[string]*memoryRecord)}
		m.subjects[subjectID] = sub
	}
	return sub
}

// Register stores rec, replacing any existing record for the session.
func (m *MemoryRegistry) Register(_ context.Context, rec Record, ttl time.Duration) error {
	if rec.SubjectID == "" || rec.SessionID == "" || rec.TokenID == "" {
		return errInvalidRecord
	}
	if ttl <= 0 {
		return errInvalidTTL
	}

	sub := m.subject(rec.SubjectID, true)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.sessions[rec.SessionID] = &memoryRecord{rec: rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

// IsCurrent reports whether tokenID is the live identifier for the session.
func (m *MemoryRegistry) IsCurrent(_ context.Context, subjectID, sessionID, tokenID string) (bool, error) {
	sub := m.subject(subjectID, false)
	if sub == nil {
		return false, nil
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()

	entry := sub.sessions[sessionID]
	if entry == nil {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(sub.sessions, sessionID)
		return false, nil
	}
	return entry.rec.TokenID == tokenID, nil
}

// Replace performs the compare-and-swap under the subject lock.
func (m *MemoryRegistry) Replace(_ context.Context, subjectID, sessionID, oldID, newID string, ttl time.Duration) error {
	sub := m.subject(subjectID, false)
	if sub == nil {
		return ErrNotFound
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()

	entry := sub.sessions[sessionID]
	if entry == nil {
		return ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(sub.sessions, sessionID)
		return ErrNotFound
	}
	if entry.rec.TokenID != oldID {
		return ErrNotCurrent
	}

	entry.rec.TokenID = newID
	entry.rec.LastRotatedAt = time.Now()
	entry.expiresAt = time.Now().Add(ttl)
	return nil
}

// Revoke removes the session. Absent sessions are a no-op.
func (m *MemoryRegistry) Revoke(_ context.Context, subjectID, sessionID string) error {
	sub := m.subject(subjectID, false)
	if sub == nil {
		return nil
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	delete(sub.sessions, sessionID)
	return nil
}

// RevokeAll removes every live session of the subject.
func (m *MemoryRegistry) RevokeAll(_ context.Context, subjectID string) (int, error) {
	sub := m.subject(subjectID, false)
	if sub == nil {
		return 0, nil
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()

	now := time.Now()
	n := 0
	for sid, entry := range sub.sessions {
		if now.Before(entry.expiresAt) {
			n++
		}
		delete(sub.sessions, sid)
	}
	return n, nil
}

var (
	errInvalidRecord = errors.New("session: incomplete record")
	errInvalidTTL    = errors.New("session: non-positive ttl")
)

var _ Registry = (*MemoryRegistry)(nil)
