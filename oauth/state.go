package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStateNotFound means the state value is unknown, expired, or was
	// already consumed.
	ErrStateNotFound = errors.New("oauth state not found")
	// ErrStateUnavailable means the backing store could not be reached.
	ErrStateUnavailable = errors.New("oauth state store unavailable")
)

// State is the server-side half of one OAuth handshake.
type State struct {
	Provider string    `json:"provider"`
	Nonce    string    `json:"nonce"`
	IssuedAt time.Time `json:"issued_at"`
}

// StateStore persists handshake state between BeginOAuth and the provider
// callback. Consume removes the entry, so each state completes at most one
// exchange.
type StateStore interface {
	Save(ctx context.Context, id string, st State, ttl time.Duration) error
	Consume(ctx context.Context, id string) (State, error)
}

// MemoryStateStore is an in-process StateStore for tests and single-process
// deployments.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryState
}

type memoryState struct {
	st        State
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]memoryState)}
}

func (m *MemoryStateStore) Save(_ context.Context, id string, st State, ttl time.Duration) error {
	if id == "" || ttl <= 0 {
		return errors.New("oauth: invalid state entry")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryState{st: st, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStateStore) Consume(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return State{}, ErrStateNotFound
	}
	delete(m.entries, id)
	if time.Now().After(entry.expiresAt) {
		return State{}, ErrStateNotFound
	}
	return entry.st, nil
}

// RedisStateStore shares handshake state across processes. The GetDel read
// makes consumption single-use without a transaction.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

func (r *RedisStateStore) key(id string) string {
	return r.prefix + ":oauth:" + id
}

func (r *RedisStateStore) Save(ctx context.Context, id string, st State, ttl time.Duration) error {
	if id == "" || ttl <= 0 {
		return errors.New("oauth: invalid state entry")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return nil
}

func (r *RedisStateStore) Consume(ctx context.Context, id string) (State, error) {
	payload, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return State{}, ErrStateNotFound
	}
	return st, nil
}

var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ StateStore = (*RedisStateStore)(nil)
)
