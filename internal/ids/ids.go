// Package ids generates the identifiers used across the engine: sortable
// session identifiers and opaque single-use values for OAuth handshakes.
package ids

import (
	"crypto/rand"
	"encoding/base64"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewSessionID returns a lexicographically sortable identifier for a session.
// Sortability keeps session keys clustered by creation time in the store.
func NewSessionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewOpaque returns n bytes of cryptographic randomness encoded as unpadded
// base64url. Used for OAuth state and nonce values, which must be
// unguessable rather than sortable.
func NewOpaque(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
