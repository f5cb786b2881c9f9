package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates access tokens from refresh tokens. A token minted as one
// kind is never accepted where the other is expected.
type Kind string

const (
	// KindAccess marks short-lived tokens presented on every protected request.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived tokens presented only to obtain a new pair.
	KindRefresh Kind = "refresh"
)

// SigningMethod selects the signature algorithm family.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the
	// corresponding public key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrMalformed is returned when a token is structurally invalid: wrong
	// segment count, undecodable payload, wrong kind, or unknown algorithm.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature is returned when the signature does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrExpired is returned when a correctly signed token is past its expiry
	// beyond the configured leeway.
	ErrExpired = errors.New("token expired")
)

// Claims is the signed payload carried by every token. Claims are immutable
// once signed; changing any field requires a new mint.
type Claims struct {
	Role      string `json:"role"`
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject identifier the token was minted for.
func (c *Claims) SubjectID() string { return c.Subject }

// TokenID returns the unique per-mint token identifier (jti).
func (c *Claims) TokenID() string { return c.ID }

// Config controls minting and verification.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Manager mints and parses tokens. It holds no mutable state and is safe for
// concurrent use.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("token: hs256 requires a signing secret")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("token: unsupported signing method")
	}
	return &Manager{cfg: cfg}, nil
}

// IssueAccess mints an access token for the subject with a fresh jti.
func (m *Manager) IssueAccess(subjectID, role, sessionID string) (string, error) {
	return m.issue(KindAccess, subjectID, role, sessionID, uuid.NewString(), m.cfg.AccessTTL)
}

// IssueRefresh mints a refresh token carrying the caller-supplied token
// identifier. The caller registers tokenID with the session registry before
// handing the token out, so issuance and registration stay atomic from the
// client's point of view.
func (m *Manager) IssueRefresh(subjectID, role, sessionID, tokenID string) (string, error) {
	if tokenID == "" {
		return "", errors.New("token: refresh token id required")
	}
	return m.issue(KindRefresh, subjectID, role, sessionID, tokenID, m.cfg.RefreshTTL)
}

func (m *Manager) issue(kind Kind, subjectID, role, sessionID, tokenID string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("token: subject id required")
	}
	now := time.Now()
	claims := Claims{
		Role:      role,
		Kind:      kind,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.cfg.Issuer,
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies the signature of tokenStr and returns the decoded claims.
// The signature is checked before any claim is inspected; leeway applies to
// the expiry check only. A token of the wrong kind fails with ErrMalformed.
func (m *Manager) Parse(tokenStr string, want Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.Kind != want || claims.Subject == "" || claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}

func (m *Manager) method() jwt.SigningMethod {
	if m.cfg.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.PrivateKey, nil
	}
	return parseEdPrivateKey(m.cfg.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.PrivateKey, nil
	}
	return parseEdPublicKey(m.cfg.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 public key type")
	}
	return edKey, nil
}
