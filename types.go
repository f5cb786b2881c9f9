package authcore

import (
	"context"
	"time"

	"github.com/planlane/authcore/rbac"
)

// Subject is one account known to the engine. Password subjects carry an
// argon2id hash; federated subjects carry the provider pair instead and may
// have no local password at all.
type Subject struct {
	ID              string
	Email           string
	DisplayName     string
	PasswordHash    string
	Role            rbac.Role
	Active          bool
	Provider        string
	ProviderSubject string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubjectStore is the interface callers implement to connect the engine to
// their account database. Implementations return ErrSubjectNotFound when no
// subject matches and ErrSubjectExists on unique-email conflicts.
type SubjectStore interface {
	GetByEmail(ctx context.Context, email string) (Subject, error)
	GetByID(ctx context.Context, subjectID string) (Subject, error)
	GetByProvider(ctx context.Context, provider, providerSubject string) (Subject, error)
	Create(ctx context.Context, sub Subject) (Subject, error)
	UpdatePasswordHash(ctx context.Context, subjectID, hash string) error
	LinkProvider(ctx context.Context, subjectID, provider, providerSubject string) error
	SetActive(ctx context.Context, subjectID string, active bool) error
}

// TokenPair is an access token and the refresh token that renews it.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Grant is the verified identity extracted from a token. It is the input to
// Authorize and the value middleware attaches to request contexts.
type Grant struct {
	SubjectID string
	SessionID string
	TokenID   string
	Role      rbac.Role
	ExpiresAt time.Time
}

// CreateSubjectInput is the input for [Engine.CreateSubject]. Role defaults
// to the configured default role when zero.
type CreateSubjectInput struct {
	Email       string
	DisplayName string
	Password    string
	Role        rbac.Role
}

// AuthRedirect is the provider authorization URL and the state value the
// caller must round-trip through the provider.
type AuthRedirect struct {
	URL   string
	State string
}
