package authcore

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/planlane/authcore/internal/rate"
	"github.com/planlane/authcore/oauth"
	"github.com/planlane/authcore/password"
	"github.com/planlane/authcore/rbac"
	"github.com/planlane/authcore/session"
	"github.com/planlane/authcore/token"
)

// Builder assembles an Engine. Configure it during initialization and call
// Build once; the resulting Engine is immutable and safe for concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	memorySessions bool
	subjects       SubjectStore
	auditSink      AuditSink
	policy         *rbac.Policy
	federators     []oauth.Federator
	states         oauth.StateStore

	built bool
}

// New returns a Builder carrying DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs sessions, login throttling, and OAuth state with the given
// Redis client. Required for multi-process deployments.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMemorySessions uses in-process session, throttle, and state stores.
// Tokens minted by one process are then not revocable from another.
func (b *Builder) WithMemorySessions() *Builder {
	b.memorySessions = true
	return b
}

func (b *Builder) WithSubjectStore(store SubjectStore) *Builder {
	b.subjects = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPolicy replaces the default capability policy.
func (b *Builder) WithPolicy(policy *rbac.Policy) *Builder {
	b.policy = policy
	return b
}

// WithFederator registers OAuth providers under their Name.
func (b *Builder) WithFederator(federators ...oauth.Federator) *Builder {
	b.federators = append(b.federators, federators...)
	return b
}

// WithStateStore overrides the OAuth state store chosen by Build.
func (b *Builder) WithStateStore(store oauth.StateStore) *Builder {
	b.states = store
	return b
}

// Build validates the configuration and wires the Engine. The Builder cannot
// be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.subjects == nil {
		return nil, errors.New("subject store required")
	}
	if b.redis == nil && !b.memorySessions {
		return nil, errors.New("redis client required (or WithMemorySessions)")
	}

	hasher, err := password.NewHasher(cfg.Password.Params)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	tokens, err := token.NewManager(cfg.tokenConfig())
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	var sessions session.Registry
	var states oauth.StateStore
	var limiter rate.Limiter
	if b.redis != nil {
		sessions = session.NewRedisRegistry(b.redis, cfg.Session.KeyPrefix)
		states = oauth.NewRedisStateStore(b.redis, cfg.Session.KeyPrefix)
		if cfg.RateLimit.Enabled {
			limiter = rate.NewRedis(b.redis, rate.Config{
				EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
				MaxAttempts:      cfg.RateLimit.MaxAttempts,
				Cooldown:         cfg.RateLimit.Cooldown,
			})
		}
	} else {
		sessions = session.NewMemoryRegistry()
		states = oauth.NewMemoryStateStore()
		if cfg.RateLimit.Enabled {
			limiter = rate.NewLocal(rate.Config{
				EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
				MaxAttempts:      cfg.RateLimit.MaxAttempts,
				Cooldown:         cfg.RateLimit.Cooldown,
			})
		}
	}
	if b.states != nil {
		states = b.states
	}

	policy := b.policy
	if policy == nil {
		policy = rbac.DefaultPolicy()
	}

	federators := make(map[string]oauth.Federator, len(b.federators))
	for _, f := range b.federators {
		if f == nil || f.Name() == "" {
			return nil, errors.New("federator with empty name")
		}
		if _, dup := federators[f.Name()]; dup {
			return nil, fmt.Errorf("duplicate federator %q", f.Name())
		}
		federators[f.Name()] = f
	}

	// Hash a throwaway password once so Login can burn comparable time when
	// the identifier is unknown.
	decoy, err := hasher.Hash("authcore-decoy-credential")
	if err != nil {
		return nil, fmt.Errorf("decoy hash: %w", err)
	}

	e := &Engine{
		config:     cfg,
		hasher:     hasher,
		tokens:     tokens,
		sessions:   sessions,
		subjects:   b.subjects,
		authz:      rbac.NewAuthorizer(policy),
		limiter:    limiter,
		federators: federators,
		states:     states,
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		decoyHash:  decoy,
		ready:      true,
	}
	return e, nil
}
