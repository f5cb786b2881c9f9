package authcore

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/planlane/authcore/password"
	"github.com/planlane/authcore/rbac"
	"github.com/planlane/authcore/token"
)

// Config is the full engine configuration. Zero values are filled in by
// DefaultConfig; FromEnv loads the same tree from environment variables.
type Config struct {
	Token     TokenConfig     `envPrefix:"AUTHCORE_TOKEN_"`
	Password  PasswordConfig  `envPrefix:"AUTHCORE_PASSWORD_"`
	Session   SessionConfig   `envPrefix:"AUTHCORE_SESSION_"`
	RateLimit RateLimitConfig `envPrefix:"AUTHCORE_RATELIMIT_"`
	OAuth     OAuthConfig     `envPrefix:"AUTHCORE_OAUTH_"`
	Account   AccountConfig   `envPrefix:"AUTHCORE_ACCOUNT_"`
	Audit     AuditConfig     `envPrefix:"AUTHCORE_AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"AUTHCORE_METRICS_"`
}

// TokenConfig configures the JWT manager.
type TokenConfig struct {
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"30m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	// Algorithm is "hs256" or "ed25519".
	Algorithm string `env:"ALGORITHM" envDefault:"hs256"`
	// Secret is the HMAC key for hs256 and the private key (raw or PEM)
	// for ed25519.
	Secret string `env:"SECRET"`
	// PublicKey is only used with ed25519.
	PublicKey string        `env:"PUBLIC_KEY"`
	Issuer    string        `env:"ISSUER" envDefault:"authcore"`
	Leeway    time.Duration `env:"LEEWAY" envDefault:"30s"`
}

// PasswordConfig configures hashing parameters and the strength policy for
// new passwords. Neither is environment-tunable; both are code-level choices.
type PasswordConfig struct {
	Params password.Params
	Policy password.Policy
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	// KeyPrefix namespaces registry keys in a shared Redis.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"ac"`
}

// RateLimitConfig configures failed-login throttling.
type RateLimitConfig struct {
	Enabled          bool          `env:"ENABLED" envDefault:"true"`
	EnableIPThrottle bool          `env:"IP_THROTTLE" envDefault:"true"`
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Cooldown         time.Duration `env:"COOLDOWN" envDefault:"15m"`
}

// OAuthConfig configures federation behavior shared by all providers.
type OAuthConfig struct {
	// AutoLink attaches a verified provider identity to an existing subject
	// with the same email instead of failing the exchange.
	AutoLink bool          `env:"AUTO_LINK" envDefault:"true"`
	StateTTL time.Duration `env:"STATE_TTL" envDefault:"10m"`
}

// AccountConfig configures subject creation.
type AccountConfig struct {
	// DefaultRole is assigned when CreateSubject gets a zero role and to
	// subjects created through OAuth.
	DefaultRole rbac.Role
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED" envDefault:"true"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	// DropIfFull drops events instead of blocking callers when the buffer
	// is full. Drops are counted and visible via Engine.AuditDropped.
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// MetricsConfig configures the engine counters.
type MetricsConfig struct {
	Enabled                bool `env:"ENABLED" envDefault:"true"`
	EnableLatencyHistogram bool `env:"LATENCY_HISTOGRAM" envDefault:"false"`
}

// DefaultConfig returns the configuration used when the Builder gets no
// explicit Config. The token secret must still be provided.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Algorithm:  string(token.MethodHS256),
			Issuer:     "authcore",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Params: password.DefaultParams(),
			Policy: password.DefaultPolicy(),
		},
		Session: SessionConfig{
			KeyPrefix: "ac",
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			EnableIPThrottle: true,
			MaxAttempts:      5,
			Cooldown:         15 * time.Minute,
		},
		OAuth: OAuthConfig{
			AutoLink: true,
			StateTTL: 10 * time.Minute,
		},
		Account: AccountConfig{
			DefaultRole: rbac.RoleViewer,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// FromEnv loads the configuration from environment variables, reading a
// .env file first when one exists.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	// Hashing parameters and the password policy are not env-tunable.
	cfg.Password = PasswordConfig{
		Params: password.DefaultParams(),
		Policy: password.DefaultPolicy(),
	}
	if cfg.Account.DefaultRole == rbac.RoleUnknown {
		cfg.Account.DefaultRole = rbac.RoleViewer
	}

	return cfg, nil
}

// Validate reports the first configuration problem it finds. Builder.Build
// calls it; callers constructing Config by hand may call it early.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	switch token.SigningMethod(c.Token.Algorithm) {
	case token.MethodHS256:
		if len(c.Token.Secret) == 0 {
			return errors.New("hs256 requires a token secret")
		}
	case token.MethodEd25519:
		if len(c.Token.Secret) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires private and public keys")
		}
	default:
		return fmt.Errorf("unknown token algorithm %q", c.Token.Algorithm)
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway must be between 0 and 2m")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxAttempts <= 0 {
			return errors.New("rate limit max attempts must be positive")
		}
		if c.RateLimit.Cooldown <= 0 {
			return errors.New("rate limit cooldown must be positive")
		}
	}
	if !c.Account.DefaultRole.Valid() {
		return errors.New("default role is not a known role")
	}
	if c.OAuth.StateTTL <= 0 {
		return errors.New("oauth state TTL must be positive")
	}
	return nil
}

func (c *Config) tokenConfig() token.Config {
	return token.Config{
		AccessTTL:     c.Token.AccessTTL,
		RefreshTTL:    c.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(c.Token.Algorithm),
		PrivateKey:    []byte(c.Token.Secret),
		PublicKey:     []byte(c.Token.PublicKey),
		Issuer:        c.Token.Issuer,
		Leeway:        c.Token.Leeway,
	}
}
