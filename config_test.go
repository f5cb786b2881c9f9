package authcore

import (
	"strings"
	"testing"
	"time"

	"github.com/planlane/authcore/rbac"
)

func TestDefaultConfigValidatesWithSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("config without a secret must not validate")
	}
	cfg.Token.Secret = "0123456789abcdef0123456789abcdef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.Token.Secret = "0123456789abcdef0123456789abcdef"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }, "TTLs"},
		{"negative refresh ttl", func(c *Config) { c.Token.RefreshTTL = -time.Hour }, "TTLs"},
		{"refresh below access", func(c *Config) { c.Token.RefreshTTL = time.Minute }, "exceed"},
		{"unknown algorithm", func(c *Config) { c.Token.Algorithm = "rs256" }, "algorithm"},
		{"ed25519 without keys", func(c *Config) {
			c.Token.Algorithm = "ed25519"
			c.Token.PublicKey = ""
		}, "ed25519"},
		{"excessive leeway", func(c *Config) { c.Token.Leeway = 5 * time.Minute }, "leeway"},
		{"zero max attempts", func(c *Config) { c.RateLimit.MaxAttempts = 0 }, "attempts"},
		{"zero cooldown", func(c *Config) { c.RateLimit.Cooldown = 0 }, "cooldown"},
		{"unknown default role", func(c *Config) { c.Account.DefaultRole = rbac.Role(99) }, "role"},
		{"zero state ttl", func(c *Config) { c.OAuth.StateTTL = 0 }, "state TTL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted a bad config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestConfigValidateDisabledRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.Secret = "0123456789abcdef0123456789abcdef"
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.MaxAttempts = 0
	cfg.RateLimit.Cooldown = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled rate limit should skip its checks: %v", err)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Token.AccessTTL != 30*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.Token.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 168*time.Hour {
		t.Fatalf("RefreshTTL = %v", cfg.Token.RefreshTTL)
	}
	if cfg.Token.Algorithm != "hs256" || cfg.Token.Issuer != "authcore" {
		t.Fatalf("token defaults: %+v", cfg.Token)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.MaxAttempts != 5 {
		t.Fatalf("rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Account.DefaultRole != rbac.RoleViewer {
		t.Fatalf("DefaultRole = %v", cfg.Account.DefaultRole)
	}
	if cfg.Password.Policy.MinLength == 0 {
		t.Fatal("password policy not seeded")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_TOKEN_ACCESS_TTL", "5m")
	t.Setenv("AUTHCORE_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHCORE_TOKEN_ISSUER", "planlane")
	t.Setenv("AUTHCORE_RATELIMIT_MAX_ATTEMPTS", "3")
	t.Setenv("AUTHCORE_OAUTH_AUTO_LINK", "false")
	t.Setenv("AUTHCORE_AUDIT_BUFFER_SIZE", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Token.AccessTTL != 5*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.Token.AccessTTL)
	}
	if cfg.Token.Secret != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("Secret = %q", cfg.Token.Secret)
	}
	if cfg.Token.Issuer != "planlane" {
		t.Fatalf("Issuer = %q", cfg.Token.Issuer)
	}
	if cfg.RateLimit.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d", cfg.RateLimit.MaxAttempts)
	}
	if cfg.OAuth.AutoLink {
		t.Fatal("AutoLink override ignored")
	}
	if cfg.Audit.BufferSize != 32 {
		t.Fatalf("BufferSize = %d", cfg.Audit.BufferSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}
