package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// GoogleConfig configures the Google federator.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// IssuerURL overrides the Google issuer, for tests against a fake
	// discovery server.
	IssuerURL  string
	HTTPClient *http.Client
}

// Google completes the OIDC code flow against Google accounts. The id_token
// signature is verified against Google's published keys before any claim is
// used; the userinfo endpoint fills profile fields the id_token omits.
type Google struct {
	config   *oauth2.Config
	provider *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	client   *http.Client
}

// NewGoogle runs OIDC discovery once and returns the federator.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = googleIssuer
	}

	client := defaultHTTPClient(cfg.HTTPClient)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &Google{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
			Endpoint:     provider.Endpoint(),
		},
		provider: provider,
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		client:   client,
	}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthURL(state, nonce string) string {
	return g.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

func (g *Google) Exchange(ctx context.Context, code, nonce string) (Identity, error) {
	if code == "" {
		return Identity{}, ErrInvalidCode
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	var tok *oauth2.Token
	err := withRetry(ctx, func() error {
		var exchErr error
		tok, exchErr = g.config.Exchange(ctx, code)
		return exchErr
	})
	if err != nil {
		return Identity{}, mapExchangeError(err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return Identity{}, ErrProvider
	}
	idToken, err := g.verifier.Verify(ctx, rawID)
	if err != nil {
		return Identity{}, ErrProvider
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, ErrProvider
	}
	if nonce != "" && claims.Nonce != nonce {
		return Identity{}, ErrInvalidCode
	}
	if claims.Subject == "" {
		return Identity{}, ErrProvider
	}

	// id_token issued without email scope still verifies; fall back to the
	// userinfo endpoint before giving up on the claim.
	if claims.Email == "" {
		info, uiErr := g.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if uiErr != nil {
			return Identity{}, ErrProvider
		}
		var ui googleClaims
		if uiErr := info.Claims(&ui); uiErr != nil {
			return Identity{}, ErrProvider
		}
		claims.Email = ui.Email
		claims.EmailVerified = ui.EmailVerified
		if claims.Name == "" {
			claims.Name = ui.Name
		}
	}

	return Identity{
		Provider:      g.Name(),
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		DisplayName:   claims.Name,
	}, nil
}

var _ Federator = (*Google)(nil)
