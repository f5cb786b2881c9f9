package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// GitHubConfig configures the GitHub federator.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// APIBaseURL and Endpoint override the GitHub endpoints, for tests.
	APIBaseURL string
	Endpoint   oauth2.Endpoint
	HTTPClient *http.Client
}

// GitHub completes the OAuth2 code flow against github.com. GitHub issues no
// id_token, so the identity comes from the user endpoint and the email's
// verified flag from the emails endpoint.
type GitHub struct {
	config  *oauth2.Config
	apiBase string
	client  *http.Client
}

func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = github.Endpoint
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = githubAPIBase
	}

	return &GitHub{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiBase: apiBase,
		client:  defaultHTTPClient(cfg.HTTPClient),
	}, nil
}

func (g *GitHub) Name() string { return "github" }

// AuthURL ignores nonce; the plain OAuth2 flow has nowhere to echo it back.
func (g *GitHub) AuthURL(state, _ string) string {
	return g.config.AuthCodeURL(state)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Exchange(ctx context.Context, code, _ string) (Identity, error) {
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

	var user githubUser
	if err := g.getJSON(ctx, tok, "/user", &user); err != nil {
		return Identity{}, err
	}
	if user.ID == 0 {
		return Identity{}, ErrProvider
	}

	email, verified := user.Email, false
	var emails []githubEmail
	if err := g.getJSON(ctx, tok, "/user/emails", &emails); err != nil {
		return Identity{}, err
	}
	for _, e := range emails {
		if e.Primary {
			email, verified = e.Email, e.Verified
			break
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return Identity{
		Provider:      g.Name(),
		Subject:       strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: verified,
		DisplayName:   name,
	}, nil
}

func (g *GitHub) getJSON(ctx context.Context, tok *oauth2.Token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return ErrProvider
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	tok.SetAuthHeader(req)

	var body []byte
	err = withRetry(ctx, func() error {
		resp, doErr := g.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("github api %s: status %d", path, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return &oauth2.RetrieveError{Response: resp, ErrorCode: "api_status"}
		}
		body, doErr = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return doErr
	})
	if err != nil {
		// An API rejection is a provider problem, not a bad code.
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return ErrProvider
		}
		return mapExchangeError(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return ErrProvider
	}
	return nil
}

var _ Federator = (*GitHub)(nil)
