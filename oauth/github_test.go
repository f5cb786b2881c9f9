package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeGitHub struct {
	user        githubUser
	emails      []githubEmail
	tokenStatus int
	tokenFails  atomic.Int32
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenFails.Load() > 0 {
			f.tokenFails.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.emails)
	})
	return mux
}

func newTestGitHub(t *testing.T, fake *fakeGitHub) *GitHub {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	gh, err := NewGitHub(GitHubConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/callback",
		APIBaseURL:   srv.URL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return gh
}

func TestGitHubAuthURL(t *testing.T) {
	gh := newTestGitHub(t, &fakeGitHub{})

	url := gh.AuthURL("state-1", "ignored-nonce")
	assert.Contains(t, url, "client_id=test-client")
	assert.Contains(t, url, "state=state-1")
	assert.Contains(t, url, "user%3Aemail")
	assert.NotContains(t, url, "nonce")
}

func TestGitHubExchange(t *testing.T) {
	fake := &fakeGitHub{
		user: githubUser{ID: 42, Login: "octocat", Name: "Octo Cat"},
		emails: []githubEmail{
			{Email: "old@example.com", Primary: false, Verified: true},
			{Email: "octo@example.com", Primary: true, Verified: true},
		},
	}
	gh := newTestGitHub(t, fake)

	id, err := gh.Exchange(context.Background(), "good-code", "")
	require.NoError(t, err)
	assert.Equal(t, "github", id.Provider)
	assert.Equal(t, "42", id.Subject)
	assert.Equal(t, "octo@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Octo Cat", id.DisplayName)
}

func TestGitHubExchangeUnverifiedPrimaryEmail(t *testing.T) {
	fake := &fakeGitHub{
		user:   githubUser{ID: 7, Login: "newbie"},
		emails: []githubEmail{{Email: "new@example.com", Primary: true, Verified: false}},
	}
	gh := newTestGitHub(t, fake)

	id, err := gh.Exchange(context.Background(), "good-code", "")
	require.NoError(t, err)
	assert.False(t, id.EmailVerified)
	assert.Equal(t, "newbie", id.DisplayName)
}

func TestGitHubExchangeRejectedCode(t *testing.T) {
	gh := newTestGitHub(t, &fakeGitHub{tokenStatus: http.StatusBadRequest})

	_, err := gh.Exchange(context.Background(), "bad-code", "")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestGitHubExchangeEmptyCode(t *testing.T) {
	gh := newTestGitHub(t, &fakeGitHub{})

	_, err := gh.Exchange(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestGitHubExchangeRetriesTransientFailure(t *testing.T) {
	fake := &fakeGitHub{
		user:   githubUser{ID: 9, Login: "retry"},
		emails: []githubEmail{{Email: "r@example.com", Primary: true, Verified: true}},
	}
	fake.tokenFails.Store(1)
	gh := newTestGitHub(t, fake)

	id, err := gh.Exchange(context.Background(), "good-code", "")
	require.NoError(t, err)
	assert.Equal(t, "9", id.Subject)
}
