package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrProvider means the provider could not be reached or answered with
	// something unusable. The wrapped cause is for logs, not callers.
	ErrProvider = errors.New("provider error")
	// ErrInvalidCode means the provider rejected the authorization code.
	ErrInvalidCode = errors.New("invalid authorization code")
	// ErrUnverifiedEmail means the identity's email is not verified at the
	// provider and must not be trusted for account linking.
	ErrUnverifiedEmail = errors.New("unverified provider email")
)

// Identity is what a completed exchange yields: the provider's stable
// subject identifier and the profile fields the engine needs for linking.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Federator is one configured identity provider.
type Federator interface {
	// Name is the registry key, e.g. "google".
	Name() string
	// AuthURL builds the provider authorization URL carrying state and,
	// where the protocol supports it, nonce.
	AuthURL(state, nonce string) string
	// Exchange trades the authorization code for a verified Identity.
	Exchange(ctx context.Context, code, nonce string) (Identity, error)
}

const (
	exchangeAttempts = 3
	backoffBase      = 200 * time.Millisecond
)

// withRetry runs fn up to exchangeAttempts times with doubling backoff.
// Provider rejections (4xx) fail immediately; only transport-level failures
// and 5xx responses are retried.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := backoffBase
	for attempt := 0; attempt < exchangeAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func retryable(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}
	// Anything that is not a provider response is a transport failure.
	return true
}

// mapExchangeError folds provider failures into the package sentinels.
func mapExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
		return ErrInvalidCode
	}
	return ErrProvider
}

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Second}
}
