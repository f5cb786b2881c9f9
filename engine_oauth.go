package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/planlane/authcore/internal/ids"
	"github.com/planlane/authcore/oauth"
)

// BeginOAuth starts a federated login: it mints a single-use state bound to
// the provider and returns the authorization URL the caller should redirect
// the browser to.
func (e *Engine) BeginOAuth(ctx context.Context, provider string) (AuthRedirect, error) {
	if e == nil || !e.ready {
		return AuthRedirect{}, ErrEngineNotReady
	}
	fed, ok := e.federators[provider]
	if !ok {
		return AuthRedirect{}, ErrUnknownProvider
	}

	state, err := ids.NewOpaque(32)
	if err != nil {
		return AuthRedirect{}, err
	}
	nonce, err := ids.NewOpaque(32)
	if err != nil {
		return AuthRedirect{}, err
	}

	st := oauth.State{Provider: provider, Nonce: nonce, IssuedAt: time.Now().UTC()}
	if err := e.states.Save(ctx, state, st, e.config.OAuth.StateTTL); err != nil {
		return AuthRedirect{}, ErrSessionUnavailable
	}

	e.emitOAuthAudit(ctx, auditEventOAuthBegin, true, provider, "", nil, nil)
	return AuthRedirect{URL: fed.AuthURL(state, nonce), State: state}, nil
}

// CompleteOAuth finishes a federated login: it consumes the state, exchanges
// the code for a verified identity, links or creates the subject, and issues
// a token pair. Identities with unverified emails are rejected before any
// subject is touched.
func (e *Engine) CompleteOAuth(ctx context.Context, provider, code, state string) (TokenPair, error) {
	if e == nil || !e.ready {
		return TokenPair{}, ErrEngineNotReady
	}
	fed, ok := e.federators[provider]
	if !ok {
		return TokenPair{}, ErrUnknownProvider
	}

	st, err := e.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, oauth.ErrStateNotFound) {
			return TokenPair{}, e.failOAuth(ctx, provider, "", ErrInvalidCode, "state_unknown")
		}
		return TokenPair{}, ErrSessionUnavailable
	}
	if st.Provider != provider {
		return TokenPair{}, e.failOAuth(ctx, provider, "", ErrInvalidCode, "state_provider_mismatch")
	}

	identity, err := fed.Exchange(ctx, code, st.Nonce)
	if err != nil {
		return TokenPair{}, e.failOAuth(ctx, provider, "", mapOAuthError(err), "exchange_failed")
	}
	if !identity.EmailVerified || identity.Email == "" {
		return TokenPair{}, e.failOAuth(ctx, provider, "", ErrUnverifiedEmail, "unverified_email")
	}

	sub, err := e.linkOrCreateSubject(ctx, identity)
	if err != nil {
		return TokenPair{}, e.failOAuth(ctx, provider, sub.ID, err, "link_failed")
	}
	if !sub.Active {
		return TokenPair{}, e.failOAuth(ctx, provider, sub.ID, ErrSubjectInactive, "subject_inactive")
	}

	pair, err := e.issuePair(ctx, sub.ID, sub.Role)
	if err != nil {
		return TokenPair{}, e.failOAuth(ctx, provider, sub.ID, err, "issue_failed")
	}

	e.metricInc(MetricOAuthSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitOAuthAudit(ctx, auditEventOAuthSuccess, true, provider, sub.ID, nil, nil)
	return pair, nil
}

func (e *Engine) failOAuth(ctx context.Context, provider, subjectID string, err error, reason string) error {
	e.metricInc(MetricOAuthFailure)
	e.emitOAuthAudit(ctx, auditEventOAuthFailure, false, provider, subjectID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

// linkOrCreateSubject resolves a verified identity to a subject: an existing
// provider link wins; otherwise an email match is linked when AutoLink is
// on; otherwise a new subject is created with the default role.
func (e *Engine) linkOrCreateSubject(ctx context.Context, identity oauth.Identity) (Subject, error) {
	sub, err := e.subjects.GetByProvider(ctx, identity.Provider, identity.Subject)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrSubjectNotFound) {
		return Subject{}, err
	}

	sub, err = e.subjects.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if !e.config.OAuth.AutoLink {
			return Subject{}, ErrSubjectExists
		}
		if linkErr := e.subjects.LinkProvider(ctx, sub.ID, identity.Provider, identity.Subject); linkErr != nil {
			return Subject{}, linkErr
		}
		sub.Provider = identity.Provider
		sub.ProviderSubject = identity.Subject
		return sub, nil
	case errors.Is(err, ErrSubjectNotFound):
	default:
		return Subject{}, err
	}

	now := time.Now().UTC()
	created, err := e.subjects.Create(ctx, Subject{
		ID:              uuid.NewString(),
		Email:           identity.Email,
		DisplayName:     identity.DisplayName,
		Role:            e.config.Account.DefaultRole,
		Active:          true,
		Provider:        identity.Provider,
		ProviderSubject: identity.Subject,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Subject{}, err
	}

	e.metricInc(MetricSubjectCreated)
	e.emitOAuthAudit(ctx, auditEventSubjectCreated, true, identity.Provider, created.ID, nil, func() map[string]string {
		return map[string]string{"role": created.Role.String()}
	})
	return created, nil
}

func mapOAuthError(err error) error {
	switch {
	case errors.Is(err, oauth.ErrInvalidCode):
		return ErrInvalidCode
	case errors.Is(err, oauth.ErrUnverifiedEmail):
		return ErrUnverifiedEmail
	default:
		return ErrProviderError
	}
}
