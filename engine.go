package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/planlane/authcore/internal/ids"
	"github.com/planlane/authcore/internal/rate"
	"github.com/planlane/authcore/oauth"
	"github.com/planlane/authcore/rbac"
	"github.com/planlane/authcore/session"
	"github.com/planlane/authcore/token"
)

// Engine is the authentication and authorization core. Construct it with
// [Builder.Build]; all methods are then safe for concurrent use.
type Engine struct {
	config     Config
	hasher     passwordHasher
	tokens     *token.Manager
	sessions   session.Registry
	subjects   SubjectStore
	authz      *rbac.Authorizer
	limiter    rate.Limiter
	federators map[string]oauth.Federator
	states     oauth.StateStore
	metrics    *Metrics
	audit      *auditDispatcher
	decoyHash  string
	ready      bool
}

// passwordHasher is the slice of password.Hasher the engine uses.
type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
	NeedsRehash(encoded string) bool
}

// Close drains the audit dispatcher and stops background goroutines. The
// Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if c, ok := e.limiter.(interface{ Close() }); ok {
		c.Close()
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// Login verifies the identifier/password pair and issues a fresh token pair
// backed by a new session. Every authentication failure reads as
// ErrInvalidCredentials so callers cannot probe which accounts exist.
func (e *Engine) Login(ctx context.Context, identifier, password string) (TokenPair, error) {
	if e == nil || !e.ready {
		return TokenPair{}, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.Check(ctx, identifier, ip); err != nil {
			if errors.Is(err, rate.ErrLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, func() map[string]string {
					return map[string]string{"identifier": identifier}
				})
				return TokenPair{}, ErrLoginRateLimited
			}
			return TokenPair{}, ErrSessionUnavailable
		}
	}

	if identifier == "" || password == "" {
		return TokenPair{}, e.failLogin(ctx, identifier, "", "empty_input")
	}

	sub, err := e.subjects.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			// Burn hash-verification time so unknown identifiers answer in
			// the same rhythm as wrong passwords.
			e.hasher.Verify(password, e.decoyHash)
			return TokenPair{}, e.failLogin(ctx, identifier, "", "unknown_identifier")
		}
		return TokenPair{}, err
	}

	// Federated-only subjects have no local hash; verify against the decoy
	// so the failure is indistinguishable from a wrong password.
	storedHash := sub.PasswordHash
	if storedHash == "" {
		storedHash = e.decoyHash
	}
	if !e.hasher.Verify(password, storedHash) || sub.PasswordHash == "" {
		return TokenPair{}, e.failLogin(ctx, identifier, sub.ID, "password_mismatch")
	}

	if !sub.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, sub.ID, "", ErrSubjectInactive, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "inactive"}
		})
		return TokenPair{}, ErrSubjectInactive
	}
	if !sub.Role.Valid() {
		return TokenPair{}, e.failLogin(ctx, identifier, sub.ID, "unknown_role")
	}

	if e.hasher.NeedsRehash(sub.PasswordHash) {
		e.upgradeHash(ctx, sub.ID, password)
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, identifier, ip); err != nil {
			log.Print("authcore: login limiter reset failed")
		}
	}

	pair, err := e.issuePair(ctx, sub.ID, sub.Role)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, sub.ID, "", err, nil)
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, sub.ID, pair.SessionID, nil, nil)
	return pair, nil
}

// failLogin is the shared failure path: count the attempt against the
// throttle budget, record the metric and audit event, and return the
// uniform credential error.
func (e *Engine) failLogin(ctx context.Context, identifier, subjectID, reason string) error {
	if e.limiter != nil {
		if err := e.limiter.RecordFailure(ctx, identifier, clientIPFromContext(ctx)); errors.Is(err, rate.ErrLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, subjectID, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			return ErrLoginRateLimited
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, subjectID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"identifier": identifier, "reason": reason}
	})
	return ErrInvalidCredentials
}

// upgradeHash re-hashes the password under current parameters. Best effort;
// login proceeds either way.
func (e *Engine) upgradeHash(ctx context.Context, subjectID, password string) {
	newHash, err := e.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := e.subjects.UpdatePasswordHash(ctx, subjectID, newHash); err != nil {
		log.Print("authcore: password hash upgrade failed")
	}
}

// issuePair mints an access/refresh pair for a new session and registers the
// refresh identifier. Registration failure means no tokens leave this method.
func (e *Engine) issuePair(ctx context.Context, subjectID string, role rbac.Role) (TokenPair, error) {
	sessionID := ids.NewSessionID()
	tokenID := uuid.NewString()
	now := time.Now()

	access, err := e.tokens.IssueAccess(subjectID, role.String(), sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.tokens.IssueRefresh(subjectID, role.String(), sessionID, tokenID)
	if err != nil {
		return TokenPair{}, err
	}

	rec := session.Record{
		SubjectID:     subjectID,
		SessionID:     sessionID,
		TokenID:       tokenID,
		IssuedAt:      now,
		LastRotatedAt: now,
	}
	if err := e.sessions.Register(ctx, rec, e.config.Token.RefreshTTL); err != nil {
		return TokenPair{}, ErrSessionUnavailable
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(e.config.Token.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.Token.RefreshTTL),
	}, nil
}

// Refresh rotates the session's refresh token: the presented token is
// retired atomically and a new pair is issued. Under concurrent refreshes of
// the same token exactly one caller wins; presenting a retired token is
// treated as theft and revokes every session of the subject.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || !e.ready {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		mapped := mapTokenError(err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapped, nil)
		return TokenPair{}, mapped
	}

	newTokenID := uuid.NewString()
	err = e.sessions.Replace(ctx, claims.Subject, claims.SessionID, claims.ID, newTokenID, e.config.Token.RefreshTTL)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotCurrent):
		return TokenPair{}, e.containReuse(ctx, claims.Subject, claims.SessionID)
	case errors.Is(err, session.ErrNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, claims.SessionID, ErrTokenNotCurrent, func() map[string]string {
			return map[string]string{"reason": "session_gone"}
		})
		return TokenPair{}, ErrTokenNotCurrent
	default:
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, ErrSessionUnavailable
	}

	sub, err := e.subjects.GetByID(ctx, claims.Subject)
	if err != nil || !sub.Active {
		_ = e.sessions.Revoke(ctx, claims.Subject, claims.SessionID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, claims.SessionID, ErrSubjectInactive, func() map[string]string {
			return map[string]string{"reason": "subject_inactive"}
		})
		return TokenPair{}, ErrSubjectInactive
	}

	now := time.Now()
	access, err := e.tokens.IssueAccess(sub.ID, sub.Role.String(), claims.SessionID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, err
	}
	refresh, err := e.tokens.IssueRefresh(sub.ID, sub.Role.String(), claims.SessionID, newTokenID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokenRotated, true, sub.ID, claims.SessionID, nil, nil)

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        claims.SessionID,
		AccessExpiresAt:  now.Add(e.config.Token.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.Token.RefreshTTL),
	}, nil
}

// containReuse is the response to a retired refresh token being presented:
// assume the credential leaked and end every session of the subject.
func (e *Engine) containReuse(ctx context.Context, subjectID, sessionID string) error {
	e.metricInc(MetricReuseDetected)
	e.emitAudit(ctx, auditEventTokenReuseDetected, false, subjectID, sessionID, ErrTokenReuseDetected, nil)

	n, err := e.sessions.RevokeAll(ctx, subjectID)
	if err != nil {
		log.Print("authcore: reuse containment revoke-all failed")
	} else {
		e.metricInc(MetricLogoutAll)
		e.emitAudit(ctx, auditEventRevokedAll, true, subjectID, "", nil, func() map[string]string {
			return map[string]string{"reason": "reuse_containment", "sessions": strconv.Itoa(n)}
		})
	}
	return ErrTokenReuseDetected
}

// ValidateAccess verifies an access token and returns its Grant. This is the
// hot path: signature and claim checks only, no store round-trip.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*Grant, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}
	start := time.Now()

	claims, err := e.tokens.Parse(tokenStr, token.KindAccess)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, mapTokenError(err)
	}

	grant, err := e.grantFromClaims(claims)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return grant, nil
}

// ValidateRefresh verifies a refresh token and confirms it is still the
// current token for its session. It never mutates the registry; use Refresh
// to rotate.
func (e *Engine) ValidateRefresh(ctx context.Context, tokenStr string) (*Grant, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, mapTokenError(err)
	}

	current, err := e.sessions.IsCurrent(ctx, claims.Subject, claims.SessionID, claims.ID)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrSessionUnavailable
	}
	if !current {
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenNotCurrent
	}

	grant, err := e.grantFromClaims(claims)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	e.metricInc(MetricValidateSuccess)
	return grant, nil
}

func (e *Engine) grantFromClaims(claims *token.Claims) (*Grant, error) {
	role, ok := rbac.ParseRole(claims.Role)
	if !ok {
		return nil, ErrTokenMalformed
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return &Grant{
		SubjectID: claims.Subject,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
		Role:      role,
		ExpiresAt: expires,
	}, nil
}

// Logout ends the session the refresh token belongs to. Revoking an already
// revoked session succeeds; the end state is the same.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(refreshToken, token.KindRefresh)
	if err != nil {
		return mapTokenError(err)
	}

	if err := e.sessions.Revoke(ctx, claims.Subject, claims.SessionID); err != nil {
		return ErrSessionUnavailable
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventRevoked, true, claims.Subject, claims.SessionID, nil, nil)
	return nil
}

// LogoutAll ends every session of the subject.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}

	n, err := e.sessions.RevokeAll(ctx, subjectID)
	if err != nil {
		return ErrSessionUnavailable
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventRevokedAll, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return nil
}

// Authorize reports whether the grant's role holds the capability.
// Unknown roles and unknown capabilities deny.
func (e *Engine) Authorize(grant *Grant, capability string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if grant == nil || !e.authz.Allow(grant.Role, capability) {
		e.metricInc(MetricAuthorizeDenied)
		return ErrPermissionDenied
	}
	return nil
}

// AuthorizeAtLeast reports whether the grant's role ranks at or above min.
func (e *Engine) AuthorizeAtLeast(grant *Grant, min rbac.Role) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if grant == nil || !e.authz.AtLeast(grant.Role, min) {
		e.metricInc(MetricAuthorizeDenied)
		return ErrPermissionDenied
	}
	return nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrSignature):
		return ErrTokenSignature
	default:
		return ErrTokenMalformed
	}
}

