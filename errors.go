package authcore

import "errors"

var (
	// ErrInvalidCredentials covers unknown identifier, wrong password, and
	// every other login failure the caller must not be able to distinguish.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenMalformed means the token could not be decoded as a JWT or its
	// claims are structurally invalid.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignature means the token decoded but its signature does not
	// verify against the configured key.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenExpired means the token verified but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotCurrent means a refresh token verified but a newer token has
	// since been issued for its session.
	ErrTokenNotCurrent = errors.New("refresh token not current")
	// ErrTokenReuseDetected means a superseded refresh token was presented
	// for rotation. The engine revokes every session of the subject.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrPermissionDenied means the role does not hold the capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProviderError means the OAuth provider could not be reached or
	// returned an unusable response.
	ErrProviderError = errors.New("oauth provider error")
	// ErrInvalidCode means the OAuth authorization code or state was rejected.
	ErrInvalidCode = errors.New("invalid authorization code")
	// ErrUnverifiedEmail means the provider identity carries an unverified
	// email address, which cannot create or link a subject.
	ErrUnverifiedEmail = errors.New("unverified provider email")
	// ErrUnknownProvider means no federator is registered under that name.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrSubjectNotFound is returned by SubjectStore implementations when no
	// subject matches the lookup.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrSubjectExists means a subject with that email already exists.
	ErrSubjectExists = errors.New("subject already exists")
	// ErrSubjectInactive means the subject has been deactivated.
	ErrSubjectInactive = errors.New("subject inactive")
	// ErrPasswordPolicy means the password fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse means the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrLoginRateLimited means the identifier or source address has
	// exhausted its failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSessionUnavailable means the session store could not be reached.
	ErrSessionUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady means the Engine was not produced by Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
