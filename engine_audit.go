package authcore

import (
	"context"
	"time"
)

const (
	auditEventLoginSuccess       = "login_succeeded"
	auditEventLoginFailure       = "login_failed"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventTokenRotated       = "token_rotated"
	auditEventTokenReuseDetected = "token_reuse_detected"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRevoked            = "revoked"
	auditEventRevokedAll         = "revoked_all"
	auditEventOAuthBegin         = "oauth_exchange_started"
	auditEventOAuthSuccess       = "oauth_exchange_succeeded"
	auditEventOAuthFailure       = "oauth_exchange_failed"
	auditEventSubjectCreated     = "subject_created"
	auditEventSubjectDeactivated = "subject_deactivated"
	auditEventPasswordChanged    = "password_changed"
	auditEventPasswordChangeFail = "password_change_failed"
)

// emitAudit builds the event lazily: metadataBuilder runs only when a
// dispatcher is configured, so disabled audit costs nothing on hot paths.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitOAuthAudit(
	ctx context.Context,
	eventType string,
	success bool,
	provider string,
	subjectID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		Provider:  provider,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}
