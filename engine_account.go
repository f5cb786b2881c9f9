package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planlane/authcore/rbac"
)

// CreateSubject registers a password-based subject. The password must pass
// the strength policy; Role defaults to the configured default role.
func (e *Engine) CreateSubject(ctx context.Context, input CreateSubjectInput) (Subject, error) {
	if e == nil || !e.ready {
		return Subject{}, ErrEngineNotReady
	}

	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" {
		return Subject{}, ErrInvalidCredentials
	}
	if err := e.config.Password.Policy.Check(input.Password); err != nil {
		return Subject{}, errors.Join(ErrPasswordPolicy, err)
	}

	role := input.Role
	if role == rbac.RoleUnknown {
		role = e.config.Account.DefaultRole
	}
	if !role.Valid() {
		return Subject{}, ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return Subject{}, err
	}

	now := time.Now().UTC()
	sub, err := e.subjects.Create(ctx, Subject{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  input.DisplayName,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrSubjectExists) {
			return Subject{}, ErrSubjectExists
		}
		return Subject{}, err
	}

	e.metricInc(MetricSubjectCreated)
	e.emitAudit(ctx, auditEventSubjectCreated, true, sub.ID, "", nil, func() map[string]string {
		return map[string]string{"role": role.String()}
	})
	return sub, nil
}

// ChangePassword verifies the current password, applies the policy to the
// new one, stores the new hash, and ends every other session of the subject.
func (e *Engine) ChangePassword(ctx context.Context, subjectID, oldPassword, newPassword string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}

	sub, err := e.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !sub.Active {
		return ErrSubjectInactive
	}

	if sub.PasswordHash == "" || !e.hasher.Verify(oldPassword, sub.PasswordHash) {
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, subjectID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "old_password_mismatch"}
		})
		return ErrInvalidCredentials
	}
	if newPassword == oldPassword {
		return ErrPasswordReuse
	}
	if err := e.config.Password.Policy.Check(newPassword); err != nil {
		return errors.Join(ErrPasswordPolicy, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.subjects.UpdatePasswordHash(ctx, subjectID, hash); err != nil {
		return err
	}

	// A changed password invalidates every outstanding refresh token.
	if _, err := e.sessions.RevokeAll(ctx, subjectID); err != nil {
		log.Print("authcore: post-change session revocation failed")
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, subjectID, "", nil, nil)
	return nil
}

// Deactivate flips the subject inactive and ends all of its sessions.
// Outstanding access tokens stay valid until expiry; refresh stops
// immediately.
func (e *Engine) Deactivate(ctx context.Context, subjectID string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}

	if err := e.subjects.SetActive(ctx, subjectID, false); err != nil {
		return err
	}
	if _, err := e.sessions.RevokeAll(ctx, subjectID); err != nil {
		return ErrSessionUnavailable
	}

	e.metricInc(MetricSubjectDeactivated)
	e.emitAudit(ctx, auditEventSubjectDeactivated, true, subjectID, "", nil, nil)
	return nil
}
