package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlane/authcore"
	"github.com/planlane/authcore/rbac"
)

func newStore(t *testing.T) (*SubjectStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func subjectRows(sub authcore.Subject) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "display_name", "password_hash", "role", "active",
		"provider", "provider_subject", "created_at", "updated_at",
	}).AddRow(
		sub.ID, sub.Email, sub.DisplayName, sub.PasswordHash, sub.Role.String(),
		sub.Active, sub.Provider, sub.ProviderSubject, sub.CreatedAt, sub.UpdatedAt,
	)
}

func sampleSubject() authcore.Subject {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return authcore.Subject{
		ID:           "sub-1",
		Email:        "pm@example.com",
		DisplayName:  "Pat Manager",
		PasswordHash: "$argon2id$...",
		Role:         rbac.RoleProjectManager,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestGetByEmail(t *testing.T) {
	store, mock := newStore(t)
	want := sampleSubject()

	mock.ExpectQuery("select .+ from subjects where email =").
		WithArgs("pm@example.com").
		WillReturnRows(subjectRows(want))

	got, err := store.GetByEmail(context.Background(), "pm@example.com")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmailNotFound(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("select .+ from subjects where email =").
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, authcore.ErrSubjectNotFound)
}

func TestGetByProvider(t *testing.T) {
	store, mock := newStore(t)
	want := sampleSubject()
	want.Provider = "github"
	want.ProviderSubject = "8437291"

	mock.ExpectQuery("select .+ from subjects where provider =").
		WithArgs("github", "8437291").
		WillReturnRows(subjectRows(want))

	got, err := store.GetByProvider(context.Background(), "github", "8437291")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetByIDUnknownRole(t *testing.T) {
	store, mock := newStore(t)
	sub := sampleSubject()
	rows := sqlmock.NewRows([]string{
		"id", "email", "display_name", "password_hash", "role", "active",
		"provider", "provider_subject", "created_at", "updated_at",
	}).AddRow(sub.ID, sub.Email, sub.DisplayName, sub.PasswordHash, "superuser",
		sub.Active, "", "", sub.CreatedAt, sub.UpdatedAt)

	mock.ExpectQuery("select .+ from subjects where id =").
		WithArgs("sub-1").
		WillReturnRows(rows)

	got, err := store.GetByID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleUnknown, got.Role)
}

func TestCreate(t *testing.T) {
	store, mock := newStore(t)
	sub := sampleSubject()

	mock.ExpectExec("insert into subjects").
		WithArgs(sub.ID, sub.Email, sub.DisplayName, sub.PasswordHash, "project_manager",
			true, "", "", sub.CreatedAt, sub.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := store.Create(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, sub, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFillsTimestamps(t *testing.T) {
	store, mock := newStore(t)
	sub := sampleSubject()
	sub.CreatedAt = time.Time{}
	sub.UpdatedAt = time.Time{}

	mock.ExpectExec("insert into subjects").
		WithArgs(sub.ID, sub.Email, sub.DisplayName, sub.PasswordHash, "project_manager",
			true, "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := store.Create(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestCreateDuplicate(t *testing.T) {
	store, mock := newStore(t)
	sub := sampleSubject()

	mock.ExpectExec("insert into subjects").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "subjects_email_idx"})

	_, err := store.Create(context.Background(), sub)
	assert.ErrorIs(t, err, authcore.ErrSubjectExists)
}

func TestCreatePassesThroughOtherErrors(t *testing.T) {
	store, mock := newStore(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("insert into subjects").WillReturnError(boom)

	_, err := store.Create(context.Background(), sampleSubject())
	assert.ErrorIs(t, err, boom)
}

func TestUpdatePasswordHash(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("update subjects set password_hash =").
		WithArgs("sub-1", "$argon2id$new").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdatePasswordHash(context.Background(), "sub-1", "$argon2id$new"))

	mock.ExpectExec("update subjects set password_hash =").
		WithArgs("missing", "$argon2id$new").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePasswordHash(context.Background(), "missing", "$argon2id$new")
	assert.ErrorIs(t, err, authcore.ErrSubjectNotFound)
}

func TestLinkProvider(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("update subjects set provider =").
		WithArgs("sub-1", "google", "g-123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.LinkProvider(context.Background(), "sub-1", "google", "g-123"))

	// The provider identity is already linked elsewhere.
	mock.ExpectExec("update subjects set provider =").
		WithArgs("sub-2", "google", "g-123").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "subjects_provider_idx"})

	err := store.LinkProvider(context.Background(), "sub-2", "google", "g-123")
	assert.ErrorIs(t, err, authcore.ErrSubjectExists)
}

func TestSetActive(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("update subjects set active =").
		WithArgs("sub-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetActive(context.Background(), "sub-1", false))

	mock.ExpectExec("update subjects set active =").
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.SetActive(context.Background(), "missing", true), authcore.ErrSubjectNotFound)
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists subjects").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
