// Package postgres implements authcore.SubjectStore on PostgreSQL.
//
// It works against any database/sql pool; open one with the pgx stdlib
// driver:
//
//	db, err := sql.Open("pgx", dsn)
//
// and import github.com/jackc/pgx/v5/stdlib for its side effect.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/planlane/authcore"
	"github.com/planlane/authcore/rbac"
)

var _ authcore.SubjectStore = (*SubjectStore)(nil)

// SubjectStore persists subjects in the subjects table.
type SubjectStore struct {
	db *sql.DB
}

func New(db *sql.DB) *SubjectStore {
	return &SubjectStore{db: db}
}

// Schema creates the subjects table and its lookup indexes. Idempotent.
const Schema = `
create table if not exists subjects (
	id               text primary key,
	email            text not null,
	display_name     text not null default '',
	password_hash    text not null default '',
	role             text not null,
	active           boolean not null default true,
	provider         text not null default '',
	provider_subject text not null default '',
	created_at       timestamptz not null default now(),
	updated_at       timestamptz not null default now()
);
create unique index if not exists subjects_email_idx on subjects (email);
create unique index if not exists subjects_provider_idx on subjects (provider, provider_subject)
	where provider <> '';
`

// EnsureSchema applies Schema against the pool.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

const subjectColumns = `id, email, display_name, password_hash, role, active, provider, provider_subject, created_at, updated_at`

func (s *SubjectStore) GetByEmail(ctx context.Context, email string) (authcore.Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+subjectColumns+` from subjects where email = $1`, email)
	return scanSubject(row)
}

func (s *SubjectStore) GetByID(ctx context.Context, subjectID string) (authcore.Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+subjectColumns+` from subjects where id = $1`, subjectID)
	return scanSubject(row)
}

func (s *SubjectStore) GetByProvider(ctx context.Context, provider, providerSubject string) (authcore.Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+subjectColumns+` from subjects where provider = $1 and provider_subject = $2`,
		provider, providerSubject)
	return scanSubject(row)
}

func (s *SubjectStore) Create(ctx context.Context, sub authcore.Subject) (authcore.Subject, error) {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`insert into subjects (`+subjectColumns+`) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sub.ID, sub.Email, sub.DisplayName, sub.PasswordHash, sub.Role.String(),
		sub.Active, sub.Provider, sub.ProviderSubject, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.Subject{}, authcore.ErrSubjectExists
		}
		return authcore.Subject{}, err
	}
	return sub, nil
}

func (s *SubjectStore) UpdatePasswordHash(ctx context.Context, subjectID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update subjects set password_hash = $2, updated_at = now() where id = $1`,
		subjectID, hash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SubjectStore) LinkProvider(ctx context.Context, subjectID, provider, providerSubject string) error {
	res, err := s.db.ExecContext(ctx,
		`update subjects set provider = $2, provider_subject = $3, updated_at = now() where id = $1`,
		subjectID, provider, providerSubject)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrSubjectExists
		}
		return err
	}
	return requireRow(res)
}

func (s *SubjectStore) SetActive(ctx context.Context, subjectID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update subjects set active = $2, updated_at = now() where id = $1`,
		subjectID, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanSubject(row *sql.Row) (authcore.Subject, error) {
	var (
		sub  authcore.Subject
		role string
	)
	err := row.Scan(&sub.ID, &sub.Email, &sub.DisplayName, &sub.PasswordHash, &role,
		&sub.Active, &sub.Provider, &sub.ProviderSubject, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.Subject{}, authcore.ErrSubjectNotFound
		}
		return authcore.Subject{}, err
	}
	// Unknown role names surface as RoleUnknown; the engine refuses them.
	sub.Role, _ = rbac.ParseRole(role)
	return sub, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrSubjectNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
