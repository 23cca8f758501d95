// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/auth"
)

// DB is the subset of pgxpool.Pool used by UserRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserStore using PostgreSQL.
type UserRepository struct {
	db DB
}

// Compile-time interface check.
var _ auth.UserStore = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUser = `
	SELECT id, pid, email, name, password_hash, email_verified_at,
	       email_verification_token, email_verification_sent_at, verified_with_token,
	       reset_token, reset_sent_at, created_at, updated_at
	FROM users
`

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (
			pid, email, name, password_hash, email_verified_at,
			email_verification_token, email_verification_sent_at, verified_with_token,
			reset_token, reset_sent_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		user.PID.String(),
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerifiedAt,
		user.VerificationToken,
		user.VerificationSentAt,
		user.VerifiedWithToken,
		user.ResetToken,
		user.ResetSentAt,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "users_email_key" {
			return auth.DuplicateEmailError()
		}
		return auth.PersistenceFailure("insert user", err)
	}
	return nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, selectUser+`WHERE email = $1`, auth.NormalizeEmail(email))
	return r.get(row, "get user by email", "lookup", "email")
}

// GetByPID retrieves a user by public id.
func (r *UserRepository) GetByPID(ctx context.Context, pid uuid.UUID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, selectUser+`WHERE pid = $1`, pid.String())
	return r.get(row, "get user by pid", "pid", pid.String())
}

// GetByVerificationToken retrieves the user holding, or verified by, digest.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, digest string) (*auth.User, error) {
	row := r.db.QueryRow(ctx,
		selectUser+`WHERE email_verification_token = $1 OR verified_with_token = $1`, digest)
	return r.get(row, "get user by verification token", "lookup", "verification_token")
}

// GetByResetToken retrieves the user holding digest as reset token.
func (r *UserRepository) GetByResetToken(ctx context.Context, digest string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, selectUser+`WHERE reset_token = $1`, digest)
	return r.get(row, "get user by reset token", "lookup", "reset_token")
}

// Save applies change as a single UPDATE. Guarded kinds affect no rows
// when the guard fails, which is reported as auth.ErrNotFound.
func (r *UserRepository) Save(ctx context.Context, change auth.Change) error {
	var (
		sql  string
		args []any
	)
	switch change.Kind {
	case auth.ChangeSetToken:
		switch change.Purpose {
		case auth.PurposeVerification:
			sql = `UPDATE users SET email_verification_token = $2, email_verification_sent_at = $3, updated_at = $3
				WHERE id = $1`
		case auth.PurposeReset:
			sql = `UPDATE users SET reset_token = $2, reset_sent_at = $3, updated_at = $3
				WHERE id = $1`
		default:
			return oops.Code(auth.CodeInvalidInput).With("purpose", int(change.Purpose)).Errorf("unknown token purpose")
		}
		args = []any{change.UserID, change.Token, change.At}
	case auth.ChangeVerifyEmail:
		sql = `UPDATE users SET email_verified_at = $3, verified_with_token = email_verification_token,
				email_verification_token = NULL, updated_at = $3
			WHERE id = $1 AND email_verification_token = $2 AND email_verified_at IS NULL`
		args = []any{change.UserID, change.Token, change.At}
	case auth.ChangeResetPassword:
		sql = `UPDATE users SET password_hash = $3, reset_token = NULL, updated_at = $4
			WHERE id = $1 AND reset_token = $2`
		args = []any{change.UserID, change.Token, change.PasswordHash, change.At}
	case auth.ChangeRehashPassword:
		sql = `UPDATE users SET password_hash = $3, updated_at = $4
			WHERE id = $1 AND password_hash = $2`
		args = []any{change.UserID, change.PreviousHash, change.PasswordHash, change.At}
	default:
		return oops.Code(auth.CodeInvalidInput).With("kind", int(change.Kind)).Errorf("unknown change kind")
	}

	result, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return auth.PersistenceFailure(change.Kind.String(), err)
	}
	if result.RowsAffected() == 0 {
		return auth.NotFoundError("user", "user_id", change.UserID, "change", change.Kind.String())
	}
	return nil
}

// PurgeExpiredTokens clears outstanding tokens issued before issuedBefore.
func (r *UserRepository) PurgeExpiredTokens(ctx context.Context, purpose auth.Purpose, issuedBefore time.Time) (int64, error) {
	var sql string
	switch purpose {
	case auth.PurposeVerification:
		sql = `UPDATE users SET email_verification_token = NULL
			WHERE email_verification_token IS NOT NULL AND email_verification_sent_at < $1`
	case auth.PurposeReset:
		sql = `UPDATE users SET reset_token = NULL
			WHERE reset_token IS NOT NULL AND reset_sent_at < $1`
	default:
		return 0, oops.Code(auth.CodeInvalidInput).With("purpose", int(purpose)).Errorf("unknown token purpose")
	}

	result, err := r.db.Exec(ctx, sql, issuedBefore)
	if err != nil {
		return 0, auth.PersistenceFailure("purge "+purpose.String()+" tokens", err)
	}
	return result.RowsAffected(), nil
}

func (r *UserRepository) get(row pgx.Row, operation, key, value string) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.NotFoundError("user", key, value)
	}
	if err != nil {
		return nil, auth.PersistenceFailure(operation, err)
	}
	return user, nil
}

// scanUser scans a row into a User. Returns pgx.ErrNoRows unwrapped.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u   auth.User
		pid string
	)
	if err := row.Scan(
		&u.ID,
		&pid,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.EmailVerifiedAt,
		&u.VerificationToken,
		&u.VerificationSentAt,
		&u.VerifiedWithToken,
		&u.ResetToken,
		&u.ResetSentAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(pid)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_PID").With("id", u.ID).Wrap(err)
	}
	u.PID = parsed
	return &u, nil
}
