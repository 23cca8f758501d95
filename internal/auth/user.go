// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Field limits enforced at registration and reset. The validate tags on
// registrationInput and resetInput carry the same numbers.
const (
	MaxEmailLength    = 254
	MaxNameLength     = 100
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// User is a registered account.
type User struct {
	ID                 int64
	PID                uuid.UUID
	Email              string
	Name               string
	PasswordHash       string
	EmailVerifiedAt    *time.Time
	VerificationToken  *string // digest of the outstanding verification token
	VerificationSentAt *time.Time
	VerifiedWithToken  *string // digest of the token that verified the email
	ResetToken         *string // digest of the outstanding reset token
	ResetSentAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewUser creates a User with validated fields and a fresh public id.
// email is normalized; passwordHash must already be hashed.
func NewUser(email, name, passwordHash string, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password_hash").Wrap(ErrInvalidInput)
	}
	now = now.UTC()
	return &User{
		PID:          uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsVerified reports whether the user has confirmed their email address.
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	u.EmailVerifiedAt = cloneTime(u.EmailVerifiedAt)
	u.VerificationToken = cloneString(u.VerificationToken)
	u.VerificationSentAt = cloneTime(u.VerificationSentAt)
	u.VerifiedWithToken = cloneString(u.VerifiedWithToken)
	u.ResetToken = cloneString(u.ResetToken)
	u.ResetSentAt = cloneTime(u.ResetSentAt)
	return u
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validate is shared by every field check; it caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// registrationInput holds the fields checked at registration. Email and
// Name are expected to be normalized already.
type registrationInput struct {
	Email    string `validate:"required,email,max=254"`
	Name     string `validate:"required,max=100"`
	Password string `validate:"min=8,max=128"`
}

// resetInput holds the fields checked when a password is replaced.
type resetInput struct {
	Password string `validate:"min=8,max=128"`
}

// ValidateEmail checks that email is a bare address without a display name.
func ValidateEmail(email string) error {
	return validateField("email", email, "required,email,max=254")
}

// ValidateName checks that name is present and within limits.
func ValidateName(name string) error {
	return validateField("name", strings.TrimSpace(name), "required,max=100")
}

// ValidatePassword checks password length bounds.
func ValidatePassword(password string) error {
	return validateStruct(resetInput{Password: password})
}

func validateField(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return validationFailure(field, err)
	}
	return nil
}

func validateStruct(input any) error {
	if err := validate.Struct(input); err != nil {
		return validationFailure("", err)
	}
	return nil
}

// validationFailure converts the first validator error into an
// AUTH_INVALID_INPUT error naming the field and the failed rule.
func validationFailure(field string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return oops.Code(CodeInvalidInput).With("field", field).Wrap(fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	fe := verrs[0]
	if field == "" {
		field = strings.ToLower(fe.Field())
	}
	return invalidField(field, fe.Tag())
}

func invalidField(field, reason string) error {
	return oops.Code(CodeInvalidInput).
		With("field", field).
		With("reason", reason).
		Wrap(ErrInvalidInput)
}

// UserStore persists users.
//
// Implementations return errors wrapping ErrNotFound and ErrDuplicateEmail
// for the corresponding conditions, and errors satisfying IsInternal for
// infrastructure failures.
type UserStore interface {
	// Create persists a new user and assigns its ID.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByPID retrieves a user by public id.
	GetByPID(ctx context.Context, pid uuid.UUID) (*User, error)

	// GetByVerificationToken retrieves the user whose outstanding verification
	// token, or whose consumed verification token, has the given digest.
	GetByVerificationToken(ctx context.Context, digest string) (*User, error)

	// GetByResetToken retrieves the user whose outstanding reset token has the given digest.
	GetByResetToken(ctx context.Context, digest string) (*User, error)

	// Save applies a persistence command. Guarded changes return ErrNotFound
	// when the stored state no longer matches the expected value.
	Save(ctx context.Context, change Change) error

	// PurgeExpiredTokens clears outstanding tokens of the given purpose that
	// were issued before issuedBefore. Returns the number of users updated.
	PurgeExpiredTokens(ctx context.Context, purpose Purpose, issuedBefore time.Time) (int64, error)
}
