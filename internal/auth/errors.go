// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error codes attached to oops errors returned by this package and its stores.
const (
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeSigningFailed      = "AUTH_SIGNING_FAILED"
	CodePersistenceFailed  = "AUTH_PERSISTENCE_FAILED"
	CodeHashFailed         = "AUTH_HASH_FAILED"
	CodeTokenFailed        = "AUTH_TOKEN_GENERATE_FAILED"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when creating a user whose email is taken.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenExpired is returned when a token was issued longer ago than its TTL.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidInput is returned when user-supplied fields fail validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrSessionInvalid is returned when a session token cannot be trusted.
	ErrSessionInvalid = errors.New("invalid session")

	// ErrSigning marks failures to sign or verify session credentials.
	ErrSigning = errors.New("session signing failed")

	// ErrPersistence marks failures of the backing user store.
	ErrPersistence = errors.New("persistence failure")

	// ErrHashing marks failures to produce a password hash.
	ErrHashing = errors.New("password hashing failed")

	// ErrTokenGeneration marks failures to read randomness for a token.
	ErrTokenGeneration = errors.New("token generation failed")
)

// IsInternal reports whether err is an infrastructure failure rather than
// a user-facing rejection.
func IsInternal(err error) bool {
	return errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrSigning) ||
		errors.Is(err, ErrHashing) ||
		errors.Is(err, ErrTokenGeneration)
}

// PersistenceFailure wraps a store error so that IsInternal reports it.
// Errors already classified as internal are only annotated.
func PersistenceFailure(operation string, err error) error {
	if err == nil {
		return nil
	}
	if IsInternal(err) {
		return oops.With("operation", operation).Wrap(err)
	}
	return oops.Code(CodePersistenceFailed).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrPersistence, err))
}

// SigningFailure wraps a session signing error so that IsInternal reports it.
func SigningFailure(operation string, err error) error {
	if err == nil {
		return nil
	}
	return oops.Code(CodeSigningFailed).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrSigning, err))
}

// NotFoundError builds a coded ErrNotFound for store implementations.
func NotFoundError(entity string, attrs ...any) error {
	b := oops.Code(CodeNotFound).With("entity", entity)
	if len(attrs) > 0 {
		b = b.With(attrs...)
	}
	return b.Wrap(ErrNotFound)
}

// DuplicateEmailError builds a coded ErrDuplicateEmail for store implementations.
func DuplicateEmailError() error {
	return oops.Code(CodeDuplicateEmail).Wrap(ErrDuplicateEmail)
}
