// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/pkg/errutil"
)

const testHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewUser(t *testing.T) {
	t.Run("normalizes and assigns pid", func(t *testing.T) {
		u, err := auth.NewUser("  Alice@Example.COM ", " Alice ", testHash, epoch)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", u.Email)
		assert.Equal(t, "Alice", u.Name)
		assert.NotEqual(t, uuid.Nil, u.PID)
		assert.Equal(t, epoch, u.CreatedAt)
		assert.False(t, u.IsVerified())
		assert.Nil(t, u.VerificationToken)
	})

	tests := []struct {
		name  string
		email string
		uname string
		hash  string
		field string
	}{
		{"empty email", "", "Alice", testHash, "email"},
		{"display name address", "Alice <alice@example.com>", "Alice", testHash, "email"},
		{"missing at", "alice.example.com", "Alice", testHash, "email"},
		{"empty name", "alice@example.com", "   ", testHash, "name"},
		{"long name", "alice@example.com", strings.Repeat("a", auth.MaxNameLength+1), testHash, "name"},
		{"empty hash", "alice@example.com", "Alice", "", "password_hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewUser(tt.email, tt.uname, tt.hash, epoch)
			require.ErrorIs(t, err, auth.ErrInvalidInput)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		reason   string
	}{
		{"too short", "short", "min"},
		{"too long", strings.Repeat("x", auth.MaxPasswordLength+1), "max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password)
			require.ErrorIs(t, err, auth.ErrInvalidInput)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
			errutil.AssertErrorContext(t, err, "field", "password")
			errutil.AssertErrorContext(t, err, "reason", tt.reason)
		})
	}

	assert.NoError(t, auth.ValidatePassword("correct horse"))
	assert.NoError(t, auth.ValidatePassword(strings.Repeat("é", auth.MaxPasswordLength)), "limits count runes")
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, auth.ValidateEmail("alice@example.com"))

	tests := []struct {
		name   string
		email  string
		reason string
	}{
		{"empty", "", "required"},
		{"malformed", "alice@", "email"},
		{"too long", strings.Repeat("a", 250) + "@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			require.ErrorIs(t, err, auth.ErrInvalidInput)
			errutil.AssertErrorContext(t, err, "field", "email")
			if tt.reason != "" {
				errutil.AssertErrorContext(t, err, "reason", tt.reason)
			}
		})
	}
}

func TestUserClone(t *testing.T) {
	token := "digest"
	u := auth.User{VerificationToken: &token, EmailVerifiedAt: &epoch}
	c := u.Clone()
	*c.VerificationToken = "changed"
	later := epoch.Add(time.Hour)
	*c.EmailVerifiedAt = later

	assert.Equal(t, "digest", *u.VerificationToken)
	assert.Equal(t, epoch, *u.EmailVerifiedAt)
}
