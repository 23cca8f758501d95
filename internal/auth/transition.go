// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"crypto/subtle"
	"time"

	"github.com/samber/oops"
)

// ChangeKind identifies a persistence command.
type ChangeKind int

// Persistence commands produced by the transitions below.
const (
	// ChangeSetToken stores a fresh token digest and its issuance time.
	ChangeSetToken ChangeKind = iota + 1
	// ChangeVerifyEmail marks the email verified, guarded by the outstanding token.
	ChangeVerifyEmail
	// ChangeResetPassword replaces the password hash, guarded by the outstanding reset token.
	ChangeResetPassword
	// ChangeRehashPassword replaces the password hash, guarded by the previous hash.
	ChangeRehashPassword
)

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	switch k {
	case ChangeSetToken:
		return "set_token"
	case ChangeVerifyEmail:
		return "verify_email"
	case ChangeResetPassword:
		return "reset_password"
	case ChangeRehashPassword:
		return "rehash_password"
	default:
		return "unknown"
	}
}

// Change describes a single write to the user store. Stores apply it
// atomically; guarded kinds must fail with ErrNotFound when the guard no
// longer holds.
type Change struct {
	Kind    ChangeKind
	UserID  int64
	Purpose Purpose

	// Token is the digest written by ChangeSetToken, or the digest the
	// consuming kinds expect to find.
	Token string

	// PasswordHash is the new hash for the password kinds.
	PasswordHash string

	// PreviousHash guards ChangeRehashPassword.
	PreviousHash string

	At time.Time
}

// IssueToken records a fresh token digest for purpose, replacing any
// outstanding token of the same purpose.
func IssueToken(u User, purpose Purpose, digest string, now time.Time) (User, Change) {
	next := u.Clone()
	now = now.UTC()
	d := digest
	switch purpose {
	case PurposeVerification:
		next.VerificationToken = &d
		next.VerificationSentAt = &now
	case PurposeReset:
		next.ResetToken = &d
		next.ResetSentAt = &now
	}
	next.UpdatedAt = now
	return next, Change{
		Kind:    ChangeSetToken,
		UserID:  u.ID,
		Purpose: purpose,
		Token:   digest,
		At:      now,
	}
}

// ConsumeVerification marks the email verified and clears the verification
// token. The consumed digest is kept so that replays resolve to the user.
func ConsumeVerification(u User, digest string, now time.Time) (User, Change, error) {
	if !digestMatches(u.VerificationToken, digest) {
		return u, Change{}, NotFoundError("verification_token", "user_id", u.ID)
	}
	if u.IsVerified() {
		return u, Change{}, oops.Code("AUTH_ALREADY_VERIFIED").With("user_id", u.ID).Wrap(ErrNotFound)
	}
	next := u.Clone()
	now = now.UTC()
	d := digest
	next.EmailVerifiedAt = &now
	next.VerificationToken = nil
	next.VerifiedWithToken = &d
	next.UpdatedAt = now
	return next, Change{
		Kind:    ChangeVerifyEmail,
		UserID:  u.ID,
		Purpose: PurposeVerification,
		Token:   digest,
		At:      now,
	}, nil
}

// ConsumeReset replaces the password hash and clears the reset token.
func ConsumeReset(u User, digest, passwordHash string, now time.Time) (User, Change, error) {
	if !digestMatches(u.ResetToken, digest) {
		return u, Change{}, NotFoundError("reset_token", "user_id", u.ID)
	}
	if passwordHash == "" {
		return u, Change{}, oops.Code(CodeInvalidInput).With("field", "password_hash").Wrap(ErrEmptyPassword)
	}
	next := u.Clone()
	now = now.UTC()
	next.PasswordHash = passwordHash
	next.ResetToken = nil
	next.UpdatedAt = now
	return next, Change{
		Kind:         ChangeResetPassword,
		UserID:       u.ID,
		Purpose:      PurposeReset,
		Token:        digest,
		PasswordHash: passwordHash,
		At:           now,
	}, nil
}

// RehashPassword replaces the password hash with an upgraded one. The
// change only applies if the stored hash is still u.PasswordHash.
func RehashPassword(u User, newHash string, now time.Time) (User, Change) {
	next := u.Clone()
	now = now.UTC()
	next.PasswordHash = newHash
	next.UpdatedAt = now
	return next, Change{
		Kind:         ChangeRehashPassword,
		UserID:       u.ID,
		PasswordHash: newHash,
		PreviousHash: u.PasswordHash,
		At:           now,
	}
}

func digestMatches(stored *string, digest string) bool {
	if stored == nil || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(digest)) == 1
}

// Apply replays change onto u. Stores that keep snapshots in memory use
// it to mirror what the SQL statements do. Guards are checked and
// reported as ErrNotFound.
func (c Change) Apply(u User) (User, error) {
	next := u.Clone()
	at := c.At.UTC()
	switch c.Kind {
	case ChangeSetToken:
		d := c.Token
		switch c.Purpose {
		case PurposeVerification:
			next.VerificationToken = &d
			next.VerificationSentAt = &at
		case PurposeReset:
			next.ResetToken = &d
			next.ResetSentAt = &at
		default:
			return u, oops.Code(CodeInvalidInput).With("purpose", c.Purpose).Errorf("unknown token purpose")
		}
	case ChangeVerifyEmail:
		if !digestMatches(u.VerificationToken, c.Token) || u.IsVerified() {
			return u, NotFoundError("verification_token", "user_id", u.ID)
		}
		d := c.Token
		next.EmailVerifiedAt = &at
		next.VerificationToken = nil
		next.VerifiedWithToken = &d
	case ChangeResetPassword:
		if !digestMatches(u.ResetToken, c.Token) {
			return u, NotFoundError("reset_token", "user_id", u.ID)
		}
		next.PasswordHash = c.PasswordHash
		next.ResetToken = nil
	case ChangeRehashPassword:
		if u.PasswordHash != c.PreviousHash {
			return u, NotFoundError("password_hash", "user_id", u.ID)
		}
		next.PasswordHash = c.PasswordHash
	default:
		return u, oops.Code(CodeInvalidInput).With("kind", int(c.Kind)).Errorf("unknown change kind")
	}
	next.UpdatedAt = at
	return next, nil
}
