// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// TokenBytes is the number of random bytes in a verification or reset token.
const TokenBytes = 32

// Default token lifetimes.
const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
)

// Purpose distinguishes the single-use tokens a user can hold.
type Purpose int

// Token purposes.
const (
	PurposeVerification Purpose = iota + 1
	PurposeReset
)

// String implements fmt.Stringer.
func (p Purpose) String() string {
	switch p {
	case PurposeVerification:
		return "verification"
	case PurposeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// GenerateToken returns a random URL-safe token and its storage digest.
// Only the digest is persisted; the token is sent to the user.
func GenerateToken() (token, digest string, err error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", oops.Code(CodeTokenFailed).Wrap(fmt.Errorf("%w: %w", ErrTokenGeneration, err))
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, DigestToken(token), nil
}

// DigestToken returns the hex SHA-256 digest stored for token.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether token matches digest in constant time.
func VerifyToken(token, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(DigestToken(token)), []byte(digest)) == 1
}

// TokenExpired reports whether a token issued at sentAt is older than ttl.
// A token with no recorded issuance time is treated as expired; a
// non-positive ttl never expires.
func TokenExpired(sentAt *time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	if sentAt == nil {
		return true
	}
	return now.Sub(*sentAt) > ttl
}
