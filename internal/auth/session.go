// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session defaults.
const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSessionIssuer = "quill"
)

// SecretProvider supplies the key used to sign session tokens.
type SecretProvider interface {
	SigningSecret(ctx context.Context) ([]byte, error)
}

// StaticSecret is a SecretProvider backed by a fixed key.
type StaticSecret []byte

// SigningSecret returns the key, or an error if it is empty.
func (s StaticSecret) SigningSecret(context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, oops.Code("AUTH_SECRET_MISSING").Errorf("session signing secret is not configured")
	}
	return s, nil
}

// SessionClaims are the JWT claims carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	PID string `json:"pid"`
}

// SessionIssuer signs and verifies HS256 session tokens.
type SessionIssuer struct {
	secrets SecretProvider
	ttl     time.Duration
	issuer  string
	now     func() time.Time
}

// NewSessionIssuer creates a SessionIssuer. A zero ttl or empty issuer
// selects the defaults; a nil now uses time.Now.
func NewSessionIssuer(secrets SecretProvider, ttl time.Duration, issuer string, now func() time.Time) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if issuer == "" {
		issuer = DefaultSessionIssuer
	}
	if now == nil {
		now = time.Now
	}
	return &SessionIssuer{secrets: secrets, ttl: ttl, issuer: issuer, now: now}
}

// TTL returns the lifetime of issued tokens.
func (i *SessionIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a session token for user and returns it with its expiry.
func (i *SessionIssuer) Issue(ctx context.Context, user *User) (string, time.Time, error) {
	secret, err := i.secrets.SigningSecret(ctx)
	if err != nil {
		return "", time.Time{}, SigningFailure("load_secret", err)
	}

	now := i.now()
	pid := user.PID.String()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pid,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        ulid.Make().String(),
		},
		PID: pid,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, SigningFailure("sign_session", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies token and returns its claims. Tokens with a bad
// signature, another algorithm, a foreign issuer, or a missing or past
// expiry are rejected with ErrSessionInvalid.
func (i *SessionIssuer) Parse(ctx context.Context, token string) (*SessionClaims, error) {
	secret, err := i.secrets.SigningSecret(ctx)
	if err != nil {
		return nil, SigningFailure("load_secret", err)
	}

	claims := &SessionClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		code := "AUTH_SESSION_INVALID"
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = "AUTH_SESSION_EXPIRED"
		}
		return nil, oops.Code(code).Wrap(fmt.Errorf("%w: %w", ErrSessionInvalid, err))
	}

	if claims.PID == "" || claims.PID != claims.Subject {
		return nil, oops.Code("AUTH_SESSION_INVALID").Wrap(ErrSessionInvalid)
	}
	return claims, nil
}

// SubjectPID returns the public id carried by the claims.
func (c *SessionClaims) SubjectPID() (uuid.UUID, error) {
	pid, err := uuid.Parse(c.PID)
	if err != nil {
		return uuid.Nil, oops.Code("AUTH_SESSION_INVALID").Wrap(fmt.Errorf("%w: %w", ErrSessionInvalid, err))
	}
	return pid, nil
}
