// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// TokenTTLs configures how long issued tokens stay valid.
type TokenTTLs struct {
	Verification time.Duration
	Reset        time.Duration
}

// DefaultTokenTTLs returns the default token lifetimes.
func DefaultTokenTTLs() TokenTTLs {
	return TokenTTLs{Verification: DefaultVerificationTTL, Reset: DefaultResetTTL}
}

// Effect is a pure transition applied when a token is consumed. It
// receives the resolved user and the token digest.
type Effect func(u User, digest string, now time.Time) (User, Change, error)

// TokenService issues, resolves and consumes single-use tokens.
type TokenService struct {
	store    UserStore
	ttls     TokenTTLs
	now      func() time.Time
	generate TokenGenerator
}

// TokenGenerator returns a new token and its storage digest.
type TokenGenerator func() (token, digest string, err error)

// NewTokenService creates a TokenService. Zero TTLs select the defaults.
func NewTokenService(store UserStore, ttls TokenTTLs, now func() time.Time) *TokenService {
	if ttls.Verification == 0 {
		ttls.Verification = DefaultVerificationTTL
	}
	if ttls.Reset == 0 {
		ttls.Reset = DefaultResetTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{store: store, ttls: ttls, now: now, generate: GenerateToken}
}

// TTL returns the lifetime of tokens of the given purpose.
func (s *TokenService) TTL(purpose Purpose) time.Duration {
	if purpose == PurposeReset {
		return s.ttls.Reset
	}
	return s.ttls.Verification
}

// Prepare generates a token for u without persisting it. The caller
// persists the returned snapshot, typically as part of creating the user.
func (s *TokenService) Prepare(u User, purpose Purpose) (string, User, error) {
	token, digest, err := s.generate()
	if err != nil {
		return "", u, generationFailure(purpose, err)
	}
	next, _ := IssueToken(u, purpose, digest, s.now())
	return token, next, nil
}

// Issue generates a fresh token for u, replacing any outstanding token of
// the same purpose, and persists it.
func (s *TokenService) Issue(ctx context.Context, u *User, purpose Purpose) (string, *User, error) {
	token, digest, err := s.generate()
	if err != nil {
		return "", nil, generationFailure(purpose, err)
	}

	next, change := IssueToken(*u, purpose, digest, s.now())
	if err := s.store.Save(ctx, change); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, oops.With("purpose", purpose.String()).Wrap(err)
		}
		return "", nil, PersistenceFailure("issue_token", err)
	}
	return token, &next, nil
}

// Resolve returns the user holding token for purpose.
// Verification tokens that already verified their user still resolve.
func (s *TokenService) Resolve(ctx context.Context, token string, purpose Purpose) (*User, error) {
	if token == "" {
		return nil, NotFoundError("token", "purpose", purpose.String())
	}

	digest := DigestToken(token)
	var (
		u   *User
		err error
	)
	switch purpose {
	case PurposeVerification:
		u, err = s.store.GetByVerificationToken(ctx, digest)
	case PurposeReset:
		u, err = s.store.GetByResetToken(ctx, digest)
	default:
		return nil, oops.Code(CodeInvalidInput).With("purpose", int(purpose)).Errorf("unknown token purpose")
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, PersistenceFailure("resolve_token", err)
	}
	return u, nil
}

// Consume resolves token and applies effect to its user.
func (s *TokenService) Consume(ctx context.Context, token string, purpose Purpose, effect Effect) (*User, error) {
	u, err := s.Resolve(ctx, token, purpose)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, u, token, purpose, effect)
}

// Apply checks the expiry of token on an already resolved user, runs
// effect and persists its change. The write is a compare-and-clear on the
// token digest, so a concurrent consumer that lost the race receives
// ErrNotFound.
func (s *TokenService) Apply(ctx context.Context, u *User, token string, purpose Purpose, effect Effect) (*User, error) {
	now := s.now()
	sentAt := u.VerificationSentAt
	if purpose == PurposeReset {
		sentAt = u.ResetSentAt
	}
	if TokenExpired(sentAt, s.TTL(purpose), now) {
		return nil, oops.Code(CodeTokenExpired).
			With("purpose", purpose.String()).
			With("user_id", u.ID).
			Wrap(ErrTokenExpired)
	}

	next, change, err := effect(*u, DigestToken(token), now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, change); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.With("purpose", purpose.String()).With("change", change.Kind.String()).Wrap(err)
		}
		return nil, PersistenceFailure("consume_token", err)
	}
	return &next, nil
}

// PurgeExpired clears tokens older than their TTL. Returns the number of
// users updated across purposes.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, purpose := range []Purpose{PurposeVerification, PurposeReset} {
		n, err := s.store.PurgeExpiredTokens(ctx, purpose, now.Add(-s.TTL(purpose)))
		if err != nil {
			return total, PersistenceFailure("purge_tokens", err)
		}
		total += n
	}
	return total, nil
}

func generationFailure(purpose Purpose, err error) error {
	if IsInternal(err) {
		return oops.With("purpose", purpose.String()).Wrap(err)
	}
	return oops.Code(CodeTokenFailed).
		With("purpose", purpose.String()).
		Wrap(fmt.Errorf("%w: %w", ErrTokenGeneration, err))
}
