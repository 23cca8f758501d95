// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package memory provides an in-process UserStore for tests and
// single-node development.
package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillnotes/quill/internal/auth"
)

// Store is a mutex-guarded map of users. Snapshots are copied on the way
// in and out so callers never share state with the store.
type Store struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]auth.User
}

// Compile-time interface check.
var _ auth.UserStore = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{users: make(map[int64]auth.User)}
}

// Create persists a new user and assigns its ID.
func (s *Store) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return auth.DuplicateEmailError()
		}
	}

	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = user.Clone()
	return nil
}

// GetByEmail retrieves a user by normalized email.
func (s *Store) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	return s.find(func(u *auth.User) bool { return u.Email == email }, "user", "email")
}

// GetByPID retrieves a user by public id.
func (s *Store) GetByPID(_ context.Context, pid uuid.UUID) (*auth.User, error) {
	return s.find(func(u *auth.User) bool { return u.PID == pid }, "user", "pid")
}

// GetByVerificationToken retrieves the user holding, or verified by, digest.
func (s *Store) GetByVerificationToken(_ context.Context, digest string) (*auth.User, error) {
	return s.find(func(u *auth.User) bool {
		return equal(u.VerificationToken, digest) || equal(u.VerifiedWithToken, digest)
	}, "verification_token", "digest")
}

// GetByResetToken retrieves the user holding digest as reset token.
func (s *Store) GetByResetToken(_ context.Context, digest string) (*auth.User, error) {
	return s.find(func(u *auth.User) bool { return equal(u.ResetToken, digest) }, "reset_token", "digest")
}

// Save applies change atomically.
func (s *Store) Save(_ context.Context, change auth.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[change.UserID]
	if !ok {
		return auth.NotFoundError("user", "user_id", change.UserID)
	}
	next, err := change.Apply(u)
	if err != nil {
		return err
	}
	s.users[change.UserID] = next
	return nil
}

// PurgeExpiredTokens clears outstanding tokens issued before issuedBefore.
func (s *Store) PurgeExpiredTokens(_ context.Context, purpose auth.Purpose, issuedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, u := range s.users {
		switch purpose {
		case auth.PurposeVerification:
			if u.VerificationToken == nil || u.VerificationSentAt == nil || !u.VerificationSentAt.Before(issuedBefore) {
				continue
			}
			u.VerificationToken = nil
		case auth.PurposeReset:
			if u.ResetToken == nil || u.ResetSentAt == nil || !u.ResetSentAt.Before(issuedBefore) {
				continue
			}
			u.ResetToken = nil
		default:
			continue
		}
		s.users[id] = u
		n++
	}
	return n, nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) find(match func(*auth.User) bool, entity, key string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if match(&u) {
			found := u.Clone()
			return &found, nil
		}
	}
	return nil, auth.NotFoundError(entity, "lookup", key)
}

func equal(stored *string, digest string) bool {
	if stored == nil || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(digest)) == 1
}
