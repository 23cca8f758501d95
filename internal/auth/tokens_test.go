// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/auth/authtest"
	"github.com/quillnotes/quill/internal/auth/memory"
	"github.com/quillnotes/quill/pkg/errutil"
)

func newTokenFixture(t *testing.T) (*auth.TokenService, *memory.Store, *authtest.Clock, *auth.User) {
	t.Helper()
	store := memory.NewStore()
	clock := authtest.NewClock(epoch)
	u := baseUser(t)
	u.ID = 0
	require.NoError(t, store.Create(context.Background(), &u))
	return auth.NewTokenService(store, auth.TokenTTLs{}, clock.Now), store, clock, &u
}

func TestTokenService_IssueAndConsume(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, u := newTokenFixture(t)

	token, issued, err := svc.Issue(ctx, u, auth.PurposeReset)
	require.NoError(t, err)
	assert.Equal(t, auth.DigestToken(token), *issued.ResetToken)

	clock.Advance(30 * time.Minute)
	consumed, err := svc.Consume(ctx, token, auth.PurposeReset, func(u auth.User, digest string, now time.Time) (auth.User, auth.Change, error) {
		return auth.ConsumeReset(u, digest, "new-hash", now)
	})
	require.NoError(t, err)
	assert.Equal(t, "new-hash", consumed.PasswordHash)

	_, err = svc.Resolve(ctx, token, auth.PurposeReset)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestTokenService_ReissueInvalidatesPrevious(t *testing.T) {
	ctx := context.Background()
	svc, _, _, u := newTokenFixture(t)

	first, issued, err := svc.Issue(ctx, u, auth.PurposeReset)
	require.NoError(t, err)
	second, _, err := svc.Issue(ctx, issued, auth.PurposeReset)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, first, auth.PurposeReset)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = svc.Resolve(ctx, second, auth.PurposeReset)
	assert.NoError(t, err)
}

func TestTokenService_Expiry(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, u := newTokenFixture(t)

	token, _, err := svc.Issue(ctx, u, auth.PurposeReset)
	require.NoError(t, err)

	clock.Advance(auth.DefaultResetTTL + time.Second)
	_, err = svc.Consume(ctx, token, auth.PurposeReset, func(u auth.User, digest string, now time.Time) (auth.User, auth.Change, error) {
		return auth.ConsumeReset(u, digest, "new-hash", now)
	})
	require.ErrorIs(t, err, auth.ErrTokenExpired)
	errutil.AssertErrorCode(t, err, auth.CodeTokenExpired)
}

func TestTokenService_EmptyToken(t *testing.T) {
	svc, _, _, _ := newTokenFixture(t)
	_, err := svc.Resolve(context.Background(), "", auth.PurposeVerification)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestTokenService_StoreFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	store := &authtest.MockStore{}
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	store.On("GetByResetToken", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	svc := auth.NewTokenService(store, auth.TokenTTLs{}, nil)
	u := baseUser(t)

	_, _, err := svc.Issue(ctx, &u, auth.PurposeReset)
	require.Error(t, err)
	assert.True(t, auth.IsInternal(err))
	errutil.AssertErrorCode(t, err, auth.CodePersistenceFailed)

	_, err = svc.Resolve(ctx, "token", auth.PurposeReset)
	require.Error(t, err)
	assert.True(t, auth.IsInternal(err))
}

func TestTokenService_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, u := newTokenFixture(t)

	_, issued, err := svc.Issue(ctx, u, auth.PurposeReset)
	require.NoError(t, err)
	_, _, err = svc.Issue(ctx, issued, auth.PurposeVerification)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the reset token is past its TTL")
}
