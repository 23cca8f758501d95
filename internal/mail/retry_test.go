// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package mail_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/mail"
)

func fastPolicy() mail.RetryPolicy {
	return mail.RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestRetrySender(t *testing.T) {
	errRelay := errors.New("relay busy")

	tests := []struct {
		name      string
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first try", 0, nil, 1, nil},
		{"recovers after transient failures", 2, errRelay, 3, nil},
		{"gives up after attempts", 10, errRelay, 4, errRelay},
		{"permanent failure stops", 10, fmt.Errorf("%w: rejected", mail.ErrPermanent), 1, mail.ErrPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			next := mail.SenderFunc(func(context.Context, mail.Message) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			err := mail.NewRetrySender(next, fastPolicy()).Send(context.Background(), mail.Message{Kind: "welcome"})
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetrySender_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	next := mail.SenderFunc(func(context.Context, mail.Message) error {
		calls++
		return errors.New("unreachable")
	})

	err := mail.NewRetrySender(next, fastPolicy()).Send(ctx, mail.Message{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
