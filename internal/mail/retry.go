// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package mail

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// RetryPolicy bounds the retries of a RetrySender.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy returns the delivery retry policy used by serve.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 200 * time.Millisecond, Max: 5 * time.Second}
}

// RetrySender retries transient failures of the wrapped Sender with
// exponential backoff.
type RetrySender struct {
	next   Sender
	policy RetryPolicy
}

// NewRetrySender wraps next. Zero policy fields use DefaultRetryPolicy.
func NewRetrySender(next Sender, policy RetryPolicy) *RetrySender {
	def := DefaultRetryPolicy()
	if policy.Attempts == 0 {
		policy.Attempts = def.Attempts
	}
	if policy.Base <= 0 {
		policy.Base = def.Base
	}
	if policy.Max <= 0 {
		policy.Max = def.Max
	}
	return &RetrySender{next: next, policy: policy}
}

// Send delivers msg, retrying up to Attempts times after the first try.
func (s *RetrySender) Send(ctx context.Context, msg Message) error {
	backoff := retry.NewExponential(s.policy.Base)
	backoff = retry.WithCappedDuration(s.policy.Max, backoff)
	backoff = retry.WithMaxRetries(s.policy.Attempts, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.next.Send(ctx, msg)
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		return retry.RetryableError(err)
	})
}
