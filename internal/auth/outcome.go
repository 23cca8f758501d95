// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"time"

	"github.com/google/uuid"
)

// Status is the user-facing result of a flow.
type Status int

// Flow statuses.
const (
	StatusOK Status = iota
	StatusRejected
)

// String implements fmt.Stringer.
func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "rejected"
}

// Generic messages shown on rejection. They never reveal which check failed.
const (
	MsgRegisterFailed     = "could not register"
	MsgInvalidToken       = "invalid or expired token"
	MsgInvalidCredentials = "invalid email or password"
	MsgResetFailed        = "could not reset password"
)

// Redirect hints returned to the transport.
const (
	RedirectLogin    = "/auth/login"
	RedirectRegister = "/auth/register"
	RedirectHome     = "/"
)

// SessionGrant is returned by a successful login.
type SessionGrant struct {
	Token     string
	ExpiresAt time.Time
	PID       uuid.UUID
	Name      string
	Verified  bool
}

// Outcome is the transport-neutral result of a flow.
type Outcome struct {
	Status   Status
	Message  string
	Redirect string
	Session  *SessionGrant
}

// OK reports whether the flow succeeded.
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

func succeeded(redirect string) Outcome {
	return Outcome{Status: StatusOK, Redirect: redirect}
}

func rejected(message, redirect string) Outcome {
	return Outcome{Status: StatusRejected, Message: message, Redirect: redirect}
}
