// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import "context"

// Mailer delivers account emails. Tokens are passed in plaintext and must
// only be placed in the message sent to the user.
type Mailer interface {
	// SendWelcome sends the welcome email carrying the verification token.
	SendWelcome(ctx context.Context, user *User, verificationToken string) error

	// SendForgotPassword sends the reset email carrying the reset token.
	SendForgotPassword(ctx context.Context, user *User, resetToken string) error

	// SendEmailVerified confirms that the address was verified.
	SendEmailVerified(ctx context.Context, user *User) error
}

// Mail kinds, used for logging and metrics.
const (
	MailWelcome        = "welcome"
	MailForgotPassword = "forgot_password"
	MailEmailVerified  = "email_verified"
)

// Flow names, used for logging and metrics.
const (
	FlowRegister           = "register"
	FlowVerify             = "verify"
	FlowLogin              = "login"
	FlowForgot             = "forgot"
	FlowReset              = "reset"
	FlowResendVerification = "resend_verification"
)

// Flow results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Recorder receives flow and mail metrics.
type Recorder interface {
	RecordFlow(flow, result string)
	RecordMailFailure(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordFlow(string, string) {}
func (nopRecorder) RecordMailFailure(string)  {}
