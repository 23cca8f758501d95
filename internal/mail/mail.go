// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package mail delivers Quill account emails.
//
// A Mailer composes plain-text messages and hands them to a Sender. Senders
// can be stacked: a Dispatcher queues messages for background workers, a
// RetrySender retries transient failures, and LogSender or SMTPSender
// perform the final delivery.
package mail

import (
	"context"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/auth"
)

// Message is a composed plain-text email.
type Message struct {
	Kind    string
	To      string
	Subject string
	Body    string
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Mailer implements auth.Mailer on top of a Sender.
type Mailer struct {
	baseURL string
	sender  Sender
}

var _ auth.Mailer = (*Mailer)(nil)

// NewMailer creates a Mailer whose links point at baseURL.
func NewMailer(baseURL string, sender Sender) (*Mailer, error) {
	if sender == nil {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("sender is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").With("base_url", baseURL).Errorf("base url must be absolute")
	}
	return &Mailer{baseURL: strings.TrimRight(baseURL, "/"), sender: sender}, nil
}

// SendWelcome sends the welcome email with the verification link.
func (m *Mailer) SendWelcome(ctx context.Context, user *auth.User, verificationToken string) error {
	return m.sender.Send(ctx, Message{
		Kind:    auth.MailWelcome,
		To:      user.Email,
		Subject: "Welcome to Quill",
		Body: "Hi " + user.Name + ",\n\n" +
			"Confirm your email address by opening the link below:\n\n" +
			m.link("/auth/verify", verificationToken) + "\n",
	})
}

// SendForgotPassword sends the password reset link.
func (m *Mailer) SendForgotPassword(ctx context.Context, user *auth.User, resetToken string) error {
	return m.sender.Send(ctx, Message{
		Kind:    auth.MailForgotPassword,
		To:      user.Email,
		Subject: "Reset your Quill password",
		Body: "Hi " + user.Name + ",\n\n" +
			"Someone asked to reset your password. If it was you, open the link below:\n\n" +
			m.link("/auth/reset", resetToken) + "\n\n" +
			"If you did not ask for this, ignore this email.\n",
	})
}

// SendEmailVerified confirms the verified address.
func (m *Mailer) SendEmailVerified(ctx context.Context, user *auth.User) error {
	return m.sender.Send(ctx, Message{
		Kind:    auth.MailEmailVerified,
		To:      user.Email,
		Subject: "Your email is verified",
		Body:    "Hi " + user.Name + ",\n\nYour email address is now verified.\n",
	})
}

func (m *Mailer) link(path, token string) string {
	return m.baseURL + path + "?" + url.Values{"token": {token}}.Encode()
}
