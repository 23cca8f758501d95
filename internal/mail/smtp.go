// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// DefaultSMTPTimeout bounds dialing the relay.
const DefaultSMTPTimeout = 15 * time.Second

// SMTPConfig configures an SMTPSender. AllowPlaintext permits delivery to
// relays that do not offer STARTTLS.
type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	AllowPlaintext bool
	Timeout        time.Duration
}

type deliverFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver deliverFunc
	now     func() time.Time
}

// NewSMTPSender creates an SMTPSender. PLAIN auth is used when a username is
// set; STARTTLS is mandatory unless AllowPlaintext is set.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}

	policy := gomail.TLSMandatory
	if cfg.AllowPlaintext {
		policy = gomail.TLSOpportunistic
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(policy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_INVALID_CONFIG").With("host", cfg.Host).Wrap(err)
	}

	return &SMTPSender{
		cfg: cfg,
		deliver: func(ctx context.Context, m *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, m)
		},
		now: time.Now,
	}, nil
}

// Send delivers msg. SMTP 5xx replies and unaddressable messages are returned
// as permanent failures.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("kind", msg.Kind).Wrap(err)
	}

	m, err := s.compose(msg)
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("kind", msg.Kind).
			Wrap(fmt.Errorf("%w: %w", ErrPermanent, err))
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.deliver(ctx, m); err != nil {
		if permanent(err) {
			err = fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return oops.Code("MAIL_SEND_FAILED").With("kind", msg.Kind).With("addr", addr).Wrap(err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg(gomail.WithCharset(gomail.CharsetUTF8), gomail.WithEncoding(gomail.EncodingQP))
	if err := m.From(s.cfg.From); err != nil {
		return nil, err
	}
	if err := m.To(msg.To); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(s.now())
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

func permanent(err error) bool {
	var sendErr *gomail.SendError
	if !errors.As(err, &sendErr) {
		return false
	}
	switch sendErr.Reason {
	case gomail.ErrGetSender, gomail.ErrGetRcpts, gomail.ErrNoUnencoded:
		return true
	}
	return sendErr.ErrorCode() >= 500
}
