// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package mail

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/quillnotes/quill/pkg/errutil"
)

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "quill@example.com"})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_CONFIG")

	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_CONFIG")

	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 70000, From: "quill@example.com"})
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_CONFIG")

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "quill@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, s.cfg.Port)
	assert.Equal(t, DefaultSMTPTimeout, s.cfg.Timeout)
}

func TestSMTPSender_Send(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{
		Host: "smtp.example.com", Port: 2525,
		Username: "quill", Password: "secret",
		From: "quill@example.com",
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var got *gomail.Msg
	s.deliver = func(_ context.Context, m *gomail.Msg) error {
		got = m
		return nil
	}

	err = s.Send(context.Background(), Message{
		Kind: "welcome", To: "alice@example.com", Subject: "Hi", Body: "line one\nline two\n",
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	rcpts, err := got.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, rcpts)
	require.Len(t, got.GetFromString(), 1)
	assert.Contains(t, got.GetFromString()[0], "quill@example.com")
	assert.Equal(t, []string{"Hi"}, got.GetGenHeader(gomail.HeaderSubject))
	assert.Equal(t, []string{"Fri, 02 Jan 2026 03:04:05 +0000"}, got.GetGenHeader(gomail.HeaderDate))

	var buf bytes.Buffer
	_, err = got.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "line one")
	assert.Contains(t, buf.String(), "line two")
}

func TestSMTPSender_Failures(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "quill@example.com"})
	require.NoError(t, err)
	msg := Message{Kind: "welcome", To: "alice@example.com"}

	t.Run("canceled context", func(t *testing.T) {
		called := false
		s.deliver = func(context.Context, *gomail.Msg) error {
			called = true
			return nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := s.Send(ctx, msg)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("malformed recipient is permanent", func(t *testing.T) {
		called := false
		s.deliver = func(context.Context, *gomail.Msg) error {
			called = true
			return nil
		}
		err := s.Send(context.Background(), Message{Kind: "welcome", To: "not an address"})
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		assert.ErrorIs(t, err, ErrPermanent)
		assert.False(t, called)
	})

	t.Run("dial failure is transient", func(t *testing.T) {
		s.deliver = func(context.Context, *gomail.Msg) error {
			return errors.New("dial failed: connection refused")
		}
		err := s.Send(context.Background(), msg)
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		errutil.AssertErrorContext(t, err, "addr", "smtp.example.com:587")
		assert.False(t, errors.Is(err, ErrPermanent))
	})
}

// fakeRelay accepts one SMTP session on loopback, answering RCPT with
// rcptReply. Message data is sent on the returned channel.
func fakeRelay(t *testing.T, rcptReply string) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		conn net.Conn
	)
	done := make(chan struct{})
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		if conn != nil {
			_ = conn.Close()
		}
		mu.Unlock()
		<-done
	})

	data := make(chan string, 1)
	go func() {
		defer close(done)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		mu.Lock()
		conn = c
		mu.Unlock()
		defer c.Close()
		tp := textproto.NewConn(c)
		reply := func(line string) { _ = tp.PrintfLine("%s", line) }

		reply("220 relay.test ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb, _, _ := strings.Cut(line, " ")
			switch strings.ToUpper(verb) {
			case "EHLO", "HELO":
				reply("250 relay.test")
			case "RCPT":
				reply(rcptReply)
			case "DATA":
				reply("354 end with .")
				lines, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				data <- strings.Join(lines, "\n")
				reply("250 queued")
			case "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 ok")
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, data
}

func TestSMTPSender_Relay(t *testing.T) {
	msg := Message{Kind: "verify", To: "alice@example.com", Subject: "Verify your email", Body: "follow the link\n"}
	newSender := func(t *testing.T, port int, plaintext bool) *SMTPSender {
		s, err := NewSMTPSender(SMTPConfig{
			Host: "127.0.0.1", Port: port, From: "quill@example.com",
			AllowPlaintext: plaintext, Timeout: 5 * time.Second,
		})
		require.NoError(t, err)
		return s
	}

	t.Run("delivers message", func(t *testing.T) {
		port, data := fakeRelay(t, "250 ok")
		err := newSender(t, port, true).Send(context.Background(), msg)
		require.NoError(t, err)

		select {
		case body := <-data:
			assert.Contains(t, body, "Subject: Verify your email")
			assert.Contains(t, body, "follow the link")
		case <-time.After(5 * time.Second):
			t.Fatal("relay never received message data")
		}
	})

	t.Run("5xx recipient reply is permanent", func(t *testing.T) {
		port, _ := fakeRelay(t, "550 mailbox unavailable")
		err := newSender(t, port, true).Send(context.Background(), msg)
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		assert.ErrorIs(t, err, ErrPermanent)
	})

	t.Run("4xx recipient reply is transient", func(t *testing.T) {
		port, _ := fakeRelay(t, "451 try again later")
		err := newSender(t, port, true).Send(context.Background(), msg)
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		assert.False(t, errors.Is(err, ErrPermanent))
	})

	t.Run("relay without STARTTLS is refused by default", func(t *testing.T) {
		port, data := fakeRelay(t, "250 ok")
		err := newSender(t, port, false).Send(context.Background(), msg)
		errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
		assert.False(t, errors.Is(err, ErrPermanent))
		assert.Empty(t, data)
	})
}
