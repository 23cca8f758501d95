// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/quillnotes/quill/internal/auth"
)

// Secret is a signing key for tests.
var Secret = auth.StaticSecret("test-secret-key-with-enough-bytes!!")

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Mail is a message captured by RecordingMailer.
type Mail struct {
	Kind  string
	Email string
	Token string
}

// RecordingMailer captures every message it is asked to send.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

var _ auth.Mailer = (*RecordingMailer)(nil)

// FailWith makes subsequent sends record the message and return err.
func (m *RecordingMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SendWelcome implements auth.Mailer.
func (m *RecordingMailer) SendWelcome(_ context.Context, user *auth.User, token string) error {
	return m.record(Mail{Kind: auth.MailWelcome, Email: user.Email, Token: token})
}

// SendForgotPassword implements auth.Mailer.
func (m *RecordingMailer) SendForgotPassword(_ context.Context, user *auth.User, token string) error {
	return m.record(Mail{Kind: auth.MailForgotPassword, Email: user.Email, Token: token})
}

// SendEmailVerified implements auth.Mailer.
func (m *RecordingMailer) SendEmailVerified(_ context.Context, user *auth.User) error {
	return m.record(Mail{Kind: auth.MailEmailVerified, Email: user.Email})
}

func (m *RecordingMailer) record(mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return m.err
}

// Sent returns the captured messages of the given kind, or all if kind is empty.
func (m *RecordingMailer) Sent(kind string) []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Mail
	for _, mail := range m.sent {
		if kind == "" || mail.Kind == kind {
			out = append(out, mail)
		}
	}
	return out
}

// LastToken returns the token of the most recent message of kind sent to email.
func (m *RecordingMailer) LastToken(kind, email string) string {
	sent := m.Sent(kind)
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Email == email {
			return sent[i].Token
		}
	}
	return ""
}

// MockStore is a testify mock of auth.UserStore.
type MockStore struct {
	mock.Mock
}

var _ auth.UserStore = (*MockStore)(nil)

// Create implements auth.UserStore.
func (m *MockStore) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByEmail implements auth.UserStore.
func (m *MockStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	return userArg(args, 0), args.Error(1)
}

// GetByPID implements auth.UserStore.
func (m *MockStore) GetByPID(ctx context.Context, pid uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, pid)
	return userArg(args, 0), args.Error(1)
}

// GetByVerificationToken implements auth.UserStore.
func (m *MockStore) GetByVerificationToken(ctx context.Context, digest string) (*auth.User, error) {
	args := m.Called(ctx, digest)
	return userArg(args, 0), args.Error(1)
}

// GetByResetToken implements auth.UserStore.
func (m *MockStore) GetByResetToken(ctx context.Context, digest string) (*auth.User, error) {
	args := m.Called(ctx, digest)
	return userArg(args, 0), args.Error(1)
}

// Save implements auth.UserStore.
func (m *MockStore) Save(ctx context.Context, change auth.Change) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

// PurgeExpiredTokens implements auth.UserStore.
func (m *MockStore) PurgeExpiredTokens(ctx context.Context, purpose auth.Purpose, issuedBefore time.Time) (int64, error) {
	args := m.Called(ctx, purpose, issuedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func userArg(args mock.Arguments, i int) *auth.User {
	u, _ := args.Get(i).(*auth.User)
	return u
}

// Recorder counts flow results and mail failures.
type Recorder struct {
	mu    sync.Mutex
	Flows map[string]int
	Mail  map[string]int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Flows: map[string]int{}, Mail: map[string]int{}}
}

// RecordFlow implements auth.Recorder.
func (r *Recorder) RecordFlow(flow, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Flows[flow+"/"+result]++
}

// RecordMailFailure implements auth.Recorder.
func (r *Recorder) RecordMailFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Mail[kind]++
}

// Count returns how often flow ended with result.
func (r *Recorder) Count(flow, result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Flows[flow+"/"+result]
}

// MailFailures returns how many deliveries of kind failed.
func (r *Recorder) MailFailures(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Mail[kind]
}

// Hasher returns an argon2id hasher with cheap parameters.
func Hasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
}
