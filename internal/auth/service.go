// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillnotes/quill/pkg/errutil"
)

const tracerName = "github.com/quillnotes/quill/internal/auth"

// Deps are the collaborators of Service.
type Deps struct {
	Store    UserStore
	Mailer   Mailer
	Hasher   PasswordHasher
	Secrets  SecretProvider
	Now      func() time.Time // defaults to time.Now
	Logger   *slog.Logger     // defaults to slog.Default()
	Recorder Recorder         // optional

	// GenerateToken defaults to the package GenerateToken.
	GenerateToken TokenGenerator
}

// Options tune Service behaviour.
type Options struct {
	SessionTTL           time.Duration
	SessionIssuer        string
	Tokens               TokenTTLs
	RequireVerifiedEmail bool
}

// Service runs the account flows: Register, Verify, Login, Forgot, Reset.
//
// Each flow returns an Outcome for the user and an error that is non-nil
// only for internal failures (see IsInternal). Rejections never say which
// check failed.
type Service struct {
	store           UserStore
	mailer          Mailer
	hasher          PasswordHasher
	tokens          *TokenService
	sessions        *SessionIssuer
	now             func() time.Time
	logger          *slog.Logger
	recorder        Recorder
	tracer          trace.Tracer
	requireVerified bool

	// dummyHash is verified against when the email is unknown so that
	// both login failures cost the same.
	dummyHash string
}

// NewService creates a Service. Returns an error if a required
// dependency is missing.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user store is required")
	}
	if deps.Mailer == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("mailer is required")
	}
	if deps.Hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if deps.Secrets == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("secret provider is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	token, _, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Wrap(err)
	}
	dummyHash, err := deps.Hasher.Hash(token)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").With("operation", "dummy hash").Wrap(err)
	}

	tokens := NewTokenService(deps.Store, opts.Tokens, deps.Now)
	if deps.GenerateToken != nil {
		tokens.generate = deps.GenerateToken
	}

	return &Service{
		store:           deps.Store,
		mailer:          deps.Mailer,
		hasher:          deps.Hasher,
		tokens:          tokens,
		sessions:        NewSessionIssuer(deps.Secrets, opts.SessionTTL, opts.SessionIssuer, deps.Now),
		now:             deps.Now,
		logger:          deps.Logger,
		recorder:        deps.Recorder,
		tracer:          otel.Tracer(tracerName),
		requireVerified: opts.RequireVerifiedEmail,
		dummyHash:       dummyHash,
	}, nil
}

// Sessions returns the issuer used for login tokens.
func (s *Service) Sessions() *SessionIssuer {
	return s.sessions
}

// Register creates an unverified user and sends the welcome email.
// A taken email and invalid input are rejected the same way.
func (s *Service) Register(ctx context.Context, email, name, password string) (out Outcome, err error) {
	ctx, span := s.start(ctx, FlowRegister)
	defer func() { s.finish(span, FlowRegister, out, err) }()

	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if verr := validateRegistration(email, name, password); verr != nil {
		s.logger.InfoContext(ctx, "registration rejected", "reason", "invalid_input", "error", verr)
		return rejected(MsgRegisterFailed, RedirectRegister), nil
	}

	hash, herr := s.hasher.Hash(password)
	if herr != nil {
		return Outcome{}, oops.Code(CodeHashFailed).With("flow", FlowRegister).Wrap(ensureHashing(herr))
	}

	user, uerr := NewUser(email, name, hash, s.now())
	if uerr != nil {
		s.logger.InfoContext(ctx, "registration rejected", "reason", "invalid_input", "error", uerr)
		return rejected(MsgRegisterFailed, RedirectRegister), nil
	}

	token, prepared, terr := s.tokens.Prepare(*user, PurposeVerification)
	if terr != nil {
		return Outcome{}, oops.With("flow", FlowRegister).Wrap(terr)
	}
	user = &prepared

	if cerr := s.store.Create(ctx, user); cerr != nil {
		if errors.Is(cerr, ErrDuplicateEmail) {
			s.logger.InfoContext(ctx, "registration rejected", "reason", "duplicate_email")
			return rejected(MsgRegisterFailed, RedirectRegister), nil
		}
		return Outcome{}, PersistenceFailure("create_user", cerr)
	}

	s.logger.InfoContext(ctx, "user registered", "pid", user.PID.String())
	s.deliver(ctx, MailWelcome, user, func(ctx context.Context) error {
		return s.mailer.SendWelcome(ctx, user, token)
	})
	return succeeded(RedirectLogin), nil
}

// Verify consumes a verification token. Replaying a token that already
// verified its user succeeds without side effects.
func (s *Service) Verify(ctx context.Context, token string) (out Outcome, err error) {
	ctx, span := s.start(ctx, FlowVerify)
	defer func() { s.finish(span, FlowVerify, out, err) }()

	user, rerr := s.tokens.Resolve(ctx, token, PurposeVerification)
	if rerr != nil {
		if IsInternal(rerr) {
			return Outcome{}, rerr
		}
		s.logger.InfoContext(ctx, "verification rejected", "reason", "unknown_token")
		return rejected(MsgInvalidToken, ""), nil
	}

	if user.IsVerified() {
		s.logger.InfoContext(ctx, "user already verified", "pid", user.PID.String())
		return succeeded(""), nil
	}

	verified, aerr := s.tokens.Apply(ctx, user, token, PurposeVerification, ConsumeVerification)
	if aerr != nil {
		switch {
		case IsInternal(aerr):
			return Outcome{}, aerr
		case errors.Is(aerr, ErrTokenExpired):
			s.logger.InfoContext(ctx, "verification rejected", "reason", "expired", "pid", user.PID.String())
			return rejected(MsgInvalidToken, ""), nil
		}
		// Lost the race to a concurrent consumer of the same token.
		current, lerr := s.store.GetByPID(ctx, user.PID)
		if lerr == nil && current.IsVerified() {
			s.logger.InfoContext(ctx, "user already verified", "pid", user.PID.String())
			return succeeded(""), nil
		}
		if lerr != nil && !errors.Is(lerr, ErrNotFound) {
			return Outcome{}, PersistenceFailure("get_user", lerr)
		}
		s.logger.InfoContext(ctx, "verification rejected", "reason", "token_consumed", "pid", user.PID.String())
		return rejected(MsgInvalidToken, ""), nil
	}

	s.logger.InfoContext(ctx, "user verified", "pid", verified.PID.String())
	s.deliver(ctx, MailEmailVerified, verified, func(ctx context.Context) error {
		return s.mailer.SendEmailVerified(ctx, verified)
	})
	return succeeded(""), nil
}

// Login checks credentials and issues a session token. Unknown email and
// wrong password produce the same outcome and cost the same hash check.
func (s *Service) Login(ctx context.Context, email, password string) (out Outcome, err error) {
	ctx, span := s.start(ctx, FlowLogin)
	defer func() { s.finish(span, FlowLogin, out, err) }()

	user, lookupErr := s.store.GetByEmail(ctx, NormalizeEmail(email))

	targetHash := s.dummyHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return Outcome{}, PersistenceFailure("get_user_by_email", lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		exists = true
	}

	// Over-length passwords still pay for one bounded verification.
	candidate, tooLong := boundPassword(password)
	valid, verifyErr := s.hasher.Verify(candidate, targetHash)
	if verifyErr != nil {
		if exists {
			errutil.LogError(ctx, s.logger, "stored password hash is unreadable", verifyErr, "pid", user.PID.String())
		}
		valid = false
	}

	if !exists || !valid || tooLong {
		s.logger.InfoContext(ctx, "login rejected", "reason", "invalid_credentials")
		return rejected(MsgInvalidCredentials, ""), nil
	}

	if s.requireVerified && !user.IsVerified() {
		s.logger.InfoContext(ctx, "login rejected", "reason", "unverified", "pid", user.PID.String())
		return rejected(MsgInvalidCredentials, ""), nil
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		user = s.upgradeHash(ctx, user, password)
	}

	token, expiresAt, serr := s.sessions.Issue(ctx, user)
	if serr != nil {
		return Outcome{}, serr
	}

	s.logger.InfoContext(ctx, "user logged in", "pid", user.PID.String())
	out = succeeded(RedirectHome)
	out.Session = &SessionGrant{
		Token:     token,
		ExpiresAt: expiresAt,
		PID:       user.PID,
		Name:      user.Name,
		Verified:  user.IsVerified(),
	}
	return out, nil
}

// upgradeHash replaces a legacy hash. Failures are logged and the login
// proceeds with the old hash.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) *User {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "hash", "pid", user.PID.String(), "error", err)
		return user
	}
	next, change := RehashPassword(*user, newHash, s.now())
	if err := s.store.Save(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "save", "pid", user.PID.String(), "error", err)
		return user
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "pid", user.PID.String())
	return &next
}

// Forgot issues a reset token and emails it if the address is registered.
// The outcome is identical whether or not it is; failures are only logged.
func (s *Service) Forgot(ctx context.Context, email string) Outcome {
	ctx, span := s.start(ctx, FlowForgot)
	out := succeeded("")
	defer func() { s.finish(span, FlowForgot, out, nil) }()

	email = NormalizeEmail(email)
	if ValidateEmail(email) != nil {
		return out
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			errutil.LogError(ctx, s.logger, "forgot password lookup failed", err)
		}
		return out
	}

	token, user, err := s.tokens.Issue(ctx, user, PurposeReset)
	if err != nil {
		errutil.LogError(ctx, s.logger, "forgot password token issue failed", err)
		return out
	}

	s.logger.InfoContext(ctx, "password reset requested", "pid", user.PID.String())
	s.deliver(ctx, MailForgotPassword, user, func(ctx context.Context) error {
		return s.mailer.SendForgotPassword(ctx, user, token)
	})
	return out
}

// ResendVerification issues a fresh verification token for an unverified
// address. Like Forgot, the outcome never reveals registration status.
func (s *Service) ResendVerification(ctx context.Context, email string) Outcome {
	ctx, span := s.start(ctx, FlowResendVerification)
	out := succeeded("")
	defer func() { s.finish(span, FlowResendVerification, out, nil) }()

	email = NormalizeEmail(email)
	if ValidateEmail(email) != nil {
		return out
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			errutil.LogError(ctx, s.logger, "resend verification lookup failed", err)
		}
		return out
	}
	if user.IsVerified() {
		return out
	}

	token, user, err := s.tokens.Issue(ctx, user, PurposeVerification)
	if err != nil {
		errutil.LogError(ctx, s.logger, "resend verification token issue failed", err)
		return out
	}

	s.deliver(ctx, MailWelcome, user, func(ctx context.Context) error {
		return s.mailer.SendWelcome(ctx, user, token)
	})
	return out
}

// Reset consumes a reset token and replaces the password.
func (s *Service) Reset(ctx context.Context, token, newPassword string) (out Outcome, err error) {
	ctx, span := s.start(ctx, FlowReset)
	defer func() { s.finish(span, FlowReset, out, err) }()

	if verr := ValidatePassword(newPassword); verr != nil {
		s.logger.InfoContext(ctx, "password reset rejected", "reason", "invalid_password")
		return rejected(MsgResetFailed, ""), nil
	}

	user, cerr := s.tokens.Consume(ctx, token, PurposeReset, func(u User, digest string, now time.Time) (User, Change, error) {
		hash, herr := s.hasher.Hash(newPassword)
		if herr != nil {
			return u, Change{}, oops.Code(CodeHashFailed).With("flow", FlowReset).Wrap(ensureHashing(herr))
		}
		return ConsumeReset(u, digest, hash, now)
	})
	if cerr != nil {
		if IsInternal(cerr) {
			return Outcome{}, cerr
		}
		s.logger.InfoContext(ctx, "password reset rejected", "reason", rejectionReason(cerr))
		return rejected(MsgInvalidToken, ""), nil
	}

	s.logger.InfoContext(ctx, "password reset", "pid", user.PID.String())
	return succeeded(""), nil
}

// CurrentUser resolves a session token to its user.
func (s *Service) CurrentUser(ctx context.Context, sessionToken string) (*User, error) {
	claims, err := s.sessions.Parse(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	pid, err := claims.SubjectPID()
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetByPID(ctx, pid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_SESSION_INVALID").With("pid", pid.String()).Wrap(ErrSessionInvalid)
		}
		return nil, PersistenceFailure("get_user_by_pid", err)
	}
	return user, nil
}

// PurgeExpiredTokens clears tokens older than their TTL.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired tokens purged", "users", n)
	}
	return n, nil
}

// deliver sends an email. Delivery failures never fail the flow.
func (s *Service) deliver(ctx context.Context, kind string, user *User, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		s.recorder.RecordMailFailure(kind)
		errutil.LogError(ctx, s.logger, "mail delivery failed", err, "kind", kind, "pid", user.PID.String())
	}
}

func (s *Service) start(ctx context.Context, flow string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+flow, trace.WithAttributes(attribute.String("auth.flow", flow)))
}

func (s *Service) finish(span trace.Span, flow string, out Outcome, err error) {
	result := ResultOK
	switch {
	case err != nil:
		result = ResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal failure")
	case !out.OK():
		result = ResultRejected
	}
	span.SetAttributes(attribute.String("auth.result", result))
	span.End()
	s.recorder.RecordFlow(flow, result)
}

func validateRegistration(email, name, password string) error {
	return validateStruct(registrationInput{Email: email, Name: name, Password: password})
}

// boundPassword reports whether password exceeds MaxPasswordLength runes
// and, if so, returns its first MaxPasswordLength bytes to verify instead.
func boundPassword(password string) (string, bool) {
	if utf8.RuneCountInString(password) <= MaxPasswordLength {
		return password, false
	}
	return password[:MaxPasswordLength], true
}

func ensureHashing(err error) error {
	if IsInternal(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrHashing, err)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrNotFound):
		return "unknown_token"
	default:
		return "invalid"
	}
}
