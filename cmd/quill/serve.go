// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/logging"
	"github.com/quillnotes/quill/internal/mail"
	"github.com/quillnotes/quill/internal/web"
	"github.com/quillnotes/quill/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the account API",
		Long: `Serve the account API over HTTP, with Prometheus metrics and
health checks on a separate listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until ctx is canceled or a signal
// arrives. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer backend.Close()

	var obsServer ObservabilityServer
	var recorder auth.Recorder
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, backend.Ready, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopQuietly(logger, "stop observability server", obsServer.Stop)
		go monitorServerErrors(ctx, stop, obsErrCh, "observability", logger)
		recorder = obsServer.Metrics()
	}

	mailer, dispatcher, err := buildMailer(cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer stopQuietly(logger, "drain mail queue", dispatcher.Close)

	svc, err := auth.NewService(auth.Deps{
		Store:    backend.Store,
		Mailer:   mailer,
		Hasher:   auth.NewArgon2idHasher(),
		Secrets:  auth.StaticSecret(cfg.Auth.JWTSecret),
		Logger:   logger,
		Recorder: recorder,
	}, auth.Options{
		SessionTTL:           cfg.Auth.SessionTTL,
		SessionIssuer:        cfg.Auth.Issuer,
		Tokens:               auth.TokenTTLs{Verification: cfg.Auth.VerificationTTL, Reset: cfg.Auth.ResetTTL},
		RequireVerifiedEmail: cfg.Auth.RequireVerifiedEmail,
	})
	if err != nil {
		return err
	}

	var rejections web.RejectionRecorder
	if obsServer != nil {
		rejections = obsServer.Metrics()
	}
	limiter := web.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, rejections)
	go limiter.Run(ctx)

	if cfg.Auth.PurgeInterval > 0 {
		go runPurgeLoop(ctx, svc, cfg.Auth.PurgeInterval, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	router := web.NewRouter(svc, web.RouterOptions{
		Logger:         logger,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Limiter:        limiter,
		SecureCookies:  cfg.HTTP.SecureCookies,
	})

	listener, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	addr := listener.Addr().String()
	logger.Info("quill ready", "addr", addr, "store", cfg.Store.Kind, "mail", cfg.Mail.Driver)
	if deps.OnReady != nil {
		deps.OnReady(addr)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return oops.Code("SERVE_FAILED").With("addr", addr).Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("best-effort http shutdown failed", "operation", "shutdown http server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(logging.Options{
		Service: "quill",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}), nil
}

// buildMailer stacks the configured sender behind retries and the async
// dispatcher.
func buildMailer(cfg *config.Config, logger *slog.Logger, recorder mail.FailureRecorder) (*mail.Mailer, *mail.Dispatcher, error) {
	var sender mail.Sender
	switch cfg.Mail.Driver {
	case config.MailSMTP:
		smtp, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:           cfg.Mail.SMTPHost,
			Port:           cfg.Mail.SMTPPort,
			Username:       cfg.Mail.SMTPUsername,
			Password:       cfg.Mail.SMTPPassword,
			From:           cfg.Mail.From,
			AllowPlaintext: cfg.Mail.SMTPAllowPlaintext,
		})
		if err != nil {
			return nil, nil, err
		}
		sender = smtp
	default:
		sender = mail.NewLogSender(logger)
	}

	policy := mail.DefaultRetryPolicy()
	policy.Attempts = cfg.Mail.RetryAttempts

	dispatcher := mail.NewDispatcher(mail.NewRetrySender(sender, policy), mail.DispatcherOptions{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.QueueSize,
		Logger:    logger,
		Recorder:  recorder,
	})

	mailer, err := mail.NewMailer(cfg.Mail.BaseURL, dispatcher)
	if err != nil {
		_ = dispatcher.Close(context.Background())
		return nil, nil, err
	}
	return mailer, dispatcher, nil
}

// runPurgeLoop clears expired tokens every interval until ctx is done.
func runPurgeLoop(ctx context.Context, svc *auth.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.PurgeExpiredTokens(ctx); err != nil && ctx.Err() == nil {
				errutil.LogError(ctx, logger, "token purge failed", err)
			}
		}
	}
}

// monitorServerErrors cancels the process context when a background
// server fails. It exits when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

func stopQuietly(logger *slog.Logger, operation string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("best-effort "+operation+" failed", "operation", operation, "error", err)
	}
}
