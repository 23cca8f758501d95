// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package config loads Quill server configuration.
//
// Values are layered, later sources winning: flag defaults, an optional
// YAML file, flags set on the command line, then environment variables.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/quillnotes/quill/internal/logging"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Mail drivers.
const (
	MailLog  = "log"
	MailSMTP = "smtp"
)

// MinSecretLength is the shortest accepted session signing secret.
const MinSecretLength = 32

// Config is the complete server configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Auth    AuthConfig    `koanf:"auth"`
	Mail    MailConfig    `koanf:"mail"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr" env:"QUILL_HTTP_ADDR"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	RateLimit      float64       `koanf:"rate_limit"`
	RateBurst      int           `koanf:"rate_burst"`
	SecureCookies  bool          `koanf:"secure_cookies" env:"QUILL_SECURE_COOKIES"`
}

// MetricsConfig configures the observability listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" env:"QUILL_METRICS_ADDR"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" env:"QUILL_LOG_FORMAT"`
	Level  string `koanf:"level" env:"QUILL_LOG_LEVEL"`
}

// StoreConfig selects and configures the user store.
type StoreConfig struct {
	Kind           string `koanf:"kind" env:"QUILL_STORE"`
	DatabaseURL    string `koanf:"database_url" env:"DATABASE_URL"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries" env:"QUILL_DB_CONNECT_RETRIES"` // pings after the first
	AutoMigrate    bool   `koanf:"auto_migrate" env:"QUILL_AUTO_MIGRATE"`
}

// AuthConfig configures sessions and tokens.
type AuthConfig struct {
	JWTSecret            string        `koanf:"jwt_secret" env:"QUILL_JWT_SECRET"`
	Issuer               string        `koanf:"issuer"`
	SessionTTL           time.Duration `koanf:"session_ttl"`
	VerificationTTL      time.Duration `koanf:"verification_ttl"`
	ResetTTL             time.Duration `koanf:"reset_ttl"`
	RequireVerifiedEmail bool          `koanf:"require_verified_email" env:"QUILL_REQUIRE_VERIFIED_EMAIL"`
	PurgeInterval        time.Duration `koanf:"purge_interval"`
}

// MailConfig configures outbound email.
type MailConfig struct {
	Driver             string `koanf:"driver" env:"QUILL_MAIL_DRIVER"`
	BaseURL            string `koanf:"base_url" env:"QUILL_BASE_URL"`
	From               string `koanf:"from" env:"QUILL_MAIL_FROM"`
	SMTPHost           string `koanf:"smtp_host" env:"QUILL_SMTP_HOST"`
	SMTPPort           int    `koanf:"smtp_port" env:"QUILL_SMTP_PORT"`
	SMTPUsername       string `koanf:"smtp_username" env:"QUILL_SMTP_USERNAME"`
	SMTPPassword       string `koanf:"smtp_password" env:"QUILL_SMTP_PASSWORD"`
	SMTPAllowPlaintext bool   `koanf:"smtp_allow_plaintext" env:"QUILL_SMTP_ALLOW_PLAINTEXT"`
	Workers            int    `koanf:"workers"`
	QueueSize          int    `koanf:"queue_size"`
	RetryAttempts      uint64 `koanf:"retry_attempts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:8080",
			RequestTimeout: 10 * time.Second,
			RateLimit:      5,
			RateBurst:      10,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store:   StoreConfig{Kind: StoreMemory, MaxConns: 10, ConnectRetries: 5},
		Auth: AuthConfig{
			Issuer:          "quill",
			SessionTTL:      24 * time.Hour,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
			PurgeInterval:   time.Hour,
		},
		Mail: MailConfig{
			Driver:        MailLog,
			BaseURL:       "http://127.0.0.1:8080",
			From:          "Quill <no-reply@quill.local>",
			SMTPPort:      587,
			Workers:       2,
			QueueSize:     256,
			RetryAttempts: 3,
		},
	}
}

// Load builds a Config from the flags registered with RegisterFlags, the
// YAML file at path (skipped when empty) and the environment.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey(fs)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "merge").Wrap(err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return invalid("http.request_timeout", "must be positive")
	}
	if c.HTTP.RateLimit <= 0 || c.HTTP.RateBurst <= 0 {
		return invalid("http.rate_limit", "rate and burst must be positive")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "is required for the postgres store (DATABASE_URL)")
		}
	default:
		return invalid("store.kind", "must be 'memory' or 'postgres'")
	}

	if len(c.Auth.JWTSecret) < MinSecretLength {
		return invalid("auth.jwt_secret", "must be at least 32 bytes (QUILL_JWT_SECRET)")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.VerificationTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return invalid("auth", "session, verification and reset ttls must be positive")
	}
	if c.Auth.PurgeInterval < 0 {
		return invalid("auth.purge_interval", "must not be negative")
	}

	return c.Mail.validate()
}

func (m MailConfig) validate() error {
	u, err := url.Parse(m.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("mail.base_url", "must be an absolute url")
	}
	if m.Workers <= 0 || m.QueueSize <= 0 {
		return invalid("mail.workers", "workers and queue size must be positive")
	}

	switch m.Driver {
	case MailLog:
	case MailSMTP:
		if m.SMTPHost == "" {
			return invalid("mail.smtp_host", "is required for the smtp driver")
		}
		if strings.TrimSpace(m.From) == "" {
			return invalid("mail.from", "is required for the smtp driver")
		}
	default:
		return invalid("mail.driver", "must be 'log' or 'smtp'")
	}
	return nil
}

func invalid(key, reason string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, reason)
}
