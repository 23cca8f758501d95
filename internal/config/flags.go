// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package config

import (
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":              "http.addr",
	"request-timeout":        "http.request_timeout",
	"rate-limit":             "http.rate_limit",
	"rate-burst":             "http.rate_burst",
	"secure-cookies":         "http.secure_cookies",
	"metrics-addr":           "metrics.addr",
	"log-format":             "log.format",
	"log-level":              "log.level",
	"store":                  "store.kind",
	"auto-migrate":           "store.auto_migrate",
	"session-ttl":            "auth.session_ttl",
	"verification-ttl":       "auth.verification_ttl",
	"reset-ttl":              "auth.reset_ttl",
	"require-verified-email": "auth.require_verified_email",
	"purge-interval":         "auth.purge_interval",
	"mail-driver":            "mail.driver",
	"base-url":               "mail.base_url",
}

// RegisterFlags adds the server flags to fs, defaulting to Default().
// Secrets and the database URL are deliberately not flags.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.String("http-addr", d.HTTP.Addr, "public API listen address")
	fs.Duration("request-timeout", d.HTTP.RequestTimeout, "per-request timeout")
	fs.Float64("rate-limit", d.HTTP.RateLimit, "auth requests per second allowed per client")
	fs.Int("rate-burst", d.HTTP.RateBurst, "auth request burst allowed per client")
	fs.Bool("secure-cookies", d.HTTP.SecureCookies, "mark session cookies Secure")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store", d.Store.Kind, "user store (memory or postgres)")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on start")
	fs.Duration("session-ttl", d.Auth.SessionTTL, "session token lifetime")
	fs.Duration("verification-ttl", d.Auth.VerificationTTL, "email verification token lifetime")
	fs.Duration("reset-ttl", d.Auth.ResetTTL, "password reset token lifetime")
	fs.Bool("require-verified-email", d.Auth.RequireVerifiedEmail, "refuse login until the email is verified")
	fs.Duration("purge-interval", d.Auth.PurgeInterval, "expired token purge interval (0 = disabled)")
	fs.String("mail-driver", d.Mail.Driver, "mail driver (log or smtp)")
	fs.String("base-url", d.Mail.BaseURL, "public base url used in email links")
}

// flagKey returns a posflag callback that keeps only registered server
// flags, renamed to their config keys.
func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
