// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/observability"
	"github.com/quillnotes/quill/internal/store"
)

// Backend is an opened user store.
type Backend struct {
	Store auth.UserStore
	// Ready reports whether the store can serve requests.
	Ready observability.ReadinessChecker
	Close func()
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// OpenBackend opens the configured user store.
	// Default: openBackend
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Listen creates the public API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// OnReady is called with the bound API address once serving.
	OnReady func(addr string)
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

var _ Migrator = (*store.Migrator)(nil)

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.OpenBackend == nil {
		out.OpenBackend = openBackend
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	return &out
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	return &out
}
