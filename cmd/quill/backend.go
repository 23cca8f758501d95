// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/auth/memory"
	"github.com/quillnotes/quill/internal/auth/postgres"
	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/store"
)

// openBackend opens the user store selected by cfg.Store.Kind.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store.Kind {
	case config.StoreMemory:
		logger.Warn("using the in-memory user store; accounts are lost on restart")
		return &Backend{
			Store: memory.NewStore(),
			Ready: func(context.Context) bool { return true },
			Close: func() {},
		}, nil
	case config.StorePostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("store", cfg.Store.Kind).Errorf("unknown store kind")
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, poolConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	if cfg.Store.AutoMigrate {
		if err := autoMigrate(cfg.Store.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Backend{
		Store: postgres.NewUserRepository(pool),
		Ready: func(ctx context.Context) bool { return pool.Ping(ctx) == nil },
		Close: pool.Close,
	}, nil
}

func poolConfig(cfg *config.Config) store.PoolConfig {
	return store.PoolConfig{
		MaxConns:       cfg.Store.MaxConns,
		ConnectRetries: cfg.Store.ConnectRetries,
	}
}

func autoMigrate(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("best-effort migrator close failed", "operation", "close migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "list pending").Wrap(err)
	}
	if len(pending) == 0 {
		return nil
	}

	logger.Info("applying migrations", "pending", len(pending))
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}
