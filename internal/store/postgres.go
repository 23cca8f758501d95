// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package store manages the PostgreSQL connection pool and schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectRetries is used when PoolConfig.ConnectRetries is zero.
const DefaultConnectRetries = 5

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns int32
	// ConnectRetries is the number of pings after the first one.
	// Zero selects DefaultConnectRetries.
	ConnectRetries uint64
	RetryBase      time.Duration
}

// Connect opens a pool for dsn and waits until the database answers a
// ping, retrying with exponential backoff.
func Connect(ctx context.Context, dsn string, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectRetries == 0 {
		cfg.ConnectRetries = DefaultConnectRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.WithCappedDuration(5*time.Second, retry.NewExponential(cfg.RetryBase)))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
