// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/config"
)

// NewPurgeTokensCmd creates the purge-tokens subcommand.
func NewPurgeTokensCmd() *cobra.Command {
	return newPurgeTokensCmd(nil)
}

func newPurgeTokensCmd(open func(ctx context.Context, cfg *config.Config) (*Backend, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-tokens",
		Short: "Clear expired verification and reset tokens",
		Long: `Clear verification and reset tokens older than their lifetime.
serve does this periodically; this command runs one pass, e.g. from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			opener := open
			if opener == nil {
				opener = func(ctx context.Context, cfg *config.Config) (*Backend, error) {
					return openBackend(ctx, cfg, logger)
				}
			}
			backend, err := opener(ctx, cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			tokens := auth.NewTokenService(backend.Store, auth.TokenTTLs{
				Verification: cfg.Auth.VerificationTTL,
				Reset:        cfg.Auth.ResetTTL,
			}, nil)
			n, err := tokens.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Purged expired tokens from %d users\n", n)
			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}
