// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Quill CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill - note taking for the web",
		Long: `Quill is a server-rendered note-taking application. This binary
serves the account API (registration, email verification, login and
password reset) and manages its database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/quill/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeTokensCmd())

	return cmd
}

// loadConfig loads configuration from --config, or from the XDG default
// file when the flag is unset and that file exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = xdg.DefaultConfigFile(); err != nil {
			return nil, err
		}
	}
	return config.Load(cmd.Flags(), path)
}
