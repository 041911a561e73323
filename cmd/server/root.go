// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/config"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	// ConfigPath overrides the config file search. Empty searches
	// CONFIG_PATH and config.DefaultConfigPaths.
	ConfigPath string
}

// NewRootCommand creates the sop-agent command tree. Without a
// subcommand it runs serve.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	serve := NewServeCommand(opts)
	cmd := &cobra.Command{
		Use:           "sop-agent",
		Short:         "Offline-first sync agent for the SOP web app",
		Long:          "Keeps SOP records available offline, replays queued edits when connectivity returns and serves the web app from versioned caches.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewDevRemoteCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig loads the configuration, preferring the --config file.
// It returns the config file actually used, or "".
func (o *RootOptions) loadConfig() (*config.Config, string, error) {
	path := o.ConfigPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}
