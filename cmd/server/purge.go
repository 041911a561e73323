// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	Yes bool
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete caches, local data and unsynced changes",
		Long: `Delete every response cache, unregister all installed releases and clear
the local store including the pending-change queue.

Unsynced changes are lost. Without --yes only a preview is printed.
The agent must be stopped.

Examples:
  sop-agent purge
  sop-agent purge --yes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm the purge")

	return cmd
}

func runPurge(opts *PurgeOptions, cmd *cobra.Command) error {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return err
	}
	data, err := openData(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = data.close() }()

	ctx := cmd.Context()
	// No pages are connected, so the controller needs no event sink.
	ctrl, err := webcache.NewController(webcacheConfig(cfg.App, cfg.Cache), data.cache, nil)
	if err != nil {
		return fmt.Errorf("create cache controller: %w", err)
	}
	if _, err := ctrl.Restore(ctx); err != nil {
		return fmt.Errorf("restore cache controller: %w", err)
	}
	purger := update.NewPurger(ctrl, data.queue, data.store)

	out := cmd.OutOrStdout()
	if !opts.Yes {
		preview, err := purger.Preview(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n\nPending changes: %d\nCaches: %v\n\nRe-run with --yes to purge.\n",
			preview.Warning, preview.PendingChanges, preview.Caches)
		return errors.New("purge not confirmed")
	}

	report, err := purger.Purge(ctx, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d cache(s), discarded %d pending change(s).\n",
		len(report.CachesDeleted), report.DiscardedChanges)
	return nil
}
