// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	JSON       bool
	Collection string
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List changes waiting to be synced",
		Long: `List the pending-change queue in replay order.

The agent must be stopped: the local store is opened exclusively.

Examples:
  sop-agent pending
  sop-agent pending --collection tasks
  sop-agent pending --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVar(&opts.Collection, "collection", "", "only list changes to this collection")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
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
	var changes []*models.PendingChange
	if opts.Collection != "" {
		changes, err = data.queue.ListByCollection(ctx, opts.Collection)
	} else {
		changes, err = data.queue.ListAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("list pending changes: %w", err)
	}
	if changes == nil {
		changes = []*models.PendingChange{}
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(changes)
	}
	return writePendingTable(out, changes)
}

func writePendingTable(w io.Writer, changes []*models.PendingChange) error {
	if len(changes) == 0 {
		_, err := fmt.Fprintln(w, "No pending changes.")
		return err
	}

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("COLLECTION", "TYPE", "ENTITY", "VERSION", "QUEUED", "ATTEMPTS", "LAST ERROR").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, c := range changes {
		t.Row(
			c.StoreName,
			string(c.ChangeType),
			c.EntityID,
			strconv.FormatInt(c.Version, 10),
			time.Unix(0, c.Timestamp).UTC().Format(time.RFC3339),
			strconv.Itoa(c.Attempts),
			c.LastError,
		)
	}
	_, err := fmt.Fprintf(w, "%s\n%d pending change(s)\n", t.String(), len(changes))
	return err
}
