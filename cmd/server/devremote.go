// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
)

// NewDevRemoteCommand creates the dev-remote command, an in-memory remote
// data service for local development and demos.
func NewDevRemoteCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "dev-remote",
		Short: "Run an in-memory remote data service",
		Long: `Run an in-memory remote data service speaking the protocol the agent
replays changes against. Data is lost on exit.

Examples:
  sop-agent dev-remote --addr 127.0.0.1:8421
  REMOTE_URL=http://127.0.0.1:8421 sop-agent serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDevRemote(ctx, cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8421", "listen address")

	return cmd
}

func runDevRemote(ctx context.Context, cmd *cobra.Command, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           remote.NewHandler(remote.NewMemory()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Fprintf(cmd.OutOrStdout(), "In-memory remote listening on http://%s\n", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
