// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/connectivity"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/config"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/metrics"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/storage"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/supervisor"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/supervisor/services"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync agent",
		Long: `Run the sync agent until SIGINT or SIGTERM.

Examples:
  sop-agent serve
  sop-agent serve --config /etc/sop-agent/config.yaml
  APP_ORIGIN=http://127.0.0.1:5173 REMOTE_URL=http://127.0.0.1:8421 sop-agent`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, path)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	logging.Init(loggingConfig(cfg.Logging))
	defer func() { _ = logging.Close() }()

	metrics.SetBuildInfo(version, commit)
	logging.Info().
		Str("version", version).
		Str("commit", commit).
		Str("origin", cfg.App.Origin).
		Str("remote", cfg.Remote.URL).
		Str("config", configPath).
		Msg("Starting SOP sync agent")

	a, err := newAgent(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize agent")
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logging.Error().Err(err).Msg("Closing agent resources failed")
		}
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a.routePageCommands()

	a.restoreRelease(ctx)

	if configPath != "" {
		stop, err := config.WatchLogLevel(configPath)
		if err != nil {
			logging.Warn().Err(err).Str("path", configPath).Msg("Config file watch unavailable")
		} else {
			defer func() { _ = stop() }()
		}
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), treeConfig(cfg.Supervisor))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return err
	}
	a.addServices(tree)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Str("addr", a.server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Agent stopped")
	return nil
}

// routePageCommands connects page commands to the components that act
// on them.
func (a *agent) routePageCommands() {
	a.dispatcher.Handle(messaging.TypeSyncOfflineChanges, func(ctx context.Context, m messaging.Message) error {
		a.driver.TriggerDrain()
		return nil
	})
	a.dispatcher.Handle(messaging.TypeSkipWaiting, func(ctx context.Context, m messaging.Message) error {
		if _, err := a.notifier.Accept(ctx); err != nil && !errors.Is(err, update.ErrNoUpdateWaiting) {
			return err
		}
		return nil
	})
	a.dispatcher.Handle(messaging.TypeOnline, func(ctx context.Context, m messaging.Message) error {
		a.driver.SetOnline(ctx, true, connectivity.SourcePage)
		return nil
	})
	a.dispatcher.Handle(messaging.TypeOffline, func(ctx context.Context, m messaging.Message) error {
		a.driver.SetOnline(ctx, false, connectivity.SourcePage)
		return nil
	})
}

// addServices registers every component with the tree.
func (a *agent) addServices(tree *supervisor.SupervisorTree) {
	cfg := a.cfg

	// Data layer
	tree.AddDataService(services.NewComponentService("store-gc",
		storage.NewGCLoop("store", a.store, cfg.Store.GCInterval)))
	tree.AddDataService(services.NewComponentService("webcache-gc",
		storage.NewGCLoop("webcache", a.cache, cfg.Cache.GCInterval)))

	// Messaging layer
	tree.AddMessagingService(services.NewWebSocketHubService(a.hub))
	tree.AddMessagingService(services.NewComponentService("event-bridge", a.bridge))
	tree.AddMessagingService(services.NewErrComponentService("page-commands", a.dispatcher))
	tree.AddMessagingService(services.NewComponentService("sync-driver", a.driver))
	if cfg.Connectivity.ProbeInterval > 0 {
		prober := connectivity.NewProber(a.monitor, a.remote, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout)
		tree.AddMessagingService(services.NewComponentService("connectivity-prober", prober))
	} else {
		logging.Info().Msg("Connectivity probing disabled; relying on page and transport signals")
	}
	if cfg.Update.Interval > 0 {
		tree.AddMessagingService(services.NewComponentService("update-notifier", a.notifier))
	} else {
		logging.Info().Msg("Update polling disabled")
	}

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(a.server, cfg.Server.ShutdownTimeout))
}

// restoreRelease reactivates the newest cached release. The controller logs
// the restored version.
func (a *agent) restoreRelease(ctx context.Context) {
	if _, err := a.controller.Restore(ctx); err != nil {
		logging.Warn().Err(err).Msg("Restoring cached release failed; caches rebuild on next update check")
	}
}
