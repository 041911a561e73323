// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/api"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/config"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/connectivity"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
	syncpkg "github.com/conquerdesigngroup/sop-app-sub000/internal/sync"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
	ws "github.com/conquerdesigngroup/sop-app-sub000/internal/websocket"
)

// dataLayer is the persistent state shared by every command.
type dataLayer struct {
	store *store.Store
	queue *queue.Queue
	cache *webcache.Storage
}

// openData opens the local store and the response cache storage.
func openData(cfg *config.Config) (*dataLayer, error) {
	s, err := store.Open(storeConfig(cfg.Store), store.DefaultSchema())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	cs, err := webcache.OpenStorage(cacheStorageConfig(cfg.Cache))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open cache storage: %w", err)
	}
	return &dataLayer{
		store: s,
		queue: queue.New(s, queueConfig(cfg.Queue)),
		cache: cs,
	}, nil
}

func (d *dataLayer) close() error {
	return errors.Join(d.cache.Close(), d.store.Close())
}

// agent holds every long-lived component of serve.
type agent struct {
	cfg *config.Config
	*dataLayer

	bus        *messaging.Bus
	remote     *remote.Client
	monitor    *connectivity.Monitor
	driver     *syncpkg.Driver
	controller *webcache.Controller
	notifier   *update.Notifier
	dispatcher *messaging.Dispatcher
	hub        *ws.Hub
	bridge     *ws.Bridge
	server     *http.Server
}

// newAgent builds the component graph. Nothing is started.
func newAgent(cfg *config.Config) (a *agent, err error) {
	data, err := openData(cfg)
	if err != nil {
		return nil, err
	}
	a = &agent{cfg: cfg, dataLayer: data, bus: messaging.NewBus(messaging.DefaultConfig())}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.remote, err = remote.NewClient(remoteConfig(cfg.Remote))
	if err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}
	a.monitor = connectivity.NewMonitor(cfg.Connectivity.StartOnline)

	a.driver, err = syncpkg.NewDriver(a.store, a.queue, a.remote, a.monitor, a.bus, syncConfig(cfg.Sync))
	if err != nil {
		return nil, fmt.Errorf("create sync driver: %w", err)
	}

	a.controller, err = webcache.NewController(webcacheConfig(cfg.App, cfg.Cache), a.cache, a.bus)
	if err != nil {
		return nil, fmt.Errorf("create cache controller: %w", err)
	}
	a.notifier = update.NewNotifier(updateConfig(cfg.Update), a.controller, update.NewPurger(a.controller, a.queue, a.store), a.bus)

	a.dispatcher = messaging.NewDispatcher(a.bus)
	a.hub = ws.NewHub(a.bus)
	a.bridge = ws.NewBridge(a.hub, a.bus)

	handler := api.NewHandler(api.Dependencies{
		Store:    a.store,
		Queue:    a.queue,
		Driver:   a.driver,
		Cache:    a.controller,
		Notifier: a.notifier,
		Hub:      a.hub,
	}, handlerConfig(cfg))
	router := api.NewRouter(handler, api.NewChiMiddleware(middlewareConfig(cfg.Security)), a.controller)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logging.NewSlogLogger("http-server").Handler(), slog.LevelWarn),
	}
	return a, nil
}

// close releases the bus and both databases. Services must be stopped.
func (a *agent) close() error {
	return errors.Join(a.bus.Close(), a.dataLayer.close())
}
