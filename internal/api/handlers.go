// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
	syncpkg "github.com/conquerdesigngroup/sop-app-sub000/internal/sync"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
	ws "github.com/conquerdesigngroup/sop-app-sub000/internal/websocket"
)

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_records.go: collection CRUD through the sync driver
//   - handlers_sync.go: status, pending changes, drain and connectivity
//   - handlers_update.go: update check, skip-waiting and purge
//   - handlers_health.go: liveness and readiness
//   - handlers_websocket.go: the page event socket
type Handler struct {
	store     *store.Store
	queue     *queue.Queue
	driver    *syncpkg.Driver
	cache     *webcache.Controller
	notifier  *update.Notifier
	wsHub     *ws.Hub
	config    HandlerConfig
	startTime time.Time
}

// Dependencies are the components the handlers call. Notifier and Hub may
// be nil; their endpoints then answer 503.
type Dependencies struct {
	Store    *store.Store
	Queue    *queue.Queue
	Driver   *syncpkg.Driver
	Cache    *webcache.Controller
	Notifier *update.Notifier
	Hub      *ws.Hub
}

// HandlerConfig holds request limits and origin policy.
type HandlerConfig struct {
	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64

	// AllowedOrigins may open the page event socket. "*" allows any.
	AllowedOrigins []string
}

// DefaultHandlerConfig returns 1 MiB bodies and no extra origins.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{MaxBodyBytes: 1 << 20}
}

// NewHandler creates the API handler.
func NewHandler(deps Dependencies, cfg HandlerConfig) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultHandlerConfig().MaxBodyBytes
	}
	return &Handler{
		store:     deps.Store,
		queue:     deps.Queue,
		driver:    deps.Driver,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		wsHub:     deps.Hub,
		config:    cfg,
		startTime: time.Now(),
	}
}
