// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package supervisor runs the agent's long-lived components under a suture v4
supervisor tree.

	RootSupervisor ("sop-agent")
	├── DataSupervisor ("data-layer")
	│   ├── store-gc
	│   └── webcache-gc
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   ├── event-bridge
	│   ├── page-commands
	│   ├── sync-driver
	│   ├── connectivity-prober (when probing is enabled)
	│   └── update-notifier (when polling is enabled)
	└── APISupervisor ("api-layer")
	    └── http-server

Crashed services are restarted with suture's backoff. Supervisor events are
logged through sutureslog into the zerolog-backed slog handler.

The wrappers in package services adapt Start/Stop components, the
websocket hub and the HTTP server to suture.Service.
*/
package supervisor
