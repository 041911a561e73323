// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package main is the entry point of the SOP offline sync agent.

The agent runs next to the SOP web app on a field device. It keeps a local
copy of schedules, tasks and templates, queues edits made while the device
is offline and replays them to the remote data service once connectivity
returns. It also fronts the web app itself: pages are served from versioned
response caches, new releases are precached in the background and the page
is told when an update is ready.

# Commands

	sop-agent serve        run the agent (default)
	sop-agent pending      list queued changes
	sop-agent purge --yes  delete caches, local data and queued changes
	sop-agent dev-remote   run an in-memory remote data service
	sop-agent version      print build information

# Application Architecture

serve builds every component and hands them to a Suture v4 tree:

	RootSupervisor ("sop-agent")
	├── DataSupervisor ("data-layer")
	│   ├── store-gc
	│   └── webcache-gc
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   ├── event-bridge
	│   ├── page-commands
	│   ├── sync-driver
	│   ├── connectivity-prober (probe_interval > 0)
	│   └── update-notifier (update.interval > 0)
	└── APISupervisor ("api-layer")
	    └── http-server

Component initialization order:

 1. Configuration: Koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog with optional lumberjack rotation
 3. Local store and pending-change queue (Badger)
 4. Remote client with circuit breaker and connectivity monitor
 5. Sync driver
 6. Cache controller (restores the newest installed release) and update notifier
 7. Message bus, page command dispatcher, WebSocket hub and bridge
 8. HTTP server: Chi router with CORS and rate limiting

# Configuration

See package config for every setting. The minimum is:

	APP_ORIGIN=https://sop.example.com
	REMOTE_URL=https://api.sop.example.com

# Graceful Shutdown

On SIGINT or SIGTERM the root context is canceled, the tree stops every
service within supervisor.shutdown_timeout, services that failed to stop
are reported and the Badger databases are closed.
*/
package main
