// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package config loads the agent configuration.

Sources are layered with koanf v2: built-in defaults, then an optional
YAML file, then environment variables. Only variables listed in the
mapping table are read:

	APP_ORIGIN=https://sop.example.com
	REMOTE_URL=https://api.example.com/data
	STORE_PATH=/data/store
	SYNC_DRAIN_POLICY=skip-entity
	LOG_LEVEL=debug

The same settings in YAML:

	app:
	  origin: https://sop.example.com
	remote:
	  url: https://api.example.com/data
	sync:
	  drain_policy: skip-entity

Comma-separated values are accepted for list settings (CORS_ORIGINS,
CACHE_BYPASS_PREFIXES). update.version_url defaults to
{app.origin}/version.json.

WatchLogLevel re-reads the config file on change and applies a new
logging.level without a restart.
*/
package config
