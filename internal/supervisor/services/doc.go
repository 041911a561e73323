// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package services adapts agent components to suture.Service.
//
// HTTPServerService wraps *http.Server with graceful shutdown,
// WebSocketHubService wraps the page hub's RunWithContext loop, and
// ComponentService wraps any Start/Stop component.
package services
