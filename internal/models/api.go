// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package models

import "time"

// APIResponse is the envelope returned by every /api/v1 endpoint.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"...","online":true,"pending":3}}
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata is attached to every response so pages can render the offline
// banner and the "N changes pending sync" indicator from any call.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Online    bool      `json:"online"`
	Pending   int       `json:"pending"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SyncStatus is the payload of SYNC_STATUS messages and GET /api/v1/status.
type SyncStatus struct {
	Online         bool      `json:"online"`
	Pending        int       `json:"pending"`
	LastDrain      time.Time `json:"last_drain,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	RetryAttempts  int       `json:"retry_attempts"`
	ActiveVersion  string    `json:"active_version,omitempty"`
	WaitingVersion string    `json:"waiting_version,omitempty"`
	CacheName      string    `json:"cache_name,omitempty"`
}
