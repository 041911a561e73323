// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package models

import "fmt"

// ChangeType is the kind of mutation a PendingChange replays.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Valid reports whether c is one of the known change types.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// PendingChange is a mutation recorded while offline, waiting to be
// replayed against the remote data service.
type PendingChange struct {
	// ID embeds collection, change type, entity and timestamp, so at most
	// one change exists per (entity, timestamp).
	ID         string     `json:"id"`
	StoreName  string     `json:"store_name"`
	ChangeType ChangeType `json:"change_type"`
	EntityID   string     `json:"entity_id"`
	Data       Record     `json:"data"`

	// Timestamp is unix nanoseconds and strictly increasing within a queue.
	Timestamp int64 `json:"timestamp"`

	// Version is the entity version this change carries to the remote.
	Version int64 `json:"version"`

	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// PendingChangeID builds the queue key for a change.
func PendingChangeID(storeName string, ct ChangeType, entityID string, ts int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", storeName, ct, entityID, ts)
}

// EntityKey identifies the entity a change applies to across collections.
func (p *PendingChange) EntityKey() string {
	return p.StoreName + "/" + p.EntityID
}
