// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package remote talks to the hosted data service that is the system of record
for SOPs, tasks, templates and users.

Writes carry the record's sync version. The service accepts a write only when
its version is newer than the one it already holds. Redelivering the version it
already holds succeeds without changing anything, so replaying the same pending
change twice is a no-op and concurrent devices resolve by the most recent write.

Implementations:
  - Client: REST over HTTP behind a circuit breaker
  - Memory: in-process reference service (tests, devremote command)

NewHandler exposes any Memory over the same REST surface Client speaks.
*/
package remote

import (
	"context"
	"errors"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

var (
	// ErrStaleVersion means the service already holds a newer version than
	// the one written, or a different write at the same version.
	ErrStaleVersion = errors.New("remote: stale version")

	// ErrUnavailable covers network failures, 5xx responses and an open
	// circuit breaker. Callers treat it as "offline".
	ErrUnavailable = errors.New("remote: service unavailable")

	// ErrRejected is a permanent client error (4xx other than 404/409).
	ErrRejected = errors.New("remote: request rejected")

	// ErrNotFound is returned by Get for a missing or deleted record.
	ErrNotFound = errors.New("remote: record not found")
)

// Service is the remote data service.
type Service interface {
	// Insert creates rec. The record's version field must be set.
	Insert(ctx context.Context, collection string, rec models.Record) error

	// Upsert replaces or creates rec.
	Upsert(ctx context.Context, collection string, rec models.Record) error

	// Remove deletes id, recording version on the tombstone.
	Remove(ctx context.Context, collection, id string, version int64) error

	// Get returns the current record.
	Get(ctx context.Context, collection, id string) (models.Record, error)
}

// IsUnavailable reports whether err means the service could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
