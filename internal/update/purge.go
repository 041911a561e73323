// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

// ErrConfirmationRequired is returned by Purge without confirmation.
var ErrConfirmationRequired = errors.New("purge requires confirmation")

const purgeWarning = "Purging deletes every cached page and all local data. Changes not yet synced to the server will be lost."

// PurgePreview is shown before a purge is confirmed.
type PurgePreview struct {
	PendingChanges int      `json:"pending_changes"`
	Caches         []string `json:"caches"`
	Warning        string   `json:"warning"`
}

// PurgeReport describes a completed purge.
type PurgeReport struct {
	CachesDeleted    []string  `json:"caches_deleted"`
	DiscardedChanges int       `json:"discarded_changes"`
	At               time.Time `json:"at"`
}

// Purger wipes caches, workers and the local store.
type Purger struct {
	ctrl  *webcache.Controller
	queue *queue.Queue
	store *store.Store
}

// NewPurger creates a purger.
func NewPurger(ctrl *webcache.Controller, q *queue.Queue, s *store.Store) *Purger {
	return &Purger{ctrl: ctrl, queue: q, store: s}
}

// Preview reports what a purge would discard.
func (p *Purger) Preview(ctx context.Context) (*PurgePreview, error) {
	pending, err := p.queue.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending changes: %w", err)
	}
	caches, err := p.ctrl.CacheNames()
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	if caches == nil {
		caches = []string{}
	}
	return &PurgePreview{PendingChanges: pending, Caches: caches, Warning: purgeWarning}, nil
}

// Purge deletes every cache, unregisters all workers and clears the local
// store including the pending-change queue.
func (p *Purger) Purge(ctx context.Context, confirm bool) (*PurgeReport, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}
	log := logging.Ctx(ctx)

	pending, err := p.queue.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Counting pending changes before purge failed")
	}

	report := &PurgeReport{DiscardedChanges: pending}
	report.CachesDeleted, err = p.ctrl.DeleteAllCaches()
	if err != nil {
		purgesTotal.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("delete caches: %w", err)
	}
	p.ctrl.Unregister(ctx)

	if err := p.queue.ClearAll(ctx); err != nil {
		purgesTotal.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("clear pending changes: %w", err)
	}
	if err := p.store.ClearAll(ctx); err != nil {
		purgesTotal.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("clear local store: %w", err)
	}
	report.At = time.Now().UTC()
	purgesTotal.WithLabelValues("success").Inc()

	ev := log.Warn()
	if pending == 0 {
		ev = log.Info()
	}
	ev.Strs("caches", report.CachesDeleted).Int("discarded_changes", pending).Msg("Purged caches and local data")
	return report, nil
}
