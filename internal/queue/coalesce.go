// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package queue

import (
	"context"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

// CoalesceStats summarises one coalescing pass.
type CoalesceStats struct {
	// Entities is the number of entities that had more than one entry.
	Entities int

	// Removed is the number of entries deleted.
	Removed int

	// Dropped is the number of entities whose changes cancelled out
	// (created and deleted while offline).
	Dropped int
}

// Coalesce folds every entity's entries into a single final-state entry.
//
// The folded entry keeps the timestamp of the entity's first entry so
// cross-entity order is not disturbed, and carries the data and version of
// the last one. Its id is rebuilt from the folded change type, so it moves
// to a new key when the type changes. The folded entry is written before
// the superseded ones are removed; an interrupted pass leaves entries that
// replay as stale no-ops.
func (q *Queue) Coalesce(ctx context.Context) (CoalesceStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.coalesce(ctx)
}

func (q *Queue) coalesce(ctx context.Context) (CoalesceStats, error) {
	var stats CoalesceStats

	all, err := q.ListAll(ctx)
	if err != nil {
		return stats, err
	}

	groups := make(map[string][]*models.PendingChange)
	var order []string
	for _, pc := range all {
		key := pc.EntityKey()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], pc)
	}

	for _, key := range order {
		entries := groups[key]
		if len(entries) < 2 {
			continue
		}
		stats.Entities++

		folded := fold(entries)
		if folded != nil {
			if err := q.put(ctx, folded); err != nil {
				return stats, err
			}
		} else {
			stats.Dropped++
		}

		for i, pc := range entries {
			if folded != nil && pc.ID == folded.ID {
				continue
			}
			if err := q.store.Delete(ctx, models.CollectionPendingChanges, pc.ID); err != nil {
				return stats, err
			}
			// The first entry lives on under the folded id.
			if i > 0 || folded == nil {
				stats.Removed++
			}
		}
	}

	if stats.Entities > 0 {
		coalescedTotal.Add(float64(stats.Removed))
		q.refreshDepth(ctx)
		logging.Info().
			Int("entities", stats.Entities).
			Int("removed", stats.Removed).
			Int("dropped", stats.Dropped).
			Msg("Pending changes coalesced")
	}
	return stats, nil
}

// fold reduces one entity's entries (in timestamp order) to a single
// change, or nil when they cancel out.
func fold(entries []*models.PendingChange) *models.PendingChange {
	first := entries[0]
	kind := first.ChangeType
	dropped := false

	for _, next := range entries[1:] {
		if dropped {
			// The entity never reached the remote; start over from here.
			kind = next.ChangeType
			dropped = kind == models.ChangeDelete
			continue
		}
		switch next.ChangeType {
		case models.ChangeDelete:
			if kind == models.ChangeCreate {
				dropped = true
			} else {
				kind = models.ChangeDelete
			}
		default:
			if kind == models.ChangeDelete {
				kind = models.ChangeUpdate
			}
		}
	}
	if dropped {
		return nil
	}

	last := entries[len(entries)-1]
	out := *first
	out.ID = models.PendingChangeID(first.StoreName, kind, first.EntityID, first.Timestamp)
	out.ChangeType = kind
	out.Data = last.Data
	out.Version = last.Version
	out.Attempts = 0
	out.LastError = ""
	return &out
}
