// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package queue is the pending-change log: mutations recorded while the
// device is offline, replayed to the remote data service in timestamp
// order once connectivity returns.
//
// Entries live in the pending_changes collection of the local store, so an
// enqueue commits in one store transaction. The timestamp index gives FIFO
// order; the store_name index serves per-collection listings.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
)

var (
	// ErrQueueFull is returned by Enqueue when MaxEntries is reached and
	// coalescing could not free space.
	ErrQueueFull = errors.New("pending change queue is full")

	// ErrInvalidChange is returned for an unknown change type or a record
	// without id.
	ErrInvalidChange = errors.New("invalid pending change")

	// ErrEntryNotFound is returned by MarkFailed for a missing id.
	ErrEntryNotFound = errors.New("pending change not found")
)

// Config configures the queue.
type Config struct {
	// MaxEntries caps the queue. 0 means unbounded.
	MaxEntries int
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{MaxEntries: 10000}
}

// Queue is the pending-change log.
type Queue struct {
	store *store.Store
	cfg   Config
	now   func() time.Time

	// mu serializes Enqueue so timestamps are strictly increasing and the
	// cap check cannot race.
	mu       sync.Mutex
	lastTS   int64
	loadedTS bool
}

// New creates a queue on top of s.
func New(s *store.Store, cfg Config) *Queue {
	return &Queue{store: s, cfg: cfg, now: time.Now}
}

// Enqueue appends a change for rec with a fresh timestamp.
func (q *Queue) Enqueue(ctx context.Context, collection string, ct models.ChangeType, rec models.Record) (*models.PendingChange, error) {
	if !ct.Valid() {
		return nil, fmt.Errorf("%w: change type %q", ErrInvalidChange, ct)
	}
	entityID := rec.ID()
	if entityID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, models.ErrMissingID)
	}
	if collection == models.CollectionPendingChanges {
		return nil, fmt.Errorf("%w: cannot queue changes to the queue itself", ErrInvalidChange)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ensureCapacity(ctx); err != nil {
		return nil, err
	}
	ts, err := q.nextTimestamp(ctx)
	if err != nil {
		return nil, err
	}

	pc := &models.PendingChange{
		ID:         models.PendingChangeID(collection, ct, entityID, ts),
		StoreName:  collection,
		ChangeType: ct,
		EntityID:   entityID,
		Data:       rec,
		Timestamp:  ts,
		Version:    rec.Version(),
	}
	if err := q.put(ctx, pc); err != nil {
		return nil, err
	}

	enqueuedTotal.WithLabelValues(collection, string(ct)).Inc()
	q.refreshDepth(ctx)
	logging.Debug().
		Str("id", pc.ID).
		Str("collection", collection).
		Str("change_type", string(ct)).
		Int64("version", pc.Version).
		Msg("Change queued")
	return pc, nil
}

// ListAll returns every entry in ascending timestamp order.
func (q *Queue) ListAll(ctx context.Context) ([]*models.PendingChange, error) {
	recs, err := q.store.ScanIndex(ctx, models.CollectionPendingChanges, "timestamp")
	if err != nil {
		return nil, err
	}
	return decodeAll(recs)
}

// ListByCollection returns the entries for one collection in timestamp order.
func (q *Queue) ListByCollection(ctx context.Context, collection string) ([]*models.PendingChange, error) {
	recs, err := q.store.GetByIndex(ctx, models.CollectionPendingChanges, "store_name", collection)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll(recs)
	if err != nil {
		return nil, err
	}
	sortByTimestamp(out)
	return out, nil
}

// Count returns the number of queued entries.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.store.Count(ctx, models.CollectionPendingChanges)
}

// Remove deletes one entry. Removing a missing id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.Delete(ctx, models.CollectionPendingChanges, id); err != nil {
		return err
	}
	removedTotal.Inc()
	q.refreshDepth(ctx)
	return nil
}

// RemoveReplayed deletes the entry pc was read from, unless the stored
// entry no longer carries pc's version because a coalescing pass folded
// newer changes into it. It reports whether the entry was deleted.
func (q *Queue) RemoveReplayed(ctx context.Context, pc *models.PendingChange) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.store.Get(ctx, models.CollectionPendingChanges, pc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var cur models.PendingChange
	if err := models.FromRecord(rec, &cur); err != nil {
		return false, err
	}
	if cur.Version != pc.Version {
		return false, nil
	}
	if err := q.store.Delete(ctx, models.CollectionPendingChanges, pc.ID); err != nil {
		return false, err
	}
	removedTotal.Inc()
	q.refreshDepth(ctx)
	return true, nil
}

// ClearAll deletes every entry. Only used for destructive resets.
func (q *Queue) ClearAll(ctx context.Context) error {
	if err := q.store.Clear(ctx, models.CollectionPendingChanges); err != nil {
		return err
	}
	depthGauge.Set(0)
	logging.Warn().Msg("Pending change queue cleared")
	return nil
}

// MarkFailed records a failed replay attempt on the entry.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	rec, err := q.store.Get(ctx, models.CollectionPendingChanges, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrEntryNotFound
	}
	if err != nil {
		return err
	}
	var pc models.PendingChange
	if err := models.FromRecord(rec, &pc); err != nil {
		return err
	}
	pc.Attempts++
	if cause != nil {
		pc.LastError = cause.Error()
	}
	return q.put(ctx, &pc)
}

func (q *Queue) put(ctx context.Context, pc *models.PendingChange) error {
	rec, err := models.ToRecord(pc)
	if err != nil {
		return err
	}
	return q.store.Put(ctx, models.CollectionPendingChanges, rec)
}

// ensureCapacity coalesces when the cap is reached. Caller holds q.mu.
func (q *Queue) ensureCapacity(ctx context.Context) error {
	if q.cfg.MaxEntries <= 0 {
		return nil
	}
	n, err := q.Count(ctx)
	if err != nil {
		return err
	}
	if n < q.cfg.MaxEntries {
		return nil
	}
	if _, err := q.coalesce(ctx); err != nil {
		return err
	}
	if n, err = q.Count(ctx); err != nil {
		return err
	}
	if n >= q.cfg.MaxEntries {
		fullTotal.Inc()
		return fmt.Errorf("%w: %d entries", ErrQueueFull, n)
	}
	return nil
}

// nextTimestamp returns a unix-nano timestamp strictly greater than any
// previously issued or already stored. Caller holds q.mu.
func (q *Queue) nextTimestamp(ctx context.Context) (int64, error) {
	if !q.loadedTS {
		all, err := q.ListAll(ctx)
		if err != nil {
			return 0, err
		}
		if len(all) > 0 {
			q.lastTS = all[len(all)-1].Timestamp
		}
		q.loadedTS = true
	}
	ts := q.now().UnixNano()
	if ts <= q.lastTS {
		ts = q.lastTS + 1
	}
	q.lastTS = ts
	return ts, nil
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if n, err := q.Count(ctx); err == nil {
		depthGauge.Set(float64(n))
	}
}

func decodeAll(recs []models.Record) ([]*models.PendingChange, error) {
	out := make([]*models.PendingChange, 0, len(recs))
	for _, r := range recs {
		var pc models.PendingChange
		if err := models.FromRecord(r, &pc); err != nil {
			return nil, fmt.Errorf("decode pending change %s: %w", r.ID(), err)
		}
		out = append(out, &pc)
	}
	return out, nil
}

func sortByTimestamp(pcs []*models.PendingChange) {
	sort.SliceStable(pcs, func(i, j int) bool {
		return pcs[i].Timestamp < pcs[j].Timestamp
	})
}
