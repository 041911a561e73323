// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

type memEntry struct {
	rec     models.Record
	version int64
	deleted bool
}

// Memory is an in-process Service with optimistic concurrency on versions.
// Deleted records keep a tombstone carrying the delete's version so an
// older replayed write cannot resurrect them.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]*memEntry
	writes  int
}

// NewMemory creates an empty service.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string]*memEntry)}
}

// Insert implements Service. Inserting over an existing record with a newer
// version is accepted as an overwrite.
func (m *Memory) Insert(ctx context.Context, collection string, rec models.Record) error {
	return m.write(ctx, collection, rec)
}

// Upsert implements Service.
func (m *Memory) Upsert(ctx context.Context, collection string, rec models.Record) error {
	return m.write(ctx, collection, rec)
}

func (m *Memory) write(ctx context.Context, collection string, rec models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, version := rec.ID(), rec.Version()
	if id == "" {
		return fmt.Errorf("%w: %v", ErrRejected, models.ErrMissingID)
	}
	if version <= 0 {
		return fmt.Errorf("%w: record %s has no version", ErrRejected, id)
	}
	stored, err := rec.Clone()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	if cur, ok := coll[id]; ok {
		if cur.version == version && !cur.deleted {
			// Redelivery of a write already held.
			return nil
		}
		if cur.version >= version {
			return fmt.Errorf("%w: %s/%s holds %d, got %d", ErrStaleVersion, collection, id, cur.version, version)
		}
	}
	coll[id] = &memEntry{rec: stored, version: version}
	m.writes++
	return nil
}

// Remove implements Service. Removing an unknown id records a tombstone.
func (m *Memory) Remove(ctx context.Context, collection, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if version <= 0 {
		return fmt.Errorf("%w: delete of %s has no version", ErrRejected, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	if cur, ok := coll[id]; ok {
		if cur.version == version && cur.deleted {
			return nil
		}
		if cur.version >= version {
			return fmt.Errorf("%w: %s/%s holds %d, got %d", ErrStaleVersion, collection, id, cur.version, version)
		}
	}
	coll[id] = &memEntry{version: version, deleted: true}
	m.writes++
	return nil
}

// Get implements Service.
func (m *Memory) Get(ctx context.Context, collection, id string) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cur, ok := m.entries[collection][id]
	if !ok || cur.deleted {
		return nil, ErrNotFound
	}
	return cur.rec.Clone()
}

// List returns the live records of a collection ordered by id.
func (m *Memory) List(collection string) []models.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entries[collection]))
	for id, e := range m.entries[collection] {
		if !e.deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		if r, err := m.entries[collection][id].rec.Clone(); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Writes returns the number of accepted writes, tombstones included.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) collection(name string) map[string]*memEntry {
	coll, ok := m.entries[name]
	if !ok {
		coll = make(map[string]*memEntry)
		m.entries[name] = coll
	}
	return coll
}

var _ Service = (*Memory)(nil)
