// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/storage"
)

// Open opens the store and brings it to schema.Version.
//
// Opening is idempotent: reopening with the same schema changes nothing.
// A higher version registers new collections and builds indexes that are
// new or changed; a lower version than the one on disk is refused.
func Open(cfg Config, schema Schema) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	db, err := storage.Open(cfg.Storage, "store")
	if err != nil {
		return nil, &StoreError{Op: "open", Unavailable: true, Err: err}
	}

	s := &Store{db: db, cfg: cfg, schema: schema}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, wrapErr("open", "", "", err)
	}
	return s, nil
}

// OpenInMemory opens a throwaway store with the default schema.
func OpenInMemory() (*Store, error) {
	cfg := DefaultConfig("")
	cfg.Storage = storage.InMemoryConfig()
	return Open(cfg, DefaultSchema())
}

func (s *Store) migrate() error {
	stored, err := s.loadSchema()
	if err != nil {
		return err
	}

	if stored == nil {
		if err := s.saveSchema(); err != nil {
			return err
		}
		logging.Info().
			Int("version", s.schema.Version).
			Int("collections", len(s.schema.Collections)).
			Msg("Store initialised")
		return nil
	}

	switch {
	case stored.Version > s.schema.Version:
		return fmt.Errorf("%w: on disk %d, requested %d", ErrVersionDowngrade, stored.Version, s.schema.Version)
	case stored.Version == s.schema.Version:
		if !equalSchema(*stored, s.schema) {
			return fmt.Errorf("%w: version %d", ErrSchemaMismatch, stored.Version)
		}
		return nil
	}

	rebuilt := 0
	for _, cs := range s.schema.Collections {
		old, existed := stored.Collection(cs.Name)
		for _, ix := range cs.Indexes {
			if prev, ok := old.Index(ix.Name); existed && ok && prev == ix {
				continue
			}
			if err := s.rebuildIndex(cs.Name, ix); err != nil {
				return fmt.Errorf("rebuild index %s.%s: %w", cs.Name, ix.Name, err)
			}
			rebuilt++
		}
		for _, prev := range old.Indexes {
			if _, ok := cs.Index(prev.Name); !ok {
				if err := s.db.DropPrefix(indexPrefix(cs.Name, prev.Name)); err != nil {
					return fmt.Errorf("drop index %s.%s: %w", cs.Name, prev.Name, err)
				}
			}
		}
	}

	if err := s.saveSchema(); err != nil {
		return err
	}
	logging.Info().
		Int("from_version", stored.Version).
		Int("to_version", s.schema.Version).
		Int("indexes_rebuilt", rebuilt).
		Msg("Store schema upgraded")
	return nil
}

func (s *Store) loadSchema() (*Schema, error) {
	var stored *Schema
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaSchemaKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stored = &Schema{}
			return json.Unmarshal(val, stored)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return stored, nil
}

func (s *Store) saveSchema() error {
	data, err := json.Marshal(s.schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaSchemaKey, data)
	})
}

// rebuildIndex drops every entry of one index and re-derives it from the
// stored records. Records lacking the field are skipped with a warning;
// a unique violation aborts the upgrade.
func (s *Store) rebuildIndex(collection string, ix IndexSchema) error {
	if err := s.db.DropPrefix(indexPrefix(collection, ix.Name)); err != nil {
		return err
	}

	type entry struct {
		id     string
		values []string
	}
	var entries []entry
	skipped := 0

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: recordPrefix(collection)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec models.Record
			err := it.Item().Value(func(val []byte) error {
				var derr error
				rec, derr = models.DecodeRecord(val)
				return derr
			})
			if err != nil {
				return err
			}
			values, err := indexValues(ix, rec)
			if err != nil {
				skipped++
				continue
			}
			entries = append(entries, entry{id: rec.ID(), values: values})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if ix.Unique {
		owner := make(map[string]string)
		for _, e := range entries {
			for _, v := range e.values {
				if prev, ok := owner[v]; ok && prev != e.id {
					return ErrUniqueViolation
				}
				owner[v] = e.id
			}
		}
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		for _, v := range e.values {
			if err := wb.Set(indexKey(collection, ix.Name, v, e.id), nil); err != nil {
				return err
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	if skipped > 0 {
		logging.Warn().
			Str("collection", collection).
			Str("index", ix.Name).
			Int("skipped", skipped).
			Msg("Records without indexed field left out of rebuilt index")
	}
	return nil
}

func equalSchema(a, b Schema) bool {
	if a.Version != b.Version || len(a.Collections) != len(b.Collections) {
		return false
	}
	for _, ca := range a.Collections {
		cb, ok := b.Collection(ca.Name)
		if !ok || len(ca.Indexes) != len(cb.Indexes) {
			return false
		}
		for _, ix := range ca.Indexes {
			other, ok := cb.Index(ix.Name)
			if !ok || other != ix {
				return false
			}
		}
	}
	return true
}
