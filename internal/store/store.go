// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package store is the on-device record store: typed collections keyed by
// record id with secondary indexes, persisted in BadgerDB.
//
// Every operation runs in exactly one Badger transaction, so it either
// fully commits or has no visible effect. A record and its index entries
// are always written together, which keeps GetByIndex consistent with Get.
//
// Two concurrent Puts to the same id resolve as last commit wins; callers
// that need read-modify-write must serialize themselves per entity.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/storage"
)

// Config configures the store.
type Config struct {
	Storage storage.Config

	// ConflictRetries is how often a transaction is retried after
	// badger.ErrConflict before the error is returned.
	ConflictRetries int
}

// DefaultConfig returns defaults for a store under path.
func DefaultConfig(path string) Config {
	return Config{
		Storage:         storage.DefaultConfig(path),
		ConflictRetries: 5,
	}
}

// Store is the local record store.
type Store struct {
	db     *badger.DB
	cfg    Config
	schema Schema

	mu     sync.RWMutex
	closed bool
}

// Put creates or replaces rec in collection. Putting an identical record
// twice leaves the store unchanged.
func (s *Store) Put(ctx context.Context, collection string, rec models.Record) error {
	start := time.Now()
	err := s.put(ctx, collection, rec)
	observe("put", start, err)
	return wrapErr("put", collection, rec.ID(), err)
}

func (s *Store) put(ctx context.Context, collection string, rec models.Record) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	cs, err := s.collection(collection)
	if err != nil {
		return err
	}
	id := rec.ID()
	if id == "" || strings.ContainsRune(id, sep) {
		return ErrInvalidRecord
	}

	newEntries, err := entriesFor(cs, rec)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		old, err := getRecord(txn, collection, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if old != nil {
			oldEntries := lenientEntriesFor(cs, old)
			for ixName, values := range oldEntries {
				for _, enc := range values {
					if contains(newEntries[ixName], enc) {
						continue
					}
					if err := txn.Delete(indexKey(collection, ixName, enc, id)); err != nil {
						return err
					}
				}
			}
		}

		for _, ix := range cs.Indexes {
			if !ix.Unique {
				continue
			}
			for _, enc := range newEntries[ix.Name] {
				if err := checkUnique(txn, collection, ix.Name, enc, id); err != nil {
					return err
				}
			}
		}

		if err := txn.Set(recordKey(collection, id), data); err != nil {
			return err
		}
		for ixName, values := range newEntries {
			for _, enc := range values {
				if err := txn.Set(indexKey(collection, ixName, enc, id), nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Get returns the record with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (models.Record, error) {
	start := time.Now()
	var rec models.Record
	err := s.view(ctx, collection, func(txn *badger.Txn, _ CollectionSchema) error {
		var err error
		rec, err = getRecord(txn, collection, id)
		return err
	})
	observe("get", start, err)
	return rec, wrapErr("get", collection, id, err)
}

// GetAll returns every record of collection ordered by id.
func (s *Store) GetAll(ctx context.Context, collection string) ([]models.Record, error) {
	start := time.Now()
	var out []models.Record
	err := s.view(ctx, collection, func(txn *badger.Txn, _ CollectionSchema) error {
		prefix := recordPrefix(collection)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.Record
			err := it.Item().Value(func(val []byte) error {
				var derr error
				rec, derr = models.DecodeRecord(val)
				return derr
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	observe("get_all", start, err)
	return out, wrapErr("get_all", collection, "", err)
}

// GetByIndex returns the records whose indexed field equals value. For
// multi-entry indexes a record matches when any element equals value.
func (s *Store) GetByIndex(ctx context.Context, collection, index string, value any) ([]models.Record, error) {
	start := time.Now()
	var out []models.Record
	err := s.view(ctx, collection, func(txn *badger.Txn, cs CollectionSchema) error {
		if _, ok := cs.Index(index); !ok {
			return ErrUnknownIndex
		}
		enc, err := encodeIndexValue(value)
		if err != nil {
			return errors.Join(ErrInvalidIndexValue, err)
		}
		prefix := indexValuePrefix(collection, index, enc)
		ids, err := keysUnder(ctx, txn, prefix, func(key []byte) string {
			return string(key[len(prefix):])
		})
		if err != nil {
			return err
		}
		out, err = getRecords(txn, collection, ids)
		return err
	})
	observe("get_by_index", start, err)
	return out, wrapErr("get_by_index", collection, "", err)
}

// ScanIndex returns every record of collection in ascending order of the
// given index. Records appear once per index entry, so multi-entry indexes
// may yield a record more than once.
func (s *Store) ScanIndex(ctx context.Context, collection, index string) ([]models.Record, error) {
	start := time.Now()
	var out []models.Record
	err := s.view(ctx, collection, func(txn *badger.Txn, cs CollectionSchema) error {
		if _, ok := cs.Index(index); !ok {
			return ErrUnknownIndex
		}
		prefix := indexPrefix(collection, index)
		ids, err := keysUnder(ctx, txn, prefix, func(key []byte) string {
			return idFromIndexKey(key, prefix)
		})
		if err != nil {
			return err
		}
		out, err = getRecords(txn, collection, ids)
		return err
	})
	observe("scan_index", start, err)
	return out, wrapErr("scan_index", collection, "", err)
}

// Count returns the number of records in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.view(ctx, collection, func(txn *badger.Txn, _ CollectionSchema) error {
		ids, err := keysUnder(ctx, txn, recordPrefix(collection), func([]byte) string { return "" })
		n = len(ids)
		return err
	})
	return n, wrapErr("count", collection, "", err)
}

// Delete removes the record with id and its index entries. Deleting a
// missing id is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.delete(ctx, collection, id)
	observe("delete", start, err)
	return wrapErr("delete", collection, id, err)
}

func (s *Store) delete(ctx context.Context, collection, id string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	cs, err := s.collection(collection)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		old, err := getRecord(txn, collection, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for ixName, values := range lenientEntriesFor(cs, old) {
			for _, enc := range values {
				if err := txn.Delete(indexKey(collection, ixName, enc, id)); err != nil {
					return err
				}
			}
		}
		return txn.Delete(recordKey(collection, id))
	})
}

// Clear removes every record of collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	start := time.Now()
	err := s.clear(ctx, collection)
	observe("clear", start, err)
	return wrapErr("clear", collection, "", err)
}

func (s *Store) clear(ctx context.Context, collection string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if _, err := s.collection(collection); err != nil {
		return err
	}
	prefixes := [][]byte{recordPrefix(collection), collectionIndexPrefix(collection)}
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			keys, err := rawKeysUnder(ctx, txn, prefix)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		// Too large for one transaction; DropPrefix removes both ranges
		// while blocking writers.
		return s.db.DropPrefix(prefixes...)
	}
	return err
}

// ClearAll removes every record of every collection. The schema is kept.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return wrapErr("clear_all", "", "", err)
	}
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return wrapErr("clear_all", "", "", err)
	}
	start := time.Now()
	err := s.db.DropPrefix([]byte("r\x00"), []byte("i\x00"))
	observe("clear_all", start, err)
	return wrapErr("clear_all", "", "", err)
}

// Schema returns the schema the store was opened with.
func (s *Store) Schema() Schema {
	return s.schema
}

// RunGC reclaims value log space. Used by storage.GCLoop.
func (s *Store) RunGC() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	gcRuns.Inc()
	return storage.RunGC(s.db, s.cfg.Storage.GCRatio)
}

// Close closes the underlying database. Later calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return storage.Close(s.db, "store", s.cfg.Storage.CloseTimeout)
}

// acquire takes the read lock unless the store is closed. On success the
// caller must RUnlock.
func (s *Store) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) collection(name string) (CollectionSchema, error) {
	cs, ok := s.schema.Collection(name)
	if !ok {
		return CollectionSchema{}, ErrUnknownCollection
	}
	return cs, nil
}

func (s *Store) view(ctx context.Context, collection string, fn func(*badger.Txn, CollectionSchema) error) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	cs, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(txn, cs)
	})
}

func (s *Store) update(ctx context.Context, fn func(*badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && attempt < s.cfg.ConflictRetries {
			conflictRetries.Inc()
			continue
		}
		return err
	}
}

func getRecord(txn *badger.Txn, collection, id string) (models.Record, error) {
	item, err := txn.Get(recordKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.Record
	err = item.Value(func(val []byte) error {
		var derr error
		rec, derr = models.DecodeRecord(val)
		return derr
	})
	return rec, err
}

func getRecords(txn *badger.Txn, collection string, ids []string) ([]models.Record, error) {
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := getRecord(txn, collection, id)
		if errors.Is(err, ErrNotFound) {
			// Index entries are written with their record; a miss means a
			// concurrent delete committed between key scan and read.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func keysUnder(ctx context.Context, txn *badger.Txn, prefix []byte, extract func([]byte) string) ([]string, error) {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, extract(it.Item().Key()))
	}
	return out, nil
}

func rawKeysUnder(ctx context.Context, txn *badger.Txn, prefix []byte) ([][]byte, error) {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
	defer it.Close()

	var out [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, it.Item().KeyCopy(nil))
	}
	return out, nil
}

func checkUnique(txn *badger.Txn, collection, index, enc, id string) error {
	prefix := indexValuePrefix(collection, index, enc)
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if string(it.Item().Key()[len(prefix):]) != id {
			return ErrUniqueViolation
		}
	}
	return nil
}

func entriesFor(cs CollectionSchema, rec models.Record) (map[string][]string, error) {
	out := make(map[string][]string, len(cs.Indexes))
	for _, ix := range cs.Indexes {
		values, err := indexValues(ix, rec)
		if err != nil {
			return nil, err
		}
		out[ix.Name] = values
	}
	return out, nil
}

// lenientEntriesFor is entriesFor for records already stored: an index
// that cannot be derived simply has no entries to remove.
func lenientEntriesFor(cs CollectionSchema, rec models.Record) map[string][]string {
	out := make(map[string][]string, len(cs.Indexes))
	for _, ix := range cs.Indexes {
		if values, err := indexValues(ix, rec); err == nil {
			out[ix.Name] = values
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
