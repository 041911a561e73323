// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package webcache

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/storage"
)

// Key layout:
//
//	n\x00<cache>          name marker; its presence makes the cache visible
//	e\x00<cache>\x00<url> stored response
const sep = '\x00'

var (
	// ErrCacheDeleted is returned when writing to a cache that was deleted.
	ErrCacheDeleted = errors.New("cache has been deleted")

	// ErrInvalidName is returned for empty names or names containing NUL.
	ErrInvalidName = errors.New("invalid cache name")

	// ErrStorageClosed is returned after Close.
	ErrStorageClosed = errors.New("cache storage is closed")
)

// Response is a stored HTTP response.
type Response struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Storage holds named caches on a Badger database of its own.
type Storage struct {
	db      *badger.DB
	timeout time.Duration
	gcRatio float64

	mu     sync.RWMutex
	closed bool
}

// OpenStorage opens the cache database and removes entries left behind by
// a deletion that was interrupted after its marker was removed.
func OpenStorage(cfg storage.Config) (*Storage, error) {
	db, err := storage.Open(cfg, "webcache")
	if err != nil {
		return nil, err
	}
	s := &Storage{db: db, timeout: cfg.CloseTimeout, gcRatio: cfg.GCRatio}
	if n, err := s.dropOrphans(); err != nil {
		_ = db.Close()
		return nil, err
	} else if n > 0 {
		logging.Info().Int("caches", n).Msg("Removed orphaned cache entries")
	}
	return s, nil
}

// Open returns the named cache, creating it if needed.
func (s *Storage) Open(name string) (*Cache, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(nameKey(name))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stamp, _ := time.Now().UTC().MarshalText()
		return txn.Set(nameKey(name), stamp)
	})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &Cache{name: name, storage: s}, nil
}

// Lookup returns a handle to name without creating it. Match on a missing
// cache finds nothing and Put fails with ErrCacheDeleted.
func (s *Storage) Lookup(name string) *Cache {
	return &Cache{name: name, storage: s}
}

// Names returns every visible cache name, sorted.
func (s *Storage) Names() ([]string, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{'n', sep}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// Has reports whether name is visible.
func (s *Storage) Has(name string) (bool, error) {
	if err := s.acquire(); err != nil {
		return false, err
	}
	defer s.mu.RUnlock()

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(nameKey(name))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes the named cache and reports whether it existed.
//
// The name marker goes first in its own transaction, so the cache
// disappears as a whole; the entries are then dropped. A crash between the
// two leaves orphans that OpenStorage removes.
func (s *Storage) Delete(name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	if err := s.acquire(); err != nil {
		return false, err
	}
	defer s.mu.RUnlock()

	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nameKey(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(nameKey(name))
	})
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	if err := s.db.DropPrefix(entryPrefix(name)); err != nil {
		return existed, fmt.Errorf("drop entries of %s: %w", name, err)
	}
	return existed, nil
}

// RunGC reclaims value log space left by deleted caches.
func (s *Storage) RunGC() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return storage.RunGC(s.db, s.gcRatio)
}

// Close closes the database.
func (s *Storage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return storage.Close(s.db, "webcache", s.timeout)
}

func (s *Storage) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStorageClosed
	}
	return nil
}

func (s *Storage) dropOrphans() (int, error) {
	live := make(map[string]bool)
	orphans := make(map[string]bool)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{'n', sep}})
		for it.Rewind(); it.Valid(); it.Next() {
			live[string(it.Item().Key()[2:])] = true
		}
		it.Close()

		it = txn.NewIterator(badger.IteratorOptions{Prefix: []byte{'e', sep}})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := it.Item().Key()[2:]
			if i := bytes.IndexByte(rest, sep); i >= 0 {
				if name := string(rest[:i]); !live[name] {
					orphans[name] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for name := range orphans {
		if err := s.db.DropPrefix(entryPrefix(name)); err != nil {
			return 0, err
		}
	}
	return len(orphans), nil
}

// Cache is one named cache.
type Cache struct {
	name    string
	storage *Storage
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// Match returns the stored response for key.
func (c *Cache) Match(key string) (*Response, bool, error) {
	s := c.storage
	if err := s.acquire(); err != nil {
		return nil, false, err
	}
	defer s.mu.RUnlock()

	var resp *Response
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(nameKey(c.name)); err != nil {
			return err
		}
		item, err := txn.Get(entryKey(c.name, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			resp = &Response{}
			return json.Unmarshal(val, resp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match %s in %s: %w", key, c.name, err)
	}
	return resp, true, nil
}

// Put stores resp under key. Writing to a deleted cache fails with
// ErrCacheDeleted so no entry outlives its name.
func (c *Cache) Put(key string, resp *Response) error {
	s := c.storage
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nameKey(c.name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrCacheDeleted
			}
			return err
		}
		return txn.Set(entryKey(c.name, key), data)
	})
	if err != nil {
		return fmt.Errorf("put %s in %s: %w", key, c.name, err)
	}
	return nil
}

// Keys returns the stored keys, sorted.
func (c *Cache) Keys() ([]string, error) {
	s := c.storage
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	prefix := entryPrefix(c.name)
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, sep) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func nameKey(name string) []byte {
	return append([]byte{'n', sep}, name...)
}

func entryPrefix(name string) []byte {
	k := append([]byte{'e', sep}, name...)
	return append(k, sep)
}

func entryKey(name, key string) []byte {
	return append(entryPrefix(name), key...)
}
