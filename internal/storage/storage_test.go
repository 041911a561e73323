// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing path", func(c *Config) { c.Path = "" }, true},
		{"in memory without path", func(c *Config) { c.Path = ""; c.InMemory = true }, false},
		{"one compactor", func(c *Config) { c.NumCompactors = 1 }, true},
		{"gc ratio too high", func(c *Config) { c.GCRatio = 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("/tmp/x")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var ce *ConfigError
			if err != nil && !errors.As(err, &ce) {
				t.Errorf("error %T is not *ConfigError", err)
			}
		})
	}
}

func TestOpen_OnDiskRoundTrip(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncWrites = false

	db, err := Open(cfg, "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := RunGC(db, cfg.GCRatio); err != nil {
		t.Errorf("RunGC: %v", err)
	}
	if err := Close(db, "test", time.Second*5); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(cfg, "test")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	if err != nil {
		t.Errorf("value lost across reopen: %v", err)
	}
}

type countingCollector struct{ calls atomic.Int64 }

func (c *countingCollector) RunGC() error {
	c.calls.Add(1)
	return nil
}

func TestGCLoop_Lifecycle(t *testing.T) {
	target := &countingCollector{}
	loop := NewGCLoop("test", target, 10*time.Millisecond)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !loop.IsRunning() {
		t.Fatal("expected running")
	}
	// Second Start is a no-op.
	_ = loop.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for target.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	loop.Stop()

	if loop.IsRunning() {
		t.Error("expected stopped")
	}
	if target.calls.Load() < 2 {
		t.Errorf("RunGC called %d times, want >= 2", target.calls.Load())
	}
	if loop.Runs() != target.calls.Load() {
		t.Errorf("Runs() = %d, calls = %d", loop.Runs(), target.calls.Load())
	}
	loop.Stop()
}
