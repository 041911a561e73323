// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

// Collector is anything that can reclaim disk space on demand.
type Collector interface {
	RunGC() error
}

// GCLoop periodically runs value log garbage collection on one database.
// It follows the Start/Stop/IsRunning contract the supervisor wraps.
type GCLoop struct {
	name     string
	target   Collector
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
	runs    int64
}

// NewGCLoop creates a loop for target. A non-positive interval defaults to 10m.
func NewGCLoop(name string, target Collector, interval time.Duration) *GCLoop {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCLoop{name: name, target: target, interval: interval}
}

// Start begins the background loop. Calling Start twice is a no-op.
func (g *GCLoop) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.running = true
	g.mu.Unlock()

	g.wg.Add(1)
	go g.run(ctx)

	logging.Info().Str("db", g.name).Dur("interval", g.interval).Msg("GC loop started")
	return nil
}

// Stop halts the loop and waits for an in-flight run to finish.
func (g *GCLoop) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.cancel()
	g.running = false
	g.mu.Unlock()

	g.wg.Wait()
	logging.Info().Str("db", g.name).Msg("GC loop stopped")
}

// IsRunning reports whether the loop is active.
func (g *GCLoop) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Runs returns the number of completed GC passes.
func (g *GCLoop) Runs() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runs
}

func (g *GCLoop) run(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.collect()
		}
	}
}

func (g *GCLoop) collect() {
	start := time.Now()
	if err := g.target.RunGC(); err != nil {
		logging.Error().Err(err).Str("db", g.name).Msg("Value log GC failed")
	}

	g.mu.Lock()
	g.lastRun = start
	g.runs++
	g.mu.Unlock()

	logging.Debug().Str("db", g.name).Dur("duration", time.Since(start)).Msg("Value log GC completed")
}
