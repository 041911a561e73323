// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package webcache

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// State is a worker lifecycle state.
type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Worker is one installed release of the web app.
type Worker struct {
	version   string
	cacheName string
	state     atomic.Int32

	installedAt time.Time
	fetched     int
	failed      int
}

func newWorker(app, version string) *Worker {
	version = strings.TrimPrefix(version, "v")
	w := &Worker{version: version, cacheName: CacheName(app, version)}
	w.state.Store(int32(StateInstalling))
	return w
}

// Version returns the release version.
func (w *Worker) Version() string { return w.version }

// CacheName returns the worker's cache.
func (w *Worker) CacheName() string { return w.cacheName }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// WorkerInfo is a JSON view of a worker.
type WorkerInfo struct {
	Version     string    `json:"version"`
	CacheName   string    `json:"cache_name"`
	State       string    `json:"state"`
	InstalledAt time.Time `json:"installed_at"`
	Fetched     int       `json:"fetched"`
	Failed      int       `json:"failed"`
}

// Info returns a snapshot of w.
func (w *Worker) Info() *WorkerInfo {
	if w == nil {
		return nil
	}
	return &WorkerInfo{
		Version:     w.version,
		CacheName:   w.cacheName,
		State:       w.State().String(),
		InstalledAt: w.installedAt,
		Fetched:     w.fetched,
		Failed:      w.failed,
	}
}

// CacheName returns "{app}-v{version}".
func CacheName(app, version string) string {
	return app + "-v" + strings.TrimPrefix(version, "v")
}
