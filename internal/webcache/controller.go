// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package webcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
)

var (
	// ErrNoWaitingWorker is returned by SkipWaiting when nothing is waiting.
	ErrNoWaitingWorker = errors.New("no waiting worker")

	// ErrInvalidVersion is returned for empty or malformed versions.
	ErrInvalidVersion = errors.New("invalid version")
)

// EventEmitter publishes worker events to pages.
type EventEmitter interface {
	Emit(ctx context.Context, t messaging.Type, data any)
}

// Config configures the controller.
type Config struct {
	// AppName prefixes cache names.
	AppName string

	// Origin is the upstream web app, e.g. http://127.0.0.1:5173.
	Origin string

	// OfflineDocument is the path served when a document cannot be
	// fetched and has no cached copy. It is always precached.
	OfflineDocument string

	// BypassPrefixes are path prefixes that are never cached.
	BypassPrefixes []string

	InstallConcurrency int
	FetchTimeout       time.Duration

	// MaxBodyBytes caps the size of a cached response body.
	MaxBodyBytes int64

	// ForwardForeignOrigins proxies absolute-form requests for other
	// hosts, uncached, instead of refusing them with 403. Off by default so
	// the agent is not an open proxy. Non-http schemes are always refused
	// with 400.
	ForwardForeignOrigins bool
}

// DefaultConfig returns defaults for origin.
func DefaultConfig(origin string) Config {
	return Config{
		AppName:            "sop-app",
		Origin:             origin,
		OfflineDocument:    "/offline.html",
		BypassPrefixes:     []string{"/api/", "/ws", "/metrics"},
		InstallConcurrency: 6,
		FetchTimeout:       15 * time.Second,
		MaxBodyBytes:       10 << 20,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("webcache: app name is required")
	}
	u, err := url.Parse(c.Origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webcache: origin must be an absolute http(s) URL, got %q", c.Origin)
	}
	if c.InstallConcurrency < 1 {
		return fmt.Errorf("webcache: install concurrency must be at least 1")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("webcache: fetch timeout must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("webcache: max body bytes must be positive")
	}
	return nil
}

// Status is the controller state for the API.
type Status struct {
	Active    *WorkerInfo `json:"active,omitempty"`
	Waiting   *WorkerInfo `json:"waiting,omitempty"`
	CacheName string      `json:"cache_name,omitempty"`
}

// Controller installs releases into versioned caches, moves workers
// through their lifecycle and serves requests through the active cache.
type Controller struct {
	cfg     Config
	origin  *url.URL
	storage *Storage
	events  EventEmitter
	client  *http.Client
	proxy   *httputil.ReverseProxy
	foreign *httputil.ReverseProxy
	offline []byte

	// installMu serializes Register so one release installs at a time.
	installMu sync.Mutex

	mu      sync.RWMutex
	active  *Worker
	waiting *Worker
}

// NewController creates a controller. events may be nil.
func NewController(cfg Config, st *Storage, events EventEmitter) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	origin, _ := url.Parse(cfg.Origin)
	c := &Controller{
		cfg:     cfg,
		origin:  origin,
		storage: st,
		events:  events,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		offline: builtinOffline,
	}
	c.proxy = c.newProxy()
	if cfg.ForwardForeignOrigins {
		c.foreign = newForeignProxy()
	}
	return c, nil
}

// Restore activates the newest release already present in storage, so a
// restarted agent serves offline before the first update check.
func (c *Controller) Restore(ctx context.Context) (*Worker, error) {
	names, err := c.storage.Names()
	if err != nil {
		return nil, err
	}
	prefix := c.cfg.AppName + "-v"
	best := ""
	for _, name := range names {
		v := "v" + strings.TrimPrefix(name, prefix)
		if !strings.HasPrefix(name, prefix) || !semver.IsValid(v) {
			continue
		}
		if best == "" || semver.Compare(v, best) > 0 {
			best = v
		}
	}
	if best == "" {
		return nil, nil
	}

	c.installMu.Lock()
	defer c.installMu.Unlock()

	w := newWorker(c.cfg.AppName, best)
	w.installedAt = time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return c.active, nil
	}
	if err := c.activateLocked(ctx, w); err != nil {
		return nil, err
	}
	logging.Info().Str("version", w.version).Msg("Restored cached release")
	return w, nil
}

// Register installs version and returns its worker. Registering the
// version of the active or waiting worker returns that worker.
func (c *Controller) Register(ctx context.Context, version string, manifest []string) (*Worker, error) {
	if !semver.IsValid("v" + strings.TrimPrefix(version, "v")) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	c.installMu.Lock()
	defer c.installMu.Unlock()

	if w := c.current(version); w != nil {
		return w, nil
	}

	w := newWorker(c.cfg.AppName, version)
	log := logging.Ctx(ctx).With().Str("version", version).Str("cache", w.cacheName).Logger()
	log.Info().Int("urls", len(manifest)).Msg("Installing release")

	cache, err := c.storage.Open(w.cacheName)
	if err != nil {
		w.setState(StateRedundant)
		return nil, err
	}
	if err := c.install(ctx, w, cache, manifest); err != nil {
		w.setState(StateRedundant)
		if _, derr := c.storage.Delete(w.cacheName); derr != nil {
			log.Warn().Err(derr).Msg("Removing cache of abandoned install failed")
		}
		return nil, err
	}
	w.installedAt = time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		if err := c.activateLocked(ctx, w); err != nil {
			w.setState(StateWaiting)
			c.waiting = w
			return w, err
		}
		return w, nil
	}

	if prev := c.waiting; prev != nil {
		prev.setState(StateRedundant)
		if _, err := c.storage.Delete(prev.cacheName); err != nil {
			log.Warn().Err(err).Str("replaced", prev.version).Msg("Removing cache of replaced waiting worker failed")
		}
	}
	w.setState(StateWaiting)
	c.waiting = w
	log.Info().Str("active", c.active.version).Msg("Release installed and waiting")
	return w, nil
}

// install fetches every manifest URL into cache. Individual fetch
// failures are logged and counted; only cancellation aborts.
func (c *Controller) install(ctx context.Context, w *Worker, cache *Cache, manifest []string) error {
	keys := c.manifestKeys(manifest)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.InstallConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			err := c.precache(gctx, cache, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.failed++
				installFailures.Inc()
				logging.Warn().Err(err).Str("url", key).Str("cache", cache.Name()).Msg("Precache failed")
				return nil
			}
			w.fetched++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	logging.Info().
		Str("cache", cache.Name()).
		Int("fetched", w.fetched).
		Int("failed", w.failed).
		Msg("Release install finished")
	return nil
}

func (c *Controller) precache(ctx context.Context, cache *Cache, key string) error {
	u, err := c.upstreamURL(key)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if !c.sameOrigin(resp.Request.URL) {
		return fmt.Errorf("redirected off origin to %s", resp.Request.URL.Host)
	}
	stored, complete, err := readResponse(resp, c.cfg.MaxBodyBytes)
	if err != nil {
		return err
	}
	if !complete {
		return fmt.Errorf("body exceeds %d bytes", c.cfg.MaxBodyBytes)
	}
	return cache.Put(key, stored)
}

// manifestKeys normalizes manifest entries to cache keys and adds the
// offline document.
func (c *Controller) manifestKeys(manifest []string) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(raw string) {
		key, err := cacheKeyFor(raw)
		if err != nil || seen[key] {
			return
		}
		seen[key] = true
		keys = append(keys, key)
	}
	for _, raw := range manifest {
		add(raw)
	}
	if c.cfg.OfflineDocument != "" {
		add(c.cfg.OfflineDocument)
	}
	return keys
}

// SkipWaiting activates the waiting worker.
func (c *Controller) SkipWaiting(ctx context.Context) (*Worker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.waiting
	if w == nil {
		return nil, ErrNoWaitingWorker
	}
	if err := c.activateLocked(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// activateLocked deletes every other cache, retires the previous worker
// and claims clients. Caller holds c.mu. On failure w keeps its state.
func (c *Controller) activateLocked(ctx context.Context, w *Worker) error {
	names, err := c.storage.Names()
	if err != nil {
		return fmt.Errorf("activate %s: %w", w.version, err)
	}
	for _, name := range names {
		if name == w.cacheName {
			continue
		}
		if _, err := c.storage.Delete(name); err != nil {
			return fmt.Errorf("activate %s: %w", w.version, err)
		}
		logging.Info().Str("cache", name).Msg("Deleted old cache")
	}

	prev := c.active
	if prev != nil {
		prev.setState(StateRedundant)
	}
	w.setState(StateActive)
	c.active = w
	if c.waiting == w {
		c.waiting = nil
	}
	activationsTotal.Inc()

	ev := logging.Info().Str("version", w.version).Str("cache", w.cacheName)
	if prev != nil {
		ev = ev.Str("previous", prev.version)
	}
	ev.Msg("Worker activated")

	c.emit(ctx, messaging.TypeControllerChanged, messaging.ControllerChanged{
		Version:   w.version,
		CacheName: w.cacheName,
	})
	return nil
}

// Unregister retires every worker. Caches are left to the caller.
func (c *Controller) Unregister(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range []*Worker{c.active, c.waiting} {
		if w != nil {
			w.setState(StateRedundant)
		}
	}
	c.active, c.waiting = nil, nil
	logging.Ctx(ctx).Info().Msg("Workers unregistered")
}

// DeleteAllCaches deletes every cache and returns the deleted names.
func (c *Controller) DeleteAllCaches() ([]string, error) {
	names, err := c.storage.Names()
	if err != nil {
		return nil, err
	}
	deleted := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := c.storage.Delete(name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// CacheNames lists the caches in storage.
func (c *Controller) CacheNames() ([]string, error) {
	return c.storage.Names()
}

// Active returns the active worker or nil.
func (c *Controller) Active() *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Waiting returns the waiting worker or nil.
func (c *Controller) Waiting() *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waiting
}

// Status returns a snapshot of both worker slots.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{Active: c.active.Info(), Waiting: c.waiting.Info()}
	if c.active != nil {
		st.CacheName = c.active.cacheName
	}
	return st
}

func (c *Controller) current(version string) *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := strings.TrimPrefix(version, "v")
	for _, w := range []*Worker{c.active, c.waiting} {
		if w != nil && strings.TrimPrefix(w.version, "v") == v {
			return w
		}
	}
	return nil
}

func (c *Controller) emit(ctx context.Context, t messaging.Type, data any) {
	if c.events != nil {
		c.events.Emit(ctx, t, data)
	}
}
