// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package update polls for new releases of the web app, drives the cache
// controller's worker lifecycle and implements the destructive purge.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/mod/semver"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

// ErrNoUpdateWaiting is returned by Accept when no release is waiting.
var ErrNoUpdateWaiting = errors.New("no update waiting")

// EventEmitter publishes worker events to pages.
type EventEmitter interface {
	Emit(ctx context.Context, t messaging.Type, data any)
}

// Config configures the poller.
type Config struct {
	// VersionURL returns the published Release as JSON.
	VersionURL string

	// Interval between checks; 0 disables the background loop.
	Interval time.Duration

	// Timeout bounds one check.
	Timeout time.Duration
}

// DefaultConfig returns a config polling every minute.
func DefaultConfig(versionURL string) Config {
	return Config{
		VersionURL: versionURL,
		Interval:   60 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Release is the document served at the version URL.
type Release struct {
	Version  string   `json:"version"`
	Manifest []string `json:"manifest"`
}

// CheckResult describes one update check.
type CheckResult struct {
	Release   *Release `json:"release,omitempty"`
	Installed bool     `json:"installed"`
	Waiting   bool     `json:"waiting"`
}

// Notifier checks for releases and announces them to pages.
type Notifier struct {
	cfg    Config
	ctrl   *webcache.Controller
	purger *Purger
	events EventEmitter
	client *http.Client

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	announced string
	lastCheck time.Time
	lastErr   string
}

// NewNotifier creates a notifier. events may be nil.
func NewNotifier(cfg Config, ctrl *webcache.Controller, purger *Purger, events EventEmitter) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		ctrl:   ctrl,
		purger: purger,
		events: events,
		client: &http.Client{Timeout: timeout},
	}
}

// Check fetches the published release once and installs it when it is
// newer than both the active and the waiting worker.
func (n *Notifier) Check(ctx context.Context) (*CheckResult, error) {
	res, err := n.check(ctx)

	n.mu.Lock()
	n.lastCheck = time.Now().UTC()
	n.lastErr = ""
	if err != nil {
		n.lastErr = err.Error()
	}
	n.mu.Unlock()

	switch {
	case err != nil:
		checksTotal.WithLabelValues("error").Inc()
	case res.Installed:
		checksTotal.WithLabelValues("installed").Inc()
	default:
		checksTotal.WithLabelValues("current").Inc()
	}
	return res, err
}

func (n *Notifier) check(ctx context.Context) (*CheckResult, error) {
	rel, err := n.fetchRelease(ctx)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{Release: rel}

	if newestKnown := n.newestKnown(); newestKnown == "" || compare(rel.Version, newestKnown) > 0 {
		w, err := n.ctrl.Register(ctx, rel.Version, rel.Manifest)
		if err != nil {
			return res, fmt.Errorf("install %s: %w", rel.Version, err)
		}
		res.Installed = true
		res.Waiting = w.State() == webcache.StateWaiting
	}
	n.announce(ctx)
	return res, nil
}

// announce publishes UPDATE_AVAILABLE once per waiting release.
func (n *Notifier) announce(ctx context.Context) {
	waiting := n.ctrl.Waiting()
	if waiting == nil {
		availableGauge.Set(0)
		return
	}
	availableGauge.Set(1)

	n.mu.Lock()
	if n.announced == waiting.Version() {
		n.mu.Unlock()
		return
	}
	n.announced = waiting.Version()
	n.mu.Unlock()

	payload := messaging.UpdateAvailable{Version: waiting.Version()}
	if active := n.ctrl.Active(); active != nil {
		payload.Current = active.Version()
	}
	logging.Ctx(ctx).Info().Str("version", payload.Version).Str("current", payload.Current).Msg("Update available")
	n.emit(ctx, messaging.TypeUpdateAvailable, payload)
}

func (n *Notifier) fetchRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.VersionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create version request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch version: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch version: status %d", resp.StatusCode)
	}
	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	if !semver.IsValid(canonical(rel.Version)) {
		return nil, fmt.Errorf("decode version: %w: %q", webcache.ErrInvalidVersion, rel.Version)
	}
	return &rel, nil
}

func (n *Notifier) newestKnown() string {
	newest := ""
	for _, w := range []*webcache.Worker{n.ctrl.Active(), n.ctrl.Waiting()} {
		if w != nil && (newest == "" || compare(w.Version(), newest) > 0) {
			newest = w.Version()
		}
	}
	return newest
}

// Accept activates the waiting release and tells pages to reload.
func (n *Notifier) Accept(ctx context.Context) (*webcache.Worker, error) {
	w, err := n.ctrl.SkipWaiting(ctx)
	if errors.Is(err, webcache.ErrNoWaitingWorker) {
		return nil, ErrNoUpdateWaiting
	}
	if err != nil {
		return nil, err
	}
	availableGauge.Set(0)
	logging.Ctx(ctx).Info().Str("version", w.Version()).Msg("Update accepted")
	n.emit(ctx, messaging.TypeReload, messaging.Reload{Reason: "update"})
	return w, nil
}

// PurgePreview describes what Purge would discard.
func (n *Notifier) PurgePreview(ctx context.Context) (*PurgePreview, error) {
	return n.purger.Preview(ctx)
}

// Purge wipes every cache and the local store. confirm must be true.
func (n *Notifier) Purge(ctx context.Context, confirm bool) (*PurgeReport, error) {
	report, err := n.purger.Purge(ctx, confirm)
	if err != nil {
		return report, err
	}
	n.mu.Lock()
	n.announced = ""
	n.mu.Unlock()
	availableGauge.Set(0)
	n.emit(ctx, messaging.TypeReload, messaging.Reload{Reason: "purge"})
	return report, nil
}

// Status is the notifier state for the API.
type Status struct {
	LastCheck time.Time `json:"last_check,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Announced string    `json:"announced,omitempty"`
}

// Status returns the last check outcome.
func (n *Notifier) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{LastCheck: n.lastCheck, LastError: n.lastErr, Announced: n.announced}
}

// Start begins polling. A zero interval leaves polling off.
func (n *Notifier) Start(ctx context.Context) error {
	if n.cfg.Interval <= 0 || n.cfg.VersionURL == "" {
		logging.Info().Msg("Update polling disabled")
		return nil
	}
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	n.running = true
	done := n.done
	n.mu.Unlock()

	go n.run(ctx, done)
	logging.Info().Str("url", n.cfg.VersionURL).Dur("interval", n.cfg.Interval).Msg("Update poller started")
	return nil
}

// Stop halts polling and waits for an in-flight check.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.cancel()
	done := n.done
	n.mu.Unlock()

	<-done
	logging.Info().Msg("Update poller stopped")
}

// IsRunning reports whether polling is active.
func (n *Notifier) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

func (n *Notifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()

	n.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.poll(ctx)
		}
	}
}

func (n *Notifier) poll(ctx context.Context) {
	if _, err := n.Check(ctx); err != nil && ctx.Err() == nil {
		logging.Debug().Err(err).Msg("Update check failed; retrying next tick")
	}
}

func (n *Notifier) emit(ctx context.Context, t messaging.Type, data any) {
	if n.events != nil {
		n.events.Emit(ctx, t, data)
	}
}

func canonical(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

func compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}
