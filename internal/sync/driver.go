// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/cache"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/connectivity"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
)

var (
	// ErrWriteLost means the change reached neither the local store nor
	// the remote: the store failed while the device was offline, or the
	// queue refused the entry.
	ErrWriteLost = errors.New("change could not be persisted")

	// ErrOffline is returned by Drain while the remote is unreachable.
	ErrOffline = errors.New("offline")

	// ErrInvalidMutation is returned for unknown change types or records
	// without id on update/delete.
	ErrInvalidMutation = errors.New("invalid mutation")
)

// EventEmitter publishes worker events to pages.
type EventEmitter interface {
	Emit(ctx context.Context, t messaging.Type, data any)
}

// MutationResult describes where a mutation landed.
type MutationResult struct {
	Record  models.Record `json:"record"`
	Version int64         `json:"version"`

	// LocalDurable is false when the local store write failed and the
	// change went to the remote only.
	LocalDurable bool `json:"local_durable"`

	// Applied is true when the remote accepted the change directly.
	Applied bool `json:"applied"`

	// Superseded is true when the remote already held a newer version.
	Superseded bool `json:"superseded"`

	// Queued carries the pending change when the device was offline.
	Queued *models.PendingChange `json:"queued,omitempty"`
}

// Stats are cumulative driver counters.
type Stats struct {
	Mutations  int64     `json:"mutations"`
	Drains     int64     `json:"drains"`
	Applied    int64     `json:"applied"`
	Superseded int64     `json:"superseded"`
	Failed     int64     `json:"failed"`
	LastDrain  time.Time `json:"last_drain"`
	LastError  string    `json:"last_error,omitempty"`
}

// Driver routes mutations to the remote or the queue depending on
// connectivity and replays the queue when connectivity returns.
type Driver struct {
	store   *store.Store
	queue   *queue.Queue
	remote  remote.Service
	monitor *connectivity.Monitor
	events  EventEmitter
	cfg     Config
	now     func() time.Time

	limiter  *rate.Limiter
	drains   singleflight.Group
	drainGen atomic.Uint64
	applied  *cache.LRU[string, struct{}]
	versions *cache.LRU[string, int64]

	mu            sync.Mutex
	versionMu     sync.Mutex
	stats         Stats
	retryAttempts int
	retryTimer    *time.Timer

	// Lifecycle, as in the queue retry loop.
	running  bool
	cancel   context.CancelFunc
	loopCtx  context.Context
	stopDone chan struct{}
}

// NewDriver wires a driver. events may be nil.
func NewDriver(s *store.Store, q *queue.Queue, svc remote.Service, m *connectivity.Monitor, events EventEmitter, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.ReplayRate > 0 {
		limit = rate.Limit(cfg.ReplayRate)
	}
	burst := cfg.ReplayBurst
	if burst < 1 {
		burst = 1
	}
	return &Driver{
		store:    s,
		queue:    q,
		remote:   svc,
		monitor:  m,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		limiter:  rate.NewLimiter(limit, burst),
		applied:  cache.New[string, struct{}](cfg.AppliedCacheSize, cfg.AppliedCacheTTL),
		versions: cache.New[string, int64](cfg.AppliedCacheSize, 0),
	}, nil
}

// Mutate records a change made by the page.
//
// The record is versioned and written to the local store first. Online, it
// is applied to the remote directly; a transport failure flips the monitor
// offline and the change is queued instead. Offline, it is queued. A local
// store failure is tolerated while online (remote-only write) and fatal
// while offline (ErrWriteLost). When the remote refuses the change outright
// the local write is undone and the remote error returned.
func (d *Driver) Mutate(ctx context.Context, collection string, ct models.ChangeType, rec models.Record) (*MutationResult, error) {
	if !ct.Valid() {
		return nil, fmt.Errorf("%w: change type %q", ErrInvalidMutation, ct)
	}
	if collection == models.CollectionPendingChanges {
		return nil, fmt.Errorf("%w: %s is internal", ErrInvalidMutation, collection)
	}
	rec, err := rec.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}
	if rec.ID() == "" {
		if ct != models.ChangeCreate {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMutation, models.ErrMissingID)
		}
		rec[models.FieldID] = uuid.NewString()
	}

	version, err := d.nextVersion(ctx, collection, rec.ID())
	if err != nil {
		return nil, err
	}
	rec.SetVersion(version)
	if ct == models.ChangeDelete {
		rec = models.Record{models.FieldID: rec.ID(), models.FieldVersion: version}
	}

	res := &MutationResult{Record: rec, Version: version, LocalDurable: true}
	log := logging.Ctx(ctx).With().
		Str("collection", collection).
		Str("id", rec.ID()).
		Str("change_type", string(ct)).
		Int64("version", version).
		Logger()

	prev, prevErr := d.store.Get(ctx, collection, rec.ID())
	if err := d.writeLocal(ctx, collection, ct, rec); err != nil {
		if !store.IsUnavailable(err) {
			return nil, err
		}
		localWriteFailures.Inc()
		res.LocalDurable = false
		log.Warn().Err(err).Msg("Local store unavailable; change is not durable on this device")
	}
	d.countMutation()

	if d.monitor.Online() {
		err := d.apply(ctx, collection, ct, rec)
		switch {
		case err == nil:
			res.Applied = true
			mutationsTotal.WithLabelValues("applied").Inc()
			return res, nil
		case errors.Is(err, remote.ErrStaleVersion) && d.cfg.ConflictPolicy == ConflictLastWriterWins:
			res.Superseded = true
			mutationsTotal.WithLabelValues("superseded").Inc()
			log.Info().Msg("Remote holds a newer version; change superseded")
			return res, nil
		case remote.IsUnavailable(err):
			log.Warn().Err(err).Msg("Remote unreachable; switching to offline mode")
			d.monitor.Set(false, connectivity.SourceTransport)
		default:
			mutationsTotal.WithLabelValues("failed").Inc()
			if res.LocalDurable {
				if rbErr := d.restoreLocal(ctx, collection, rec.ID(), prev, prevErr); rbErr != nil {
					log.Error().Err(rbErr).AnErr("remote_error", err).
						Msg("Remote refused the change and the local write could not be undone; device and remote disagree")
				} else {
					log.Warn().Err(err).Msg("Remote refused the change; local write undone")
				}
			}
			return res, err
		}
	}

	if !res.LocalDurable {
		mutationsTotal.WithLabelValues("lost").Inc()
		log.Error().Msg("Change lost: local store unavailable while offline")
		return nil, fmt.Errorf("%w: local store unavailable while offline", ErrWriteLost)
	}

	pc, err := d.queue.Enqueue(ctx, collection, ct, rec)
	if err != nil {
		mutationsTotal.WithLabelValues("lost").Inc()
		log.Error().Err(err).Msg("Change saved locally but could not be queued")
		return nil, fmt.Errorf("%w: %v", ErrWriteLost, err)
	}
	res.Queued = pc
	mutationsTotal.WithLabelValues("queued").Inc()
	d.publishStatus(ctx)
	return res, nil
}

// SetOnline feeds a connectivity signal. On an offline to online
// transition the queue is drained: by the background loop when the driver
// is running, inline otherwise.
func (d *Driver) SetOnline(ctx context.Context, online bool, source string) bool {
	changed := d.monitor.Set(online, source)
	if !changed {
		return false
	}
	if online && !d.IsRunning() {
		if _, err := d.Drain(ctx); err != nil && !errors.Is(err, ErrOffline) {
			logging.Warn().Err(err).Msg("Drain after reconnect failed")
		}
	}
	if !online {
		d.cancelRetry()
	}
	d.publishStatus(ctx)
	return true
}

// PendingCount returns the number of queued changes.
func (d *Driver) PendingCount(ctx context.Context) (int, error) {
	return d.queue.Count(ctx)
}

// Online reports the connectivity state.
func (d *Driver) Online() bool {
	return d.monitor.Online()
}

// Status returns the aggregate state shown to pages.
func (d *Driver) Status(ctx context.Context) models.SyncStatus {
	pending, err := d.queue.Count(ctx)
	if err != nil {
		pending = -1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.SyncStatus{
		Online:        d.monitor.Online(),
		Pending:       pending,
		LastDrain:     d.stats.LastDrain,
		LastError:     d.stats.LastError,
		RetryAttempts: d.retryAttempts,
	}
}

// Stats returns cumulative counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Start subscribes to connectivity changes and drains once if the device is
// online with pending changes.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.loopCtx = loopCtx
	d.cancel = cancel
	d.running = true
	d.stopDone = make(chan struct{})
	done := d.stopDone
	d.mu.Unlock()

	events, unsubscribe := d.monitor.Subscribe()
	go d.run(loopCtx, events, unsubscribe, done)

	logging.Info().
		Str("drain_policy", string(d.cfg.DrainPolicy)).
		Str("conflict_policy", string(d.cfg.ConflictPolicy)).
		Msg("Sync driver started")

	if d.monitor.Online() {
		d.TriggerDrain()
	}
	return nil
}

// Stop ends the background loop and cancels any scheduled retry.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	done := d.stopDone
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	d.mu.Unlock()

	<-done
	logging.Info().Msg("Sync driver stopped")
}

// IsRunning reports whether the background loop is active.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// TriggerDrain starts a drain in the background. Concurrent triggers share
// one drain.
func (d *Driver) TriggerDrain() {
	d.mu.Lock()
	ctx := d.loopCtx
	d.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if _, err := d.Drain(ctx); err != nil && !errors.Is(err, ErrOffline) && !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Msg("Background drain failed")
		}
	}()
}

func (d *Driver) run(ctx context.Context, events <-chan connectivity.Event, unsubscribe func(), done chan struct{}) {
	defer close(done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Online {
				d.TriggerDrain()
			} else {
				d.cancelRetry()
			}
		}
	}
}

func (d *Driver) writeLocal(ctx context.Context, collection string, ct models.ChangeType, rec models.Record) error {
	if ct == models.ChangeDelete {
		return d.store.Delete(ctx, collection, rec.ID())
	}
	return d.store.Put(ctx, collection, rec)
}

// restoreLocal puts back the record held before a mutation, or removes the
// entity when there was none. prevErr is the error from reading it.
func (d *Driver) restoreLocal(ctx context.Context, collection, id string, prev models.Record, prevErr error) error {
	switch {
	case prevErr == nil:
		return d.store.Put(ctx, collection, prev)
	case errors.Is(prevErr, store.ErrNotFound):
		return d.store.Delete(ctx, collection, id)
	default:
		return fmt.Errorf("previous record unknown: %w", prevErr)
	}
}

func (d *Driver) apply(ctx context.Context, collection string, ct models.ChangeType, rec models.Record) error {
	switch ct {
	case models.ChangeCreate:
		return d.remote.Insert(ctx, collection, rec)
	case models.ChangeUpdate:
		return d.remote.Upsert(ctx, collection, rec)
	case models.ChangeDelete:
		return d.remote.Remove(ctx, collection, rec.ID(), rec.Version())
	default:
		return fmt.Errorf("%w: change type %q", ErrInvalidMutation, ct)
	}
}

// nextVersion returns max(prev+1, now) where prev is the highest version
// known for the entity, from the store or from versions issued earlier.
func (d *Driver) nextVersion(ctx context.Context, collection, id string) (int64, error) {
	d.versionMu.Lock()
	defer d.versionMu.Unlock()

	key := collection + ":" + id
	prev, _ := d.versions.Get(key)

	cur, err := d.store.Get(ctx, collection, id)
	switch {
	case err == nil:
		if v := cur.Version(); v > prev {
			prev = v
		}
	case errors.Is(err, store.ErrNotFound), store.IsUnavailable(err):
	default:
		return 0, err
	}

	next := d.now().UnixNano()
	if next <= prev {
		next = prev + 1
	}
	d.versions.Add(key, next)
	return next, nil
}

func (d *Driver) countMutation() {
	d.mu.Lock()
	d.stats.Mutations++
	d.mu.Unlock()
}

func (d *Driver) publishStatus(ctx context.Context) {
	if d.events == nil {
		return
	}
	d.events.Emit(ctx, messaging.TypeSyncStatus, d.Status(ctx))
}
