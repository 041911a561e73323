// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/connectivity"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// flakyRemote wraps the reference service and fails writes for chosen ids.
type flakyRemote struct {
	*remote.Memory

	mu    sync.Mutex
	fail  map[string]error
	calls []string

	// beforeWrite runs once, ahead of the next write.
	beforeWrite func()
}

func newFlakyRemote() *flakyRemote {
	return &flakyRemote{Memory: remote.NewMemory(), fail: make(map[string]error)}
}

func (f *flakyRemote) failFor(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, id)
	} else {
		f.fail[id] = err
	}
}

func (f *flakyRemote) check(op, id string) error {
	f.mu.Lock()
	hook := f.beforeWrite
	f.beforeWrite = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+id)
	if err, ok := f.fail[id]; ok {
		return err
	}
	if err, ok := f.fail["*"]; ok {
		return err
	}
	return nil
}

func (f *flakyRemote) Insert(ctx context.Context, c string, rec models.Record) error {
	if err := f.check("insert", rec.ID()); err != nil {
		return err
	}
	return f.Memory.Insert(ctx, c, rec)
}

func (f *flakyRemote) Upsert(ctx context.Context, c string, rec models.Record) error {
	if err := f.check("upsert", rec.ID()); err != nil {
		return err
	}
	return f.Memory.Upsert(ctx, c, rec)
}

func (f *flakyRemote) Remove(ctx context.Context, c, id string, v int64) error {
	if err := f.check("remove", id); err != nil {
		return err
	}
	return f.Memory.Remove(ctx, c, id, v)
}

func (f *flakyRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []messaging.Type
}

func (r *recordingEmitter) Emit(_ context.Context, t messaging.Type, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recordingEmitter) count(t messaging.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == t {
			n++
		}
	}
	return n
}

type harness struct {
	store   *store.Store
	queue   *queue.Queue
	remote  *flakyRemote
	monitor *connectivity.Monitor
	events  *recordingEmitter
	driver  *Driver
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := DefaultConfig()
	cfg.ReplayRate = 0
	cfg.RetryBase = time.Hour
	cfg.MaxBackoff = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:   s,
		queue:   queue.New(s, queue.DefaultConfig()),
		remote:  newFlakyRemote(),
		monitor: connectivity.NewMonitor(true),
		events:  &recordingEmitter{},
	}
	h.driver, err = NewDriver(h.store, h.queue, h.remote, h.monitor, h.events, cfg)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	t.Cleanup(h.driver.Stop)
	return h
}

func taskRecord(id, status string, steps ...string) models.Record {
	r, _ := models.ToRecord(models.Task{
		ID:             id,
		Title:          "Open store " + id,
		AssignedTo:     []string{"u1"},
		Status:         status,
		ScheduledDate:  "2026-03-01",
		CompletedSteps: steps,
	})
	return r
}

func (h *harness) remoteTask(t *testing.T, id string) models.Task {
	t.Helper()
	rec, err := h.remote.Get(context.Background(), models.CollectionTasks, id)
	if err != nil {
		t.Fatalf("remote Get(%s): %v", id, err)
	}
	var task models.Task
	if err := models.FromRecord(rec, &task); err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	return task
}

func (h *harness) pending(t *testing.T) int {
	t.Helper()
	n, err := h.queue.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func TestMutate_OnlineAppliesDirectly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeCreate, taskRecord("T1", "pending"))
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !res.Applied || !res.LocalDurable || res.Queued != nil {
		t.Errorf("result = %+v", res)
	}
	if h.pending(t) != 0 {
		t.Error("online mutation was queued")
	}

	local, err := h.store.Get(ctx, models.CollectionTasks, "T1")
	if err != nil {
		t.Fatalf("local Get: %v", err)
	}
	if local.Version() != res.Version || h.remoteTask(t, "T1").Version != res.Version {
		t.Errorf("versions local=%d remote=%d want %d", local.Version(), h.remoteTask(t, "T1").Version, res.Version)
	}
}

func TestMutate_CreateWithoutIDGetsOne(t *testing.T) {
	h := newHarness(t, nil)
	rec := taskRecord("", "pending")
	delete(rec, models.FieldID)

	res, err := h.driver.Mutate(context.Background(), models.CollectionTasks, models.ChangeCreate, rec)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if res.Record.ID() == "" {
		t.Error("no id assigned")
	}
	if _, err := h.driver.Mutate(context.Background(), models.CollectionTasks, models.ChangeUpdate, rec); !errors.Is(err, ErrInvalidMutation) {
		t.Errorf("update without id = %v, want ErrInvalidMutation", err)
	}
}

func TestMutate_VersionsAreMonotonicUnderFrozenClock(t *testing.T) {
	h := newHarness(t, nil)
	at := time.Unix(1_800_000_000, 0)
	h.driver.now = func() time.Time { return at }
	ctx := context.Background()

	var last int64
	for i := 0; i < 3; i++ {
		res, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeUpdate, taskRecord("T1", fmt.Sprint("s", i)))
		if err != nil {
			t.Fatalf("Mutate: %v", err)
		}
		if res.Version <= last {
			t.Fatalf("version %d not above %d", res.Version, last)
		}
		last = res.Version
	}
	if last != at.UnixNano()+2 {
		t.Errorf("last version = %d, want %d", last, at.UnixNano()+2)
	}
}

// A task edited three times while offline reaches the remote in its final
// state once connectivity returns.
func TestDriver_OfflineEditsReplayOnReconnect(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeCreate, taskRecord("T1", "pending")); err != nil {
		t.Fatalf("create: %v", err)
	}

	h.driver.SetOnline(ctx, false, connectivity.SourcePage)

	edits := []models.Record{
		taskRecord("T1", "in-progress"),
		taskRecord("T1", "in-progress", "s1"),
		taskRecord("T1", "in-progress", "s1", "s2"),
	}
	for _, e := range edits {
		res, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeUpdate, e)
		if err != nil {
			t.Fatalf("offline Mutate: %v", err)
		}
		if res.Queued == nil || res.Applied {
			t.Fatalf("offline result = %+v", res)
		}
	}
	if got := h.pending(t); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}
	if h.remoteTask(t, "T1").Status != "pending" {
		t.Fatal("remote changed while offline")
	}

	h.driver.SetOnline(ctx, true, connectivity.SourcePage)

	task := h.remoteTask(t, "T1")
	if task.Status != "in-progress" || !reflect.DeepEqual(task.CompletedSteps, []string{"s1", "s2"}) {
		t.Errorf("remote task = %+v", task)
	}
	if got := h.pending(t); got != 0 {
		t.Errorf("pending after reconnect = %d", got)
	}
	if h.events.count(messaging.TypeSyncStatus) == 0 {
		t.Error("no SYNC_STATUS published")
	}
	st := h.driver.Status(ctx)
	if !st.Online || st.Pending != 0 || st.RetryAttempts != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestMutate_TransportFailureGoesOffline(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.remote.failFor("*", fmt.Errorf("%w: dial tcp: connection refused", remote.ErrUnavailable))

	res, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeUpdate, taskRecord("T1", "pending"))
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if res.Queued == nil {
		t.Error("change not queued after transport failure")
	}
	if h.monitor.Online() {
		t.Error("monitor still online")
	}
}

func TestMutate_LocalStoreUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_ = h.store.Close()

	res, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeUpdate, taskRecord("T1", "pending"))
	if err != nil {
		t.Fatalf("online Mutate with dead store: %v", err)
	}
	if res.LocalDurable || !res.Applied {
		t.Errorf("result = %+v, want remote-only", res)
	}

	h.monitor.Set(false, connectivity.SourceAPI)
	_, err = h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeUpdate, taskRecord("T1", "done"))
	if !errors.Is(err, ErrWriteLost) {
		t.Errorf("offline Mutate with dead store = %v, want ErrWriteLost", err)
	}
}

func TestMutate_RequestErrorsAreReturned(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.driver.Mutate(ctx, "nope", models.ChangeCreate, models.Record{"id": "x"}); !errors.Is(err, store.ErrUnknownCollection) {
		t.Errorf("unknown collection = %v", err)
	}
	if _, err := h.driver.Mutate(ctx, models.CollectionTasks, "merge", taskRecord("T1", "x")); !errors.Is(err, ErrInvalidMutation) {
		t.Errorf("bad change type = %v", err)
	}
	if _, err := h.driver.Mutate(ctx, models.CollectionPendingChanges, models.ChangeCreate, models.Record{"id": "x"}); !errors.Is(err, ErrInvalidMutation) {
		t.Errorf("queue collection = %v", err)
	}

	// A refused write leaves the device where the remote is.
	first, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeCreate, taskRecord("T1", "pending"))
	if err != nil {
		t.Fatalf("create T1: %v", err)
	}
	rejected := fmt.Errorf("%w: status must be one of pending, in-progress, done", remote.ErrRejected)
	h.remote.failFor("T1", rejected)
	h.remote.failFor("T2", rejected)

	tests := []struct {
		name string
		ct   models.ChangeType
		rec  models.Record
	}{
		{"update of existing", models.ChangeUpdate, taskRecord("T1", "bogus")},
		{"delete of existing", models.ChangeDelete, taskRecord("T1", "pending")},
		{"create of new", models.ChangeCreate, taskRecord("T2", "bogus")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.driver.Mutate(ctx, models.CollectionTasks, tt.ct, tt.rec); !errors.Is(err, remote.ErrRejected) {
				t.Fatalf("Mutate = %v, want ErrRejected", err)
			}
		})
	}

	local, err := h.store.Get(ctx, models.CollectionTasks, "T1")
	if err != nil {
		t.Fatalf("local Get T1: %v", err)
	}
	if local["status"] != "pending" || local.Version() != first.Version {
		t.Errorf("local T1 = %v, want the version the remote holds", local)
	}
	if _, err := h.store.Get(ctx, models.CollectionTasks, "T2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("local T2 after refused create = %v, want ErrNotFound", err)
	}
	if h.pending(t) != 0 {
		t.Error("refused change was queued")
	}
}

func queueOffline(t *testing.T, h *harness, ids ...string) {
	t.Helper()
	h.monitor.Set(false, connectivity.SourceAPI)
	for _, id := range ids {
		if _, err := h.driver.Mutate(context.Background(), models.CollectionTasks, models.ChangeUpdate, taskRecord(id, "pending")); err != nil {
			t.Fatalf("Mutate %s: %v", id, err)
		}
	}
	h.monitor.Set(true, connectivity.SourceAPI)
}

func TestDrain_HaltPolicyStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t, nil)
	queueOffline(t, h, "T1", "T2", "T3")
	h.remote.failFor("T2", fmt.Errorf("%w: status 422", remote.ErrRejected))

	res, err := h.driver.Drain(context.Background())
	if !errors.Is(err, remote.ErrRejected) {
		t.Fatalf("Drain err = %v", err)
	}
	if res.Applied != 1 || res.Failed != 1 || res.Remaining != 2 || !res.Halted {
		t.Errorf("result = %+v", res)
	}

	left, _ := h.queue.ListAll(context.Background())
	if left[0].EntityID != "T2" || left[0].Attempts != 1 || left[0].LastError == "" {
		t.Errorf("head of queue = %+v", left[0])
	}
	if h.driver.Status(context.Background()).RetryAttempts != 1 {
		t.Error("failed drain did not count a retry attempt")
	}

	h.remote.failFor("T2", nil)
	res, err = h.driver.Drain(context.Background())
	if err != nil || res.Applied != 2 || res.Remaining != 0 {
		t.Errorf("second drain = %+v, %v", res, err)
	}
	if h.driver.Status(context.Background()).RetryAttempts != 0 {
		t.Error("successful drain did not reset retry attempts")
	}
}

func TestDrain_SkipEntityContinuesWithOthers(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.DrainPolicy = PolicySkipEntity })
	queueOffline(t, h, "T1", "T2", "T3", "T2")
	h.remote.failFor("T2", fmt.Errorf("%w: status 422", remote.ErrRejected))

	res, _ := h.driver.Drain(context.Background())
	if res.Applied != 2 || res.Failed != 1 || res.Skipped != 1 || res.Remaining != 2 {
		t.Errorf("result = %+v", res)
	}
	left, _ := h.queue.ListAll(context.Background())
	for _, pc := range left {
		if pc.EntityID != "T2" {
			t.Errorf("unexpected entity left: %s", pc.EntityID)
		}
	}
	// The blocked entity's second entry was never sent.
	upserts := 0
	for _, c := range h.remote.callLog() {
		if c == "upsert:T2" {
			upserts++
		}
	}
	if upserts != 1 {
		t.Errorf("T2 sent %d times during drain, want 1", upserts)
	}
}

func TestDrain_UnavailableFlipsOffline(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.DrainPolicy = PolicySkipEntity })
	queueOffline(t, h, "T1", "T2")
	h.remote.failFor("T1", fmt.Errorf("%w: 503", remote.ErrUnavailable))

	res, err := h.driver.Drain(context.Background())
	if !remote.IsUnavailable(err) {
		t.Fatalf("Drain err = %v", err)
	}
	if res.Remaining != 2 || !res.Halted {
		t.Errorf("result = %+v", res)
	}
	if h.monitor.Online() {
		t.Error("monitor still online")
	}
	if _, err := h.driver.Drain(context.Background()); !errors.Is(err, ErrOffline) {
		t.Errorf("Drain while offline = %v, want ErrOffline", err)
	}
}

func TestDrain_ReplayOfAppliedChangeIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	queueOffline(t, h, "T1")

	// Simulate a drain that reached the remote but crashed before removing
	// the entry locally.
	pcs, _ := h.queue.ListAll(ctx)
	if err := h.remote.Memory.Upsert(ctx, models.CollectionTasks, pcs[0].Data); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	writes := h.remote.Writes()

	res, err := h.driver.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Applied != 1 || res.Remaining != 0 {
		t.Errorf("result = %+v", res)
	}
	if h.remote.Writes() != writes {
		t.Error("duplicate replay changed the remote")
	}
}

func TestDrain_RejectConflictPolicyRetains(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ConflictPolicy = ConflictReject })
	ctx := context.Background()
	queueOffline(t, h, "T1")

	pcs, _ := h.queue.ListAll(ctx)
	rec, _ := pcs[0].Data.Clone()
	rec.SetVersion(pcs[0].Version + 1000)
	_ = h.remote.Memory.Upsert(ctx, models.CollectionTasks, rec)

	res, err := h.driver.Drain(ctx)
	if !errors.Is(err, remote.ErrStaleVersion) {
		t.Errorf("Drain err = %v, want stale", err)
	}
	if res.Failed != 1 || res.Remaining != 1 {
		t.Errorf("result = %+v", res)
	}
}

// Under the reject policy a redelivered change must still leave the queue;
// only a genuinely newer remote version is a conflict.
func TestDrain_RejectConflictPolicyAcceptsRedelivery(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ConflictPolicy = ConflictReject })
	ctx := context.Background()
	queueOffline(t, h, "T1", "T2")

	pcs, _ := h.queue.ListAll(ctx)
	if err := h.remote.Memory.Upsert(ctx, models.CollectionTasks, pcs[0].Data); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	res, err := h.driver.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Applied != 2 || res.Failed != 0 || res.Remaining != 0 || res.Halted {
		t.Errorf("result = %+v", res)
	}
}

// An entry folded with a newer change while its older version is on the
// wire stays queued and is replayed by the next drain.
func TestDrain_KeepsEntryFoldedDuringReplay(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	queueOffline(t, h, "T1")

	h.remote.mu.Lock()
	h.remote.beforeWrite = func() {
		newer := taskRecord("T1", "done")
		newer.SetVersion(time.Now().Add(time.Hour).UnixNano())
		if _, err := h.queue.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, newer); err != nil {
			t.Errorf("Enqueue: %v", err)
		}
		if _, err := h.queue.Coalesce(ctx); err != nil {
			t.Errorf("Coalesce: %v", err)
		}
	}
	h.remote.mu.Unlock()

	res, err := h.driver.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Applied != 1 || res.Remaining != 1 {
		t.Fatalf("first drain = %+v, want the folded entry kept", res)
	}
	if h.remoteTask(t, "T1").Status != "pending" {
		t.Fatal("first drain sent the folded data")
	}

	if res, err = h.driver.Drain(ctx); err != nil || res.Applied != 1 || res.Remaining != 0 {
		t.Fatalf("second drain = %+v, %v", res, err)
	}
	if got := h.remoteTask(t, "T1").Status; got != "done" {
		t.Errorf("remote status = %q, want done", got)
	}
}

func TestDrain_CoalescesBeforeReplay(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.CoalesceBeforeReplay = true })
	queueOffline(t, h, "T1", "T1", "T1", "T2")

	res, err := h.driver.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Applied != 2 {
		t.Errorf("applied = %d, want 2 after coalescing", res.Applied)
	}
	if n := len(h.remote.callLog()); n != 2 {
		t.Errorf("remote calls = %d, want 2", n)
	}
}

func TestDrain_DeleteReplaysAsRemove(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeCreate, taskRecord("T9", "pending")); err != nil {
		t.Fatalf("create: %v", err)
	}

	h.monitor.Set(false, connectivity.SourceAPI)
	if _, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeDelete, models.Record{"id": "T9"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.store.Get(ctx, models.CollectionTasks, "T9"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("local record still present: %v", err)
	}

	h.monitor.Set(true, connectivity.SourceAPI)
	if _, err := h.driver.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if _, err := h.remote.Get(ctx, models.CollectionTasks, "T9"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("remote Get after delete = %v", err)
	}
}

func TestDriver_StartDrainsOnReconnect(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.driver.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	queueOffline(t, h) // leaves the monitor online
	h.monitor.Set(false, connectivity.SourcePage)
	for _, id := range []string{"T1", "T2"} {
		if _, err := h.driver.Mutate(ctx, models.CollectionTasks, models.ChangeUpdate, taskRecord(id, "pending")); err != nil {
			t.Fatalf("Mutate: %v", err)
		}
	}

	h.monitor.Set(true, connectivity.SourcePage)

	deadline := time.Now().Add(3 * time.Second)
	for h.pending(t) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained; %d pending", h.pending(t))
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.driver.Stop()
	if h.driver.IsRunning() {
		t.Error("driver running after Stop")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad drain policy", func(c *Config) { c.DrainPolicy = "yolo" }, false},
		{"bad conflict policy", func(c *Config) { c.ConflictPolicy = "merge" }, false},
		{"negative rate", func(c *Config) { c.ReplayRate = -1 }, false},
		{"backoff below base", func(c *Config) { c.MaxBackoff = time.Millisecond }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, ok=%v", err, tt.ok)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 30*time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(base, max, tt.attempt); got != tt.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
