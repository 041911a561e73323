// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package update

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/storage"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// releaseServer serves the version document and a tiny app.
type releaseServer struct {
	srv     *httptest.Server
	version atomic.Value
	broken  atomic.Bool
}

func newReleaseServer(t *testing.T, version string) *releaseServer {
	t.Helper()
	rs := &releaseServer{}
	rs.version.Store(version)
	mux := http.NewServeMux()
	mux.HandleFunc("/version.json", func(w http.ResponseWriter, r *http.Request) {
		if rs.broken.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"version":"`+rs.version.Load().(string)+`","manifest":["/","/app.js"]}`)
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "const v='"+rs.version.Load().(string)+"'")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>home</html>")
	})
	rs.srv = httptest.NewServer(mux)
	t.Cleanup(rs.srv.Close)
	return rs
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []messaging.Type
	data   []any
}

func (e *recordingEmitter) Emit(_ context.Context, t messaging.Type, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, t)
	e.data = append(e.data, data)
}

func (e *recordingEmitter) of(t messaging.Type) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []any
	for i, got := range e.events {
		if got == t {
			out = append(out, e.data[i])
		}
	}
	return out
}

type harness struct {
	rs       *releaseServer
	ctrl     *webcache.Controller
	store    *store.Store
	queue    *queue.Queue
	events   *recordingEmitter
	notifier *Notifier
}

func newHarness(t *testing.T, version string) *harness {
	t.Helper()
	rs := newReleaseServer(t, version)

	cacheStorage, err := webcache.OpenStorage(storage.InMemoryConfig())
	if err != nil {
		t.Fatalf("OpenStorage: %v", err)
	}
	t.Cleanup(func() { _ = cacheStorage.Close() })

	events := &recordingEmitter{}
	cfg := webcache.DefaultConfig(rs.srv.URL)
	cfg.OfflineDocument = ""
	ctrl, err := webcache.NewController(cfg, cacheStorage, events)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	q := queue.New(s, queue.DefaultConfig())

	ucfg := DefaultConfig(rs.srv.URL + "/version.json")
	ucfg.Interval = 20 * time.Millisecond
	n := NewNotifier(ucfg, ctrl, NewPurger(ctrl, q, s), events)
	return &harness{rs: rs, ctrl: ctrl, store: s, queue: q, events: events, notifier: n}
}

func TestNotifier_InstallAnnounceAccept(t *testing.T) {
	h := newHarness(t, "1.0.2")
	ctx := context.Background()

	res, err := h.notifier.Check(ctx)
	if err != nil {
		t.Fatalf("first Check: %v", err)
	}
	if !res.Installed || res.Waiting {
		t.Errorf("first install = %+v, want installed and active", res)
	}
	if got := h.events.of(messaging.TypeUpdateAvailable); len(got) != 0 {
		t.Errorf("first install announced an update: %v", got)
	}

	if res, err := h.notifier.Check(ctx); err != nil || res.Installed {
		t.Errorf("unchanged release = %+v, %v", res, err)
	}

	h.rs.version.Store("1.0.3")
	res, err = h.notifier.Check(ctx)
	if err != nil {
		t.Fatalf("Check 1.0.3: %v", err)
	}
	if !res.Installed || !res.Waiting {
		t.Fatalf("new release = %+v, want installed and waiting", res)
	}
	announced := h.events.of(messaging.TypeUpdateAvailable)
	if len(announced) != 1 {
		t.Fatalf("UPDATE_AVAILABLE emitted %d times", len(announced))
	}
	if got := announced[0].(messaging.UpdateAvailable); got.Version != "1.0.3" || got.Current != "1.0.2" {
		t.Errorf("announcement = %+v", got)
	}
	if testutil.ToFloat64(availableGauge) != 1 {
		t.Error("update_available gauge not set")
	}

	// Polling again neither reinstalls nor re-announces.
	if _, err := h.notifier.Check(ctx); err != nil {
		t.Fatalf("repeat Check: %v", err)
	}
	if n := len(h.events.of(messaging.TypeUpdateAvailable)); n != 1 {
		t.Errorf("UPDATE_AVAILABLE emitted %d times after repeat", n)
	}

	w, err := h.notifier.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if w.Version() != "1.0.3" || h.ctrl.Active() != w {
		t.Errorf("active after accept = %v", h.ctrl.Active().Info())
	}
	reloads := h.events.of(messaging.TypeReload)
	if len(reloads) != 1 || reloads[0].(messaging.Reload).Reason != "update" {
		t.Errorf("reloads = %v", reloads)
	}
	if names, _ := h.ctrl.CacheNames(); len(names) != 1 || names[0] != "sop-app-v1.0.3" {
		t.Errorf("caches after accept = %v", names)
	}

	if _, err := h.notifier.Accept(ctx); !errors.Is(err, ErrNoUpdateWaiting) {
		t.Errorf("second Accept = %v, want ErrNoUpdateWaiting", err)
	}
}

func TestNotifier_IgnoresOlderRelease(t *testing.T) {
	h := newHarness(t, "2.0.0")
	ctx := context.Background()
	if _, err := h.notifier.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
	h.rs.version.Store("1.9.9")
	res, err := h.notifier.Check(ctx)
	if err != nil {
		t.Fatalf("Check older: %v", err)
	}
	if res.Installed || h.ctrl.Waiting() != nil || h.ctrl.Active().Version() != "2.0.0" {
		t.Errorf("older release changed workers: %+v", res)
	}
}

func TestNotifier_CheckErrors(t *testing.T) {
	h := newHarness(t, "1.0.0")
	before := testutil.ToFloat64(checksTotal.WithLabelValues("error"))

	h.rs.broken.Store(true)
	if _, err := h.notifier.Check(context.Background()); err == nil {
		t.Fatal("Check with broken server succeeded")
	}
	h.rs.broken.Store(false)
	h.rs.version.Store("not-a-version")
	if _, err := h.notifier.Check(context.Background()); !errors.Is(err, webcache.ErrInvalidVersion) {
		t.Errorf("Check with bad version = %v", err)
	}

	if got := testutil.ToFloat64(checksTotal.WithLabelValues("error")) - before; got != 2 {
		t.Errorf("error checks = %v, want 2", got)
	}
	if st := h.notifier.Status(); st.LastError == "" || st.LastCheck.IsZero() {
		t.Errorf("Status = %+v", st)
	}
	if h.ctrl.Active() != nil {
		t.Error("failed checks installed a release")
	}
}

func TestNotifier_Purge(t *testing.T) {
	h := newHarness(t, "1.0.0")
	ctx := context.Background()
	if _, err := h.notifier.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}

	task, err := models.ToRecord(models.Task{ID: "T1", Status: "pending", ScheduledDate: "2026-03-01"})
	if err != nil {
		t.Fatalf("ToRecord: %v", err)
	}
	if err := h.store.Put(ctx, models.CollectionTasks, task); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := h.queue.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	preview, err := h.notifier.PurgePreview(ctx)
	if err != nil {
		t.Fatalf("PurgePreview: %v", err)
	}
	if preview.PendingChanges != 1 || len(preview.Caches) != 1 || preview.Warning == "" {
		t.Errorf("preview = %+v", preview)
	}

	if _, err := h.notifier.Purge(ctx, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unconfirmed Purge = %v", err)
	}
	if n, _ := h.queue.Count(ctx); n != 1 {
		t.Fatal("unconfirmed purge touched the queue")
	}

	report, err := h.notifier.Purge(ctx, true)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if report.DiscardedChanges != 1 || len(report.CachesDeleted) != 1 {
		t.Errorf("report = %+v", report)
	}
	if n, _ := h.queue.Count(ctx); n != 0 {
		t.Errorf("pending after purge = %d", n)
	}
	if _, err := h.store.Get(ctx, models.CollectionTasks, "T1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record after purge: %v", err)
	}
	if names, _ := h.ctrl.CacheNames(); len(names) != 0 {
		t.Errorf("caches after purge = %v", names)
	}
	if h.ctrl.Active() != nil {
		t.Error("worker still active after purge")
	}
	reloads := h.events.of(messaging.TypeReload)
	if len(reloads) != 1 || reloads[0].(messaging.Reload).Reason != "purge" {
		t.Errorf("reloads = %v", reloads)
	}
}

func TestNotifier_StartStop(t *testing.T) {
	h := newHarness(t, "1.0.0")

	if err := h.notifier.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !h.notifier.IsRunning() {
		t.Fatal("not running after Start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.ctrl.Active() == nil {
		if time.Now().After(deadline) {
			t.Fatal("poller never installed the release")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.notifier.Stop()
	h.notifier.Stop()
	if h.notifier.IsRunning() {
		t.Error("running after Stop")
	}
}

func TestNotifier_PollingDisabled(t *testing.T) {
	h := newHarness(t, "1.0.0")
	h.notifier.cfg.Interval = 0
	if err := h.notifier.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.notifier.IsRunning() {
		t.Error("disabled poller reports running")
	}
}
