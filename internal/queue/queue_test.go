// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package queue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, cfg)
}

// frozenClock returns the same instant on every call, forcing the
// monotonic guard to do the work.
func frozenClock() func() time.Time {
	at := time.Unix(1_700_000_000, 0)
	return func() time.Time { return at }
}

func rec(id string, version int64, fields ...any) models.Record {
	r := models.Record{"id": id}
	r.SetVersion(version)
	for i := 0; i+1 < len(fields); i += 2 {
		r[fields[i].(string)] = fields[i+1]
	}
	return r
}

func TestEnqueue_FIFOWithFrozenClock(t *testing.T) {
	q := newTestQueue(t, Config{})
	q.now = frozenClock()
	ctx := context.Background()

	var want []string
	for i, id := range []string{"T3", "T1", "T2", "T1"} {
		pc, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec(id, int64(i+1)))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		want = append(want, pc.ID)
	}

	all, err := q.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != len(want) {
		t.Fatalf("ListAll returned %d entries, want %d", len(all), len(want))
	}
	for i, pc := range all {
		if pc.ID != want[i] {
			t.Errorf("position %d: %s, want %s", i, pc.ID, want[i])
		}
		if i > 0 && pc.Timestamp <= all[i-1].Timestamp {
			t.Errorf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestEnqueue_TimestampSurvivesRestart(t *testing.T) {
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	q1 := New(s, Config{})
	q1.now = func() time.Time { return time.Unix(2_000_000_000, 0) }
	first, _ := q1.Enqueue(ctx, models.CollectionTasks, models.ChangeCreate, rec("T1", 1))

	// A new queue whose clock went backwards must still append after.
	q2 := New(s, Config{})
	q2.now = func() time.Time { return time.Unix(1_000_000_000, 0) }
	second, err := q2.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T1", 2))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if second.Timestamp <= first.Timestamp {
		t.Errorf("second timestamp %d not after first %d", second.Timestamp, first.Timestamp)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, models.CollectionTasks, "patch", rec("T1", 1)); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("bad change type: %v", err)
	}
	if _, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeCreate, models.Record{}); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("missing id: %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, models.CollectionTasks, models.ChangeCreate, rec("T1", 1))
	_, _ = q.Enqueue(ctx, models.CollectionSOPs, models.ChangeCreate, rec("S1", 1))

	if err := q.Remove(ctx, a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n, _ := q.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	if err := q.Remove(ctx, a.ID); err != nil {
		t.Errorf("second Remove: %v", err)
	}

	sops, err := q.ListByCollection(ctx, models.CollectionSOPs)
	if err != nil || len(sops) != 1 {
		t.Fatalf("ListByCollection = %v, %v", sops, err)
	}

	if err := q.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Errorf("Count after ClearAll = %d", n)
	}
}

func TestMarkFailed(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	pc, _ := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T1", 1))
	if err := q.MarkFailed(ctx, pc.ID, errors.New("503 from remote")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	_ = q.MarkFailed(ctx, pc.ID, errors.New("timeout"))

	all, _ := q.ListAll(ctx)
	if all[0].Attempts != 2 || all[0].LastError != "timeout" {
		t.Errorf("attempts=%d last_error=%q", all[0].Attempts, all[0].LastError)
	}
	if err := q.MarkFailed(ctx, "missing", nil); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("MarkFailed missing = %v", err)
	}
}

func TestPendingChange_PreservesLargeVersion(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	const v int64 = 1_760_000_000_123_456_789
	_, _ = q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T1", v))

	all, _ := q.ListAll(ctx)
	if all[0].Version != v || all[0].Data.Version() != v {
		t.Errorf("version = %d / data version = %d, want %d", all[0].Version, all[0].Data.Version(), v)
	}
}

func TestCoalesce_Rules(t *testing.T) {
	c, u, d := models.ChangeCreate, models.ChangeUpdate, models.ChangeDelete
	tests := []struct {
		name    string
		changes []models.ChangeType
		want    models.ChangeType // "" means dropped
	}{
		{"create then updates", []models.ChangeType{c, u, u}, c},
		{"updates", []models.ChangeType{u, u}, u},
		{"create then delete", []models.ChangeType{c, u, d}, ""},
		{"update then delete", []models.ChangeType{u, d}, d},
		{"delete then create", []models.ChangeType{d, c}, u},
		{"dropped then recreated", []models.ChangeType{c, d, c, u}, c},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQueue(t, Config{})
			q.now = frozenClock()
			ctx := context.Background()

			var firstTS int64
			for i, ct := range tt.changes {
				pc, err := q.Enqueue(ctx, models.CollectionTasks, ct, rec("T1", int64(i+1), "step", i))
				if err != nil {
					t.Fatalf("Enqueue: %v", err)
				}
				if i == 0 {
					firstTS = pc.Timestamp
				}
			}
			// An unrelated entity is left alone.
			_, _ = q.Enqueue(ctx, models.CollectionSOPs, models.ChangeCreate, rec("S1", 1))

			if _, err := q.Coalesce(ctx); err != nil {
				t.Fatalf("Coalesce: %v", err)
			}
			got, _ := q.ListByCollection(ctx, models.CollectionTasks)

			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("expected entity dropped, got %d entries", len(got))
				}
			} else {
				if len(got) != 1 {
					t.Fatalf("got %d entries, want 1", len(got))
				}
				if got[0].ChangeType != tt.want {
					t.Errorf("change type = %s, want %s", got[0].ChangeType, tt.want)
				}
				if got[0].Timestamp != firstTS {
					t.Errorf("folded entry moved: timestamp %d, want %d", got[0].Timestamp, firstTS)
				}
				// The id names the folded type, not the first entry's.
				if wantID := models.PendingChangeID(models.CollectionTasks, tt.want, "T1", firstTS); got[0].ID != wantID {
					t.Errorf("id = %s, want %s", got[0].ID, wantID)
				}
				if got[0].Version != int64(len(tt.changes)) {
					t.Errorf("version = %d, want last (%d)", got[0].Version, len(tt.changes))
				}
			}
			if sops, _ := q.ListByCollection(ctx, models.CollectionSOPs); len(sops) != 1 {
				t.Errorf("unrelated entity touched: %d entries", len(sops))
			}
		})
	}
}

func TestEnqueue_CapCoalescesThenRejects(t *testing.T) {
	q := newTestQueue(t, Config{MaxEntries: 3})
	ctx := context.Background()

	// Three updates to one entity fill the queue; the fourth coalesces them.
	for i := 1; i <= 4; i++ {
		if _, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T1", int64(i))); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if n, _ := q.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2 after coalescing", n)
	}

	// T1 folds to one entry again, then distinct entities fill the cap.
	_, _ = q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T2", 1))
	if _, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T3", 1)); err != nil {
		t.Fatalf("Enqueue T3: %v", err)
	}
	_, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T4", 1))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue over cap = %v, want ErrQueueFull", err)
	}
}

func TestRemoveReplayed_KeepsFoldedEntry(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()

	replayed, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T1", 1, "status", "pending"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, models.CollectionTasks, models.ChangeUpdate, rec("T1", 2, "status", "done")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// Folding while the first entry is in flight reuses its id.
	if _, err := q.Coalesce(ctx); err != nil {
		t.Fatalf("Coalesce: %v", err)
	}

	removed, err := q.RemoveReplayed(ctx, replayed)
	if err != nil {
		t.Fatalf("RemoveReplayed: %v", err)
	}
	if removed {
		t.Fatal("folded entry removed by the replay of its older version")
	}
	all, _ := q.ListAll(ctx)
	if len(all) != 1 || all[0].ID != replayed.ID || all[0].Version != 2 {
		t.Fatalf("queue = %+v, want the folded entry at version 2", all)
	}

	if removed, err = q.RemoveReplayed(ctx, all[0]); err != nil || !removed {
		t.Errorf("RemoveReplayed(current) = %v, %v", removed, err)
	}
	if removed, err = q.RemoveReplayed(ctx, all[0]); err != nil || removed {
		t.Errorf("RemoveReplayed(missing) = %v, %v, want false, nil", removed, err)
	}
}
