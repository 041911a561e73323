// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package connectivity

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func TestMonitor_SetReportsTransitionsOnly(t *testing.T) {
	m := NewMonitor(true)
	ch, cancel := m.Subscribe()
	defer cancel()

	if m.Set(true, SourcePage) {
		t.Error("Set(true) on an online monitor reported a change")
	}
	if !m.Set(false, SourcePage) {
		t.Fatal("Set(false) did not report a change")
	}

	select {
	case ev := <-ch:
		if ev.Online || ev.Source != SourcePage {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	st := m.State()
	if st.Online || st.Transition != 1 {
		t.Errorf("state = %+v", st)
	}
	if got := testutil.ToFloat64(onlineGauge); got != 0 {
		t.Errorf("connectivity_online = %v, want 0", got)
	}
}

func TestMonitor_SlowSubscriberSeesLatest(t *testing.T) {
	m := NewMonitor(true)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false, SourceAPI)
	m.Set(true, SourceAPI)
	m.Set(false, SourceTransport)

	ev := <-ch
	if ev.Online || ev.Source != SourceTransport {
		t.Errorf("event = %+v, want latest offline/transport", ev)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra event %+v", extra)
	default:
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	m.Set(true, SourceAPI)
	select {
	case ev := <-ch:
		t.Errorf("cancelled subscriber received %+v", ev)
	default:
	}
}

type fakePinger struct {
	fail atomic.Bool
	n    atomic.Int32
}

func (f *fakePinger) Ping(context.Context) error {
	f.n.Add(1)
	if f.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestProber_FeedsMonitor(t *testing.T) {
	m := NewMonitor(true)
	p := &fakePinger{}
	p.fail.Store(true)

	pr := NewProber(m, p, 10*time.Millisecond, 0)
	if err := pr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pr.Stop()

	waitFor(t, func() bool { return !m.Online() })
	p.fail.Store(false)
	waitFor(t, func() bool { return m.Online() })

	pr.Stop()
	if pr.IsRunning() {
		t.Error("prober still running after Stop")
	}
	if m.State().Source != SourceProbe {
		t.Errorf("source = %s, want probe", m.State().Source)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
