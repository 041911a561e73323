// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeComponent struct {
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (c *fakeComponent) Start(context.Context) error {
	c.starts.Add(1)
	return c.startErr
}

func (c *fakeComponent) Stop() { c.stops.Add(1) }

type fakeErrComponent struct {
	fakeComponent
	stopErr error
}

func (c *fakeErrComponent) Stop() error {
	c.stops.Add(1)
	return c.stopErr
}

func TestComponentService_StartWaitStop(t *testing.T) {
	c := &fakeComponent{}
	svc := NewComponentService("sync-driver", c)
	if svc.String() != "sync-driver" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if c.starts.Load() != 1 || c.stops.Load() != 0 {
		t.Fatalf("while running: starts=%d stops=%d", c.starts.Load(), c.stops.Load())
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if c.stops.Load() != 1 {
		t.Errorf("Stop called %d times", c.stops.Load())
	}
}

func TestComponentService_StartFailure(t *testing.T) {
	c := &fakeComponent{startErr: errors.New("store closed")}
	err := NewComponentService("store-gc", c).Serve(context.Background())
	if !errors.Is(err, c.startErr) {
		t.Errorf("Serve = %v, want start error", err)
	}
	if c.stops.Load() != 0 {
		t.Error("Stop called after failed Start")
	}
}

func TestErrComponentService_StopError(t *testing.T) {
	c := &fakeErrComponent{stopErr: errors.New("subscriber stuck")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewErrComponentService("page-commands", c).Serve(ctx); !errors.Is(err, c.stopErr) {
		t.Errorf("Serve = %v, want stop error", err)
	}
}
