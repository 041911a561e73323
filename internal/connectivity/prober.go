// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

// Pinger checks reachability of the remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober periodically pings the remote and feeds the result to a Monitor.
// It is for deployments without a page that reports connectivity.
type Prober struct {
	monitor  *Monitor
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewProber creates a prober. timeout bounds each ping; 0 uses interval.
func NewProber(m *Monitor, p Pinger, interval, timeout time.Duration) *Prober {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{monitor: m, pinger: p, interval: interval, timeout: timeout}
}

// Start probes once immediately, then every interval until Stop.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(loopCtx, p.done)
	logging.Info().Dur("interval", p.interval).Msg("Connectivity prober started")
	return nil
}

// Stop halts the prober and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	done := p.done
	p.mu.Unlock()

	<-done
	logging.Info().Msg("Connectivity prober stopped")
}

// IsRunning reports whether the loop is active.
func (p *Prober) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Prober) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logging.Debug().Err(err).Msg("Connectivity probe failed")
	}
	p.monitor.Set(err == nil, SourceProbe)
}
