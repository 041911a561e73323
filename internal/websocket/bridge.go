// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package websocket

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
)

// EventSource yields the worker event stream.
type EventSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Bridge forwards worker events from the bus to every page.
type Bridge struct {
	hub    *Hub
	source EventSource

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBridge creates a bridge from source to hub.
func NewBridge(hub *Hub, source EventSource) *Bridge {
	return &Bridge{hub: hub, source: source}
}

// Start subscribes to worker events and begins forwarding.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := b.source.Subscribe(ctx, messaging.TopicWorkerEvents)
	if err != nil {
		cancel()
		return err
	}
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true
	go b.forward(events, b.done)

	logging.Info().Msg("Worker event bridge started")
	return nil
}

// Stop ends the subscription and waits for the forwarder.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.cancel()
	done := b.done
	b.mu.Unlock()

	<-done
	logging.Info().Msg("Worker event bridge stopped")
}

// IsRunning reports whether the bridge is forwarding.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bridge) forward(events <-chan *message.Message, done chan struct{}) {
	defer close(done)
	for msg := range events {
		m, err := messaging.Decode(msg.Payload)
		if err != nil {
			logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("Dropping malformed worker event")
		} else {
			b.hub.Broadcast(m)
		}
		msg.Ack()
	}
}
