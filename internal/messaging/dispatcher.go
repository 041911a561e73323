// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

var handledTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "messaging_commands_handled_total",
		Help: "Page commands handled by type and result",
	},
	[]string{"type", "result"},
)

// HandlerFunc handles one page command.
type HandlerFunc func(ctx context.Context, m Message) error

// Dispatcher routes page.commands messages to handlers by type.
//
// Handler errors are logged and the message is acked: page commands are
// triggers that the page resends on its next event, so redelivery would
// only duplicate work.
type Dispatcher struct {
	bus      *Bus
	handlers map[Type]HandlerFunc

	mu     sync.Mutex
	router *message.Router
	done   chan struct{}
}

// NewDispatcher creates a dispatcher reading from bus.
func NewDispatcher(bus *Bus) *Dispatcher {
	return &Dispatcher{bus: bus, handlers: make(map[Type]HandlerFunc)}
}

// Handle registers fn for t. It must be called before Start.
func (d *Dispatcher) Handle(t Type, fn HandlerFunc) {
	d.handlers[t] = fn
}

// Start runs the watermill router until ctx is cancelled or Stop is called.
// It returns once the router is running.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.router != nil {
		return nil
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, d.bus.Logger())
	if err != nil {
		return fmt.Errorf("create command router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler("page-commands", TopicPageCommands, d.bus.Subscriber(), d.handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := router.Run(ctx); err != nil {
			logging.Error().Err(err).Msg("Command router stopped with error")
		}
	}()

	select {
	case <-router.Running():
	case <-done:
		return fmt.Errorf("command router exited during startup")
	case <-ctx.Done():
		return ctx.Err()
	}

	d.router = router
	d.done = done
	logging.Info().Int("handlers", len(d.handlers)).Msg("Command dispatcher started")
	return nil
}

// Stop closes the router and waits for it to exit.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	router, done := d.router, d.done
	d.router, d.done = nil, nil
	d.mu.Unlock()

	if router == nil {
		return nil
	}
	err := router.Close()
	<-done
	return err
}

// Dispatch runs the handler for m directly. The router and tests use it.
func (d *Dispatcher) Dispatch(ctx context.Context, m Message) error {
	fn, ok := d.handlers[m.Type]
	if !ok {
		handledTotal.WithLabelValues(string(m.Type), "unhandled").Inc()
		logging.Debug().Str("type", string(m.Type)).Msg("No handler for page command")
		return nil
	}
	if err := fn(ctx, m); err != nil {
		handledTotal.WithLabelValues(string(m.Type), "error").Inc()
		return err
	}
	handledTotal.WithLabelValues(string(m.Type), "ok").Inc()
	return nil
}

func (d *Dispatcher) handle(msg *message.Message) error {
	m, err := Decode(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("Dropping malformed page command")
		return nil
	}

	ctx := msg.Context()
	if id := msg.Metadata.Get(MetaClientID); id != "" {
		ctx = logging.ContextWithClientID(ctx, id)
	}
	if err := d.Dispatch(ctx, m); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", string(m.Type)).Msg("Page command failed")
	}
	return nil
}
