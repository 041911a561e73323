// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package websocket

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/messaging"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

var (
	clientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_clients",
		Help: "Connected pages",
	})

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_total",
			Help: "Websocket messages by direction (in, out, dropped)",
		},
		[]string{"direction"},
	)
)

// CommandPublisher receives messages sent by pages.
type CommandPublisher interface {
	Publish(ctx context.Context, topic string, m messaging.Message) error
}

// Hub tracks connected pages and fans worker events out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan messaging.Message
	Register   chan *Client
	Unregister chan *Client
	commands   CommandPublisher
	mu         sync.RWMutex
}

// NewHub creates a hub. Page messages are published through commands;
// a nil commands drops them.
func NewHub(commands CommandPublisher) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan messaging.Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		commands:   commands,
	}
}

// RunWithContext runs the hub until ctx is done, then closes every client.
//
// Shutdown is checked first and lifecycle events are drained before
// broadcasts, so a message is never sent to a client that already left.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case m := <-h.broadcast:
			h.broadcastToClients(m)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	clientsGauge.Set(float64(n))
	logging.Info().Str("client_id", c.id).Int("total_clients", n).Msg("Page connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	clientsGauge.Set(float64(n))
	logging.Info().Str("client_id", c.id).Int("total_clients", n).Msg("Page disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	n := h.ClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", n).
		Msg("Websocket hub stopped")
}

// broadcastToClients sends m to every client in connection order. Clients
// with a full buffer are dropped.
func (h *Hub) broadcastToClients(m messaging.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })

	for _, c := range clients {
		select {
		case c.send <- m:
			messagesTotal.WithLabelValues("out").Inc()
		default:
			close(c.send)
			delete(h.clients, c)
			messagesTotal.WithLabelValues("dropped").Inc()
			logging.Warn().Str("client_id", c.id).Msg("Page too slow; disconnecting")
		}
	}
	clientsGauge.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	clientsGauge.Set(0)
}

// Broadcast queues m for every page. It never blocks.
func (h *Hub) Broadcast(m messaging.Message) {
	select {
	case h.broadcast <- m:
	default:
		messagesTotal.WithLabelValues("dropped").Inc()
		logging.Warn().Str("type", string(m.Type)).Msg("Broadcast channel full, dropping message")
	}
}

// command publishes a page message as a page command.
func (h *Hub) command(c *Client, m messaging.Message) {
	messagesTotal.WithLabelValues("in").Inc()
	if h.commands == nil {
		return
	}
	ctx := logging.ContextWithClientID(context.Background(), c.id)
	if err := h.commands.Publish(ctx, messaging.TopicPageCommands, m); err != nil {
		logging.Warn().Err(err).Str("client_id", c.id).Str("type", string(m.Type)).Msg("Publishing page command failed")
	}
}

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the page to hub.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := NewClient(hub, conn)
	hub.Register <- client
	client.Start()
	return nil
}
