// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package messaging

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

var publishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "messaging_published_total",
		Help: "Messages published by topic and type",
	},
	[]string{"topic", "type"},
)

// Metadata keys set on published watermill messages.
const (
	MetaType     = "type"
	MetaClientID = "client_id"
)

// Config configures the bus.
type Config struct {
	// OutputChannelBuffer is the per-subscriber buffer.
	OutputChannelBuffer int64
}

// DefaultConfig returns bus defaults.
func DefaultConfig() Config {
	return Config{OutputChannelBuffer: 64}
}

// Bus is an in-process pub/sub. Messages published with no subscriber on
// the topic are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates a bus.
func NewBus(cfg Config) *Bus {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger("watermill"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputChannelBuffer,
		}, logger),
		logger: logger,
	}
}

// Publish encodes m and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, m Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaType, string(m.Type))
	if id := logging.ClientIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetaClientID, id)
	}
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", m.Type, topic, err)
	}
	publishedTotal.WithLabelValues(topic, string(m.Type)).Inc()
	return nil
}

// Emit builds and publishes a worker event. Failures are logged; events
// are advisory and never fail the operation that produced them.
func (b *Bus) Emit(ctx context.Context, t Type, data any) {
	m, err := New(t, data)
	if err == nil {
		err = b.Publish(ctx, TopicWorkerEvents, m)
	}
	if err != nil {
		logging.Warn().Err(err).Str("type", string(t)).Msg("Failed to emit worker event")
	}
}

// Subscribe returns the raw watermill stream for topic. Consumers must Ack
// each message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Subscriber exposes the bus to a watermill router.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// Logger returns the watermill logger adapter.
func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Close closes every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
