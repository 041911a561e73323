// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_mutations_total",
			Help: "Mutations by outcome (applied, queued, superseded, failed)",
		},
		[]string{"outcome"},
	)

	localWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_local_write_failures_total",
		Help: "Mutations whose local store write failed",
	})

	drainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_drains_total",
			Help: "Queue drains by result",
		},
		[]string{"result"},
	)

	replayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_replayed_total",
			Help: "Replayed pending changes by result",
		},
		[]string{"result"},
	)

	drainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_drain_duration_seconds",
		Help:    "Duration of queue drains",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	retryAttemptsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_retry_attempts",
		Help: "Consecutive failed drains since the last success",
	})
)
