// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Changes queued while offline by collection and change type",
		},
		[]string{"collection", "change_type"},
	)

	removedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_removed_total",
		Help: "Queue entries removed after replay",
	})

	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_coalesced_entries_total",
		Help: "Queue entries removed by coalescing",
	})

	fullTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_full_total",
		Help: "Enqueue attempts rejected because the queue was full",
	})

	depthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current number of pending changes",
	})
)
