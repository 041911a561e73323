// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Local store operations by operation and result (ok, error, unavailable)",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Local store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"op"},
	)

	conflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_conflict_retries_total",
		Help: "Transactions retried after a Badger write conflict",
	})

	gcRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_gc_runs_total",
		Help: "Value log garbage collection passes on the local store",
	})
)

func observe(op string, start time.Time, err error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
		if IsUnavailable(wrapErr(op, "", "", err)) {
			result = "unavailable"
		}
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
