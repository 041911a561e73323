// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package webcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webcache_requests_total",
			Help: "Requests served by the cache controller by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	installFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcache_install_failures_total",
		Help: "Manifest URLs that could not be precached during install",
	})

	activationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcache_activations_total",
		Help: "Worker activations",
	})
)
