// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "update_checks_total",
			Help: "Release checks by result (current, installed, error)",
		},
		[]string{"result"},
	)

	availableGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "update_available",
		Help: "1 while an installed release is waiting for activation",
	})

	purgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "update_purges_total",
			Help: "Purges by result",
		},
		[]string{"result"},
	)
)
