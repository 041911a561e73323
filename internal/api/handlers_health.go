// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"net/http"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

// HealthStatus is the data of the health endpoints.
type HealthStatus struct {
	Status       string  `json:"status"`
	StoreHealthy bool    `json:"store_healthy"`
	Online       bool    `json:"online"`
	Uptime       float64 `json:"uptime_seconds"`
}

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     HealthStatus{Status: "alive", Uptime: time.Since(h.startTime).Seconds()},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// HealthReady reports 503 while the local store cannot be read. An
// unreachable remote does not make the agent unready: serving offline is
// its job.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	_, err := h.driver.PendingCount(r.Context())
	hs := HealthStatus{
		Status:       "ready",
		StoreHealthy: err == nil,
		Online:       h.driver.Online(),
		Uptime:       time.Since(h.startTime).Seconds(),
	}
	status := http.StatusOK
	if err != nil {
		hs.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     hs,
		Metadata: models.Metadata{Timestamp: time.Now().UTC(), Online: hs.Online},
	})
}
