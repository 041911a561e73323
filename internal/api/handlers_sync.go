// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/connectivity"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	syncpkg "github.com/conquerdesigngroup/sop-app-sub000/internal/sync"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

// StatusResponse is the data of GET /api/v1/status.
type StatusResponse struct {
	Sync    models.SyncStatus `json:"sync"`
	Stats   syncpkg.Stats     `json:"stats"`
	Worker  webcache.Status   `json:"worker"`
	Update  *update.Status    `json:"update,omitempty"`
	Clients int               `json:"clients"`
	Uptime  float64           `json:"uptime_seconds"`
}

// PendingList is the data of GET /api/v1/pending.
type PendingList struct {
	Count   int                     `json:"count"`
	Changes []*models.PendingChange `json:"changes"`
}

// SyncResponse is the data of POST /api/v1/sync. Replay failures stay
// queued and are reported in Error; the request itself succeeds.
type SyncResponse struct {
	Result syncpkg.DrainResult `json:"result"`
	Error  string              `json:"error,omitempty"`
}

// Status returns connectivity, queue, worker and update state in one call.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Sync:   h.driver.Status(r.Context()),
		Stats:  h.driver.Stats(),
		Uptime: time.Since(h.startTime).Seconds(),
	}
	if h.cache != nil {
		resp.Worker = h.cache.Status()
		if resp.Worker.Active != nil {
			resp.Sync.ActiveVersion = resp.Worker.Active.Version
		}
		if resp.Worker.Waiting != nil {
			resp.Sync.WaitingVersion = resp.Worker.Waiting.Version
		}
		resp.Sync.CacheName = resp.Worker.CacheName
	}
	if h.notifier != nil {
		st := h.notifier.Status()
		resp.Update = &st
	}
	if h.wsHub != nil {
		resp.Clients = h.wsHub.ClientCount()
	}
	h.respondData(w, r, http.StatusOK, resp)
}

// Pending lists queued changes in replay order.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	req := PendingRequest{Collection: r.URL.Query().Get("collection")}
	if !h.validateRequest(w, r, &req) {
		return
	}

	var (
		changes []*models.PendingChange
		err     error
	)
	if req.Collection != "" {
		changes, err = h.queue.ListByCollection(r.Context(), req.Collection)
	} else {
		changes, err = h.queue.ListAll(r.Context())
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if changes == nil {
		changes = []*models.PendingChange{}
	}
	h.respondData(w, r, http.StatusOK, PendingList{Count: len(changes), Changes: changes})
}

// Sync drains the queue now.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.driver.Drain(r.Context())
	if errors.Is(err, syncpkg.ErrOffline) {
		h.respondErr(w, r, err)
		return
	}
	resp := SyncResponse{Result: res}
	if err != nil {
		resp.Error = err.Error()
		logging.Ctx(r.Context()).Warn().Err(err).Int("remaining", res.Remaining).Msg("Manual drain finished with failures")
	}
	h.respondData(w, r, http.StatusOK, resp)
}

// Connectivity records the page's online/offline signal.
func (h *Handler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if err := decodeJSON(r, h.config.MaxBodyBytes, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if !h.validateRequest(w, r, &req) {
		return
	}
	changed := h.driver.SetOnline(r.Context(), *req.Online, connectivity.SourceAPI)
	h.respondData(w, r, http.StatusOK, map[string]bool{"online": h.driver.Online(), "changed": changed})
}
