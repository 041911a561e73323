// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"net/http"
)

// UpdateCheck fetches the published release now.
func (h *Handler) UpdateCheck(w http.ResponseWriter, r *http.Request) {
	if !h.requireNotifier(w, r) {
		return
	}
	res, err := h.notifier.Check(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respondData(w, r, http.StatusOK, res)
}

// SkipWaiting activates the waiting release; pages reload on RELOAD.
func (h *Handler) SkipWaiting(w http.ResponseWriter, r *http.Request) {
	if !h.requireNotifier(w, r) {
		return
	}
	worker, err := h.notifier.Accept(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respondData(w, r, http.StatusOK, worker.Info())
}

// PurgePreview reports what a purge would discard.
func (h *Handler) PurgePreview(w http.ResponseWriter, r *http.Request) {
	if !h.requireNotifier(w, r) {
		return
	}
	preview, err := h.notifier.PurgePreview(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respondData(w, r, http.StatusOK, preview)
}

// Purge deletes caches, workers and all local data. The body must be
// {"confirm": true}.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	if !h.requireNotifier(w, r) {
		return
	}
	var req PurgeRequest
	if err := decodeJSON(r, h.config.MaxBodyBytes, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	report, err := h.notifier.Purge(r.Context(), req.Confirm)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respondData(w, r, http.StatusOK, report)
}

func (h *Handler) requireNotifier(w http.ResponseWriter, r *http.Request) bool {
	if h.notifier == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Update handling is disabled", nil)
		return false
	}
	return true
}
