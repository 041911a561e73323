// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
	syncpkg "github.com/conquerdesigngroup/sop-app-sub000/internal/sync"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/validation"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

// Error codes for API responses
const (
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeTooManyRequests      = "TOO_MANY_REQUESTS"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	ErrCodeStoreError           = "STORE_ERROR"
	ErrCodeWriteLost            = "WRITE_LOST"
	ErrCodeOffline              = "OFFLINE"
	ErrCodeRemoteRejected       = "REMOTE_REJECTED"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodeNoUpdateWaiting      = "NO_UPDATE_WAITING"
	ErrCodeBadRelease           = "BAD_RELEASE"
)

// respondJSON writes response with status. API responses are never cached:
// the cache controller bypasses /api/ and browsers must not keep stale
// pending counts either.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData writes a success envelope carrying the current connectivity
// state and pending count.
func (h *Handler) respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: h.metadata(r.Context()),
	})
}

// respondError writes an error envelope. err, when set, is logged.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	h.respondAPIError(w, r, status, &models.APIError{Code: code, Message: message}, err)
}

func (h *Handler) respondAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError, err error) {
	if err != nil {
		ev := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError {
			ev = logging.Ctx(r.Context()).Error()
		}
		ev.Str("code", apiErr.Code).Str("path", r.URL.Path).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: h.metadata(r.Context()),
		Error:    apiErr,
	})
}

func (h *Handler) metadata(ctx context.Context) models.Metadata {
	md := models.Metadata{Timestamp: time.Now().UTC()}
	if h.driver == nil {
		return md
	}
	md.Online = h.driver.Online()
	if n, err := h.driver.PendingCount(ctx); err == nil {
		md.Pending = n
	} else {
		md.Pending = -1
	}
	return md
}

// respondErr maps a component error to its status and code.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	h.respondError(w, r, status, code, message, err)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, syncpkg.ErrWriteLost):
		return http.StatusServiceUnavailable, ErrCodeWriteLost,
			"The change could not be saved on this device or sent to the server. Try again when storage or the connection is available."
	case errors.Is(err, syncpkg.ErrOffline):
		return http.StatusServiceUnavailable, ErrCodeOffline, "The server is unreachable; changes stay queued until the connection returns"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Record not found"
	case errors.Is(err, store.ErrUnknownCollection):
		return http.StatusNotFound, ErrCodeNotFound, "Unknown collection"
	case errors.Is(err, store.ErrUniqueViolation), errors.Is(err, remote.ErrStaleVersion):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	case errors.Is(err, remote.ErrRejected):
		return http.StatusUnprocessableEntity, ErrCodeRemoteRejected, "The server rejected the change; it is kept on this device"
	case errors.Is(err, syncpkg.ErrInvalidMutation),
		errors.Is(err, store.ErrUnknownIndex),
		errors.Is(err, store.ErrMissingIndexField),
		errors.Is(err, store.ErrInvalidIndexValue),
		errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, queue.ErrInvalidChange):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, update.ErrConfirmationRequired):
		return http.StatusBadRequest, ErrCodeConfirmationRequired, "Purge must be confirmed with {\"confirm\": true}"
	case errors.Is(err, update.ErrNoUpdateWaiting), errors.Is(err, webcache.ErrNoWaitingWorker):
		return http.StatusConflict, ErrCodeNoUpdateWaiting, "No update is waiting"
	case errors.Is(err, webcache.ErrInvalidVersion):
		return http.StatusBadGateway, ErrCodeBadRelease, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeServiceUnavailable, "The operation timed out"
	case store.IsUnavailable(err):
		return http.StatusServiceUnavailable, ErrCodeStoreError, "Local storage is unavailable"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "Internal server error"
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, limit int64, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// decodeRecord reads a bounded JSON object as a record, keeping numbers
// exact.
func decodeRecord(r *http.Request, limit int64) (models.Record, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	rec, err := models.DecodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return rec, nil
}

// validateRequest validates req, writing the error response on failure.
func (h *Handler) validateRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	if verr := validation.ValidateStruct(req); verr != nil {
		h.respondAPIError(w, r, http.StatusBadRequest, verr.ToAPIError(), nil)
		return false
	}
	return true
}

// sanitizeLogValue strips control characters from values that end up in
// log lines.
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// NotFound answers unknown API paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Unknown endpoint", nil)
}

// MethodNotAllowed answers known API paths called with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed", nil)
}
