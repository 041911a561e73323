// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package remote

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

const maxBodySize = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

// NewHandler serves m over the REST surface Client expects:
//
//	POST   /collections/{collection}/records
//	PUT    /collections/{collection}/records/{id}
//	DELETE /collections/{collection}/records/{id}?version=N
//	GET    /collections/{collection}/records/{id}
//	GET    /collections/{collection}/records
//	GET    /healthz
func NewHandler(m *Memory) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/collections/{collection}/records", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, m.List(chi.URLParam(req, "collection")))
		})
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			rec, ok := readRecord(w, req)
			if !ok {
				return
			}
			writeResult(w, http.StatusCreated, m.Insert(req.Context(), chi.URLParam(req, "collection"), rec))
		})
		r.Put("/{id}", func(w http.ResponseWriter, req *http.Request) {
			rec, ok := readRecord(w, req)
			if !ok {
				return
			}
			if rec.ID() != chi.URLParam(req, "id") {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "id in body does not match path"})
				return
			}
			writeResult(w, http.StatusOK, m.Upsert(req.Context(), chi.URLParam(req, "collection"), rec))
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			version, err := strconv.ParseInt(req.URL.Query().Get("version"), 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "version query parameter required"})
				return
			}
			err = m.Remove(req.Context(), chi.URLParam(req, "collection"), chi.URLParam(req, "id"), version)
			writeResult(w, http.StatusOK, err)
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			rec, err := m.Get(req.Context(), chi.URLParam(req, "collection"), chi.URLParam(req, "id"))
			if err != nil {
				writeResult(w, http.StatusOK, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
	})

	return r
}

func readRecord(w http.ResponseWriter, req *http.Request) (models.Record, bool) {
	data, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return nil, false
	}
	rec, err := models.DecodeRecord(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return nil, false
	}
	return rec, true
}

func writeResult(w http.ResponseWriter, okStatus int, err error) {
	switch {
	case err == nil:
		writeJSON(w, okStatus, map[string]string{"status": "ok"})
	case errors.Is(err, ErrStaleVersion):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ErrRejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal remote response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
