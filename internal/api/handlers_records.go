// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	syncpkg "github.com/conquerdesigngroup/sop-app-sub000/internal/sync"
)

// RecordList is the data of a record listing.
type RecordList struct {
	Collection string          `json:"collection"`
	Count      int             `json:"count"`
	Records    []models.Record `json:"records"`
}

// ListRecords returns the records of a collection, optionally filtered by
// an index value or ordered by an index.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRecordsRequest{
		Collection: chi.URLParam(r, "collection"),
		Index:      q.Get("index"),
		Value:      q.Get("value"),
		OrderBy:    q.Get("order_by"),
	}
	if !h.validateRequest(w, r, &req) || !h.publicCollection(w, r, req.Collection) {
		return
	}

	var (
		recs []models.Record
		err  error
	)
	switch {
	case req.Index != "":
		recs, err = h.store.GetByIndex(r.Context(), req.Collection, req.Index, req.Value)
	case req.OrderBy != "":
		recs, err = h.store.ScanIndex(r.Context(), req.Collection, req.OrderBy)
	default:
		recs, err = h.store.GetAll(r.Context(), req.Collection)
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	h.respondData(w, r, http.StatusOK, RecordList{Collection: req.Collection, Count: len(recs), Records: recs})
}

// GetRecord returns one record from the local store.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	req := recordPath(r)
	if !h.validateRequest(w, r, &req) || !h.publicCollection(w, r, req.Collection) {
		return
	}
	rec, err := h.store.Get(r.Context(), req.Collection, req.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respondData(w, r, http.StatusOK, rec)
}

// CreateRecord records a create. A missing id is generated.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	req := ListRecordsRequest{Collection: collection}
	if !h.validateRequest(w, r, &req) || !h.publicCollection(w, r, collection) {
		return
	}
	rec, err := decodeRecord(r, h.config.MaxBodyBytes)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	h.mutate(w, r, collection, models.ChangeCreate, rec)
}

// UpdateRecord records an update of the record named in the path.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	req := recordPath(r)
	if !h.validateRequest(w, r, &req) || !h.publicCollection(w, r, req.Collection) {
		return
	}
	rec, err := decodeRecord(r, h.config.MaxBodyBytes)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if id := rec.ID(); id != "" && id != req.ID {
		h.respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Body id does not match the path", nil)
		return
	}
	rec[models.FieldID] = req.ID
	h.mutate(w, r, req.Collection, models.ChangeUpdate, rec)
}

// DeleteRecord records a delete.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	req := recordPath(r)
	if !h.validateRequest(w, r, &req) || !h.publicCollection(w, r, req.Collection) {
		return
	}
	h.mutate(w, r, req.Collection, models.ChangeDelete, models.Record{models.FieldID: req.ID})
}

// mutate hands the change to the sync driver. A change that reached the
// remote answers 200 (201 for creates); a queued change answers 202.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, collection string, ct models.ChangeType, rec models.Record) {
	res, err := h.driver.Mutate(r.Context(), collection, ct, rec)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respondData(w, r, mutationStatus(ct, res), res)
}

func mutationStatus(ct models.ChangeType, res *syncpkg.MutationResult) int {
	switch {
	case res.Queued != nil:
		return http.StatusAccepted
	case ct == models.ChangeCreate:
		return http.StatusCreated
	default:
		return http.StatusOK
	}
}

// publicCollection rejects the internal queue collection.
func (h *Handler) publicCollection(w http.ResponseWriter, r *http.Request, collection string) bool {
	if collection == models.CollectionPendingChanges {
		h.respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Unknown collection", nil)
		return false
	}
	return true
}

func recordPath(r *http.Request) RecordPath {
	return RecordPath{
		Collection: chi.URLParam(r, "collection"),
		ID:         chi.URLParam(r, "id"),
	}
}
