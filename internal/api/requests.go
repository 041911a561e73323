// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

// Request structs validated with go-playground/validator tags. The
// collection, changetype and semver tags are registered by the validation
// package.

// ListRecordsRequest is the validated path and query of a record listing.
type ListRecordsRequest struct {
	Collection string `json:"collection" validate:"required,collection"`
	Index      string `json:"index" validate:"omitempty,collection,excluded_with=OrderBy"`
	Value      string `json:"value" validate:"required_with=Index"`
	OrderBy    string `json:"order_by" validate:"omitempty,collection"`
}

// RecordPath identifies one record.
type RecordPath struct {
	Collection string `json:"collection" validate:"required,collection"`
	ID         string `json:"id" validate:"required,max=256"`
}

// PendingRequest filters the pending-change listing.
type PendingRequest struct {
	Collection string `json:"collection" validate:"omitempty,collection"`
}

// ConnectivityRequest is the body of POST /api/v1/connectivity.
type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// PurgeRequest is the body of POST /api/v1/purge.
type PurgeRequest struct {
	Confirm bool `json:"confirm"`
}
