// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned by Get for a missing id.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownCollection is returned for a collection not in the schema.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnknownIndex is returned for an index not declared on the collection.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrUniqueViolation is returned when a unique index value is taken.
	ErrUniqueViolation = errors.New("unique index violation")

	// ErrMissingIndexField is returned when a record lacks a field an
	// index of its collection requires.
	ErrMissingIndexField = errors.New("record is missing indexed field")

	// ErrInvalidIndexValue is returned for values that cannot be indexed.
	ErrInvalidIndexValue = errors.New("invalid index value")

	// ErrInvalidRecord is returned for records without a usable id.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrVersionDowngrade is returned by Open when the database was written
	// by a newer schema version.
	ErrVersionDowngrade = errors.New("database schema is newer than requested version")

	// ErrSchemaMismatch is returned by Open when the schema changed without
	// a version bump.
	ErrSchemaMismatch = errors.New("schema changed without version bump")
)

// StoreError wraps every failure returned by Store operations.
//
// Unavailable is true when the engine itself failed (closed, I/O, disk
// full) as opposed to the request being invalid. Callers use it to decide
// whether to skip local durability and go to the remote service directly.
type StoreError struct {
	Op          string
	Collection  string
	ID          string
	Unavailable bool
	Err         error
}

func (e *StoreError) Error() string {
	target := e.Collection
	if e.ID != "" {
		target += "/" + e.ID
	}
	if target != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, target, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a StoreError caused by the engine
// being unusable.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Unavailable
}

// requestErrors are failures caused by the caller, not the engine.
var requestErrors = []error{
	ErrNotFound,
	ErrUnknownCollection,
	ErrUnknownIndex,
	ErrUniqueViolation,
	ErrMissingIndexField,
	ErrInvalidIndexValue,
	ErrInvalidRecord,
	ErrVersionDowngrade,
	ErrSchemaMismatch,
	badger.ErrConflict,
	context.Canceled,
	context.DeadlineExceeded,
}

func wrapErr(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	unavailable := true
	for _, re := range requestErrors {
		if errors.Is(err, re) {
			unavailable = false
			break
		}
	}
	return &StoreError{Op: op, Collection: collection, ID: id, Unavailable: unavailable, Err: err}
}
