// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package models defines the records persisted by the local store, the typed
// views over them, and the pending-change entries replayed to the remote
// data service.
package models

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Collection names.
const (
	CollectionSOPs           = "sops"
	CollectionTasks          = "tasks"
	CollectionTemplates      = "templates"
	CollectionUsers          = "users"
	CollectionPendingChanges = "pending_changes"
)

// Record field names shared by every collection.
const (
	FieldID      = "id"
	FieldVersion = "version"
)

// ErrMissingID is returned when a record has no usable id.
var ErrMissingID = errors.New("record has no id")

// Record is one entity as stored: a JSON object keyed by field name.
// Numbers decode as json.Number so large integers (versions, nanosecond
// timestamps) survive a round trip without float rounding.
type Record map[string]any

// ID returns the record id, or "" when absent or not a string.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Version returns the record's sync version, 0 when unset.
func (r Record) Version() int64 {
	v, _ := Int64(r[FieldVersion])
	return v
}

// SetVersion stores v in the version field.
func (r Record) SetVersion(v int64) {
	r[FieldVersion] = v
}

// Clone returns a deep copy made through the JSON encoding.
func (r Record) Clone() (Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("clone record: %w", err)
	}
	return DecodeRecord(data)
}

// DecodeRecord parses a JSON object into a Record.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if r == nil {
		return nil, errors.New("decode record: not a JSON object")
	}
	return r, nil
}

// ToRecord converts any JSON-encodable value (usually one of the typed
// entities) to a Record.
func ToRecord(v any) (Record, error) {
	if r, ok := v.(Record); ok {
		return r, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return DecodeRecord(data)
}

// FromRecord decodes r into out, which must be a pointer.
func FromRecord(r Record, out any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}

// Int64 converts the numeric representations a Record may hold.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
