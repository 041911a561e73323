// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package messaging is the only channel between the worker side of the agent
// (sync driver, cache controller, update notifier) and the pages it serves.
//
// Two topics carry JSON-encoded Messages over an in-process watermill pub/sub:
//
//	worker.events   worker -> page (UPDATE_AVAILABLE, RELOAD, SYNC_STATUS, ...)
//	page.commands   page -> worker (SYNC_OFFLINE_CHANGES, SKIP_WAITING, ONLINE, ...)
//
// The websocket hub bridges both topics to connected browsers.
package messaging

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Topics.
const (
	TopicWorkerEvents = "worker.events"
	TopicPageCommands = "page.commands"
)

// Type identifies a message.
type Type string

// Message types.
const (
	// Page -> worker.
	TypeSyncOfflineChanges Type = "SYNC_OFFLINE_CHANGES"
	TypeSkipWaiting        Type = "SKIP_WAITING"
	TypeOnline             Type = "ONLINE"
	TypeOffline            Type = "OFFLINE"

	// Worker -> page.
	TypeUpdateAvailable   Type = "UPDATE_AVAILABLE"
	TypeControllerChanged Type = "CONTROLLER_CHANGED"
	TypeReload            Type = "RELOAD"
	TypeSyncStatus        Type = "SYNC_STATUS"
)

// Message is the envelope exchanged on both topics.
type Message struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds a message with data encoded as JSON. A nil data leaves the
// payload empty.
func New(t Type, data any) (Message, error) {
	m := Message{Type: t}
	if data == nil {
		return m, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return m, fmt.Errorf("encode %s payload: %w", t, err)
	}
	m.Data = raw
	return m, nil
}

// Decode parses a message envelope.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return m, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// Bind decodes the payload into out.
func (m Message) Bind(out any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return fmt.Errorf("%s payload: %w", m.Type, err)
	}
	return nil
}

// Encode returns the JSON envelope.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// UpdateAvailable is the UPDATE_AVAILABLE payload.
type UpdateAvailable struct {
	Version string `json:"version"`
	Current string `json:"current,omitempty"`
}

// ControllerChanged is the CONTROLLER_CHANGED payload.
type ControllerChanged struct {
	Version   string `json:"version"`
	CacheName string `json:"cache_name"`
}

// Reload is the RELOAD payload.
type Reload struct {
	Reason string `json:"reason"`
}
