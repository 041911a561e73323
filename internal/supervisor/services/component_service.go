// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package services

import (
	"context"
	"fmt"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

// Component is a background component with a Start/Stop lifecycle: Start
// spawns its goroutines and returns, Stop blocks until they exit.
// The sync driver, the connectivity prober, the update notifier, the event
// bridge and the storage GC loops all follow it.
type Component interface {
	Start(ctx context.Context) error
	Stop()
}

// ErrComponent is a Component whose Stop reports an error.
type ErrComponent interface {
	Start(ctx context.Context) error
	Stop() error
}

// ComponentService runs a Component under supervision.
type ComponentService struct {
	name  string
	start func(ctx context.Context) error
	stop  func() error
}

// NewComponentService wraps c as the service called name.
func NewComponentService(name string, c Component) *ComponentService {
	return &ComponentService{
		name:  name,
		start: c.Start,
		stop: func() error {
			c.Stop()
			return nil
		},
	}
}

// NewErrComponentService wraps c as the service called name.
func NewErrComponentService(name string, c ErrComponent) *ComponentService {
	return &ComponentService{name: name, start: c.Start, stop: c.Stop}
}

// Serve starts the component, waits for ctx and stops it. A failed Start
// is returned so the supervisor restarts the service with backoff.
func (s *ComponentService) Serve(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}
	logging.Debug().Str("service", s.name).Msg("Service started")

	<-ctx.Done()

	if err := s.stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	logging.Debug().Str("service", s.name).Msg("Service stopped")
	return ctx.Err()
}

func (s *ComponentService) String() string {
	return s.name
}
