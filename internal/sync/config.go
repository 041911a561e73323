// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package sync

import (
	"fmt"
	"time"
)

// DrainPolicy decides what a drain does after a replay failure.
type DrainPolicy string

const (
	// PolicyHalt stops at the first failure; everything after it stays
	// queued in order.
	PolicyHalt DrainPolicy = "halt"

	// PolicySkipEntity blocks the failed entity for the rest of the drain
	// and continues with other entities. Per-entity order is preserved.
	PolicySkipEntity DrainPolicy = "skip-entity"
)

// ConflictPolicy decides how a stale-version answer from the remote is
// treated.
type ConflictPolicy string

const (
	// ConflictLastWriterWins removes the entry as superseded: the remote
	// already holds a newer write.
	ConflictLastWriterWins ConflictPolicy = "last-writer-wins"

	// ConflictReject treats a stale entry as a failure and retains it.
	ConflictReject ConflictPolicy = "reject"
)

// Config configures the Driver.
type Config struct {
	DrainPolicy    DrainPolicy
	ConflictPolicy ConflictPolicy

	// CoalesceBeforeReplay folds each entity's entries before a drain.
	CoalesceBeforeReplay bool

	// ReplayRate bounds replayed changes per second; 0 disables pacing.
	ReplayRate  float64
	ReplayBurst int

	// RetryBase and MaxBackoff shape the retry delay after a failed drain:
	// RetryBase * 2^(attempt-1), capped at MaxBackoff.
	RetryBase  time.Duration
	MaxBackoff time.Duration

	// DrainTimeout bounds one drain. 0 means no limit.
	DrainTimeout time.Duration

	// AppliedCacheSize bounds the set of changes applied remotely but not
	// yet removed locally.
	AppliedCacheSize int
	AppliedCacheTTL  time.Duration
}

// DefaultConfig returns driver defaults.
func DefaultConfig() Config {
	return Config{
		DrainPolicy:          PolicyHalt,
		ConflictPolicy:       ConflictLastWriterWins,
		CoalesceBeforeReplay: false,
		ReplayRate:           20,
		ReplayBurst:          5,
		RetryBase:            2 * time.Second,
		MaxBackoff:           5 * time.Minute,
		DrainTimeout:         5 * time.Minute,
		AppliedCacheSize:     10000,
		AppliedCacheTTL:      24 * time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.DrainPolicy {
	case PolicyHalt, PolicySkipEntity:
	default:
		return fmt.Errorf("sync: unknown drain policy %q", c.DrainPolicy)
	}
	switch c.ConflictPolicy {
	case ConflictLastWriterWins, ConflictReject:
	default:
		return fmt.Errorf("sync: unknown conflict policy %q", c.ConflictPolicy)
	}
	if c.ReplayRate < 0 {
		return fmt.Errorf("sync: replay rate must be >= 0")
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("sync: retry base must be positive")
	}
	if c.MaxBackoff < c.RetryBase {
		return fmt.Errorf("sync: max backoff %v is below retry base %v", c.MaxBackoff, c.RetryBase)
	}
	return nil
}

// Backoff returns the retry delay for the given attempt (1-based).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
