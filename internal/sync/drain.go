// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package sync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/connectivity"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
)

// DrainResult summarises one drain.
type DrainResult struct {
	Applied    int `json:"applied"`
	Superseded int `json:"superseded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Remaining  int `json:"remaining"`

	// Halted is true when the drain stopped before the end of the queue.
	Halted bool `json:"halted"`
}

type replayOutcome int

const (
	outcomeApplied replayOutcome = iota
	outcomeSuperseded
	outcomeFailed
	outcomeUnavailable
)

type drainRun struct {
	res      DrainResult
	startGen uint64
}

// Drain replays queued changes in timestamp order. Concurrent calls share a
// single drain and its result, but a caller never settles for a drain that
// began reading the queue before the call was made.
func (d *Driver) Drain(ctx context.Context) (DrainResult, error) {
	want := d.drainGen.Add(1)
	for {
		ch := d.drains.DoChan("drain", func() (any, error) {
			start := d.drainGen.Load()
			dctx, cancel := d.drainContext(ctx)
			defer cancel()
			res, err := d.drain(dctx)
			return drainRun{res: res, startGen: start}, err
		})

		select {
		case r := <-ch:
			run, _ := r.Val.(drainRun)
			if run.startGen >= want {
				return run.res, r.Err
			}
		case <-ctx.Done():
			return DrainResult{}, ctx.Err()
		}
	}
}

// drainContext detaches the drain from the caller that happened to start
// it. The drain is bounded by DrainTimeout and the driver lifecycle.
func (d *Driver) drainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if d.cfg.DrainTimeout > 0 {
		var cancelTimeout context.CancelFunc
		dctx, cancelTimeout = context.WithTimeout(dctx, d.cfg.DrainTimeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}
	d.mu.Lock()
	loopCtx := d.loopCtx
	d.mu.Unlock()
	if loopCtx != nil {
		var cancelMerge context.CancelFunc
		dctx, cancelMerge = mergeCancel(dctx, loopCtx)
		prev := cancel
		cancel = func() { cancelMerge(); prev() }
	}
	return dctx, cancel
}

func (d *Driver) drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	if !d.monitor.Online() {
		res.Remaining, _ = d.queue.Count(ctx)
		return res, ErrOffline
	}

	start := time.Now()
	defer func() { drainDuration.Observe(time.Since(start).Seconds()) }()

	if d.cfg.CoalesceBeforeReplay {
		if _, err := d.queue.Coalesce(ctx); err != nil {
			logging.Warn().Err(err).Msg("Coalescing before replay failed; replaying entries as queued")
		}
	}

	entries, err := d.queue.ListAll(ctx)
	if err != nil {
		d.finishDrain(ctx, res, err)
		return res, err
	}
	if len(entries) == 0 {
		d.finishDrain(ctx, res, nil)
		return res, nil
	}

	logging.Info().Int("pending", len(entries)).Str("policy", string(d.cfg.DrainPolicy)).Msg("Draining pending changes")

	blocked := make(map[string]bool)
	var drainErr error

replay:
	for i, pc := range entries {
		if err := ctx.Err(); err != nil {
			drainErr = err
			res.Halted = true
			break
		}
		key := pc.EntityKey()
		if blocked[key] {
			res.Skipped++
			continue
		}

		switch outcome, err := d.replay(ctx, pc); outcome {
		case outcomeApplied:
			res.Applied++
		case outcomeSuperseded:
			res.Superseded++
		case outcomeUnavailable:
			res.Failed++
			res.Halted = i < len(entries)-1
			drainErr = err
			d.monitor.Set(false, connectivity.SourceTransport)
			break replay
		case outcomeFailed:
			res.Failed++
			drainErr = err
			if d.cfg.DrainPolicy == PolicyHalt {
				res.Halted = i < len(entries)-1
				break replay
			}
			blocked[key] = true
		}
	}

	res.Remaining, _ = d.queue.Count(ctx)
	d.finishDrain(ctx, res, drainErr)

	logging.Info().
		Int("applied", res.Applied).
		Int("superseded", res.Superseded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("remaining", res.Remaining).
		Msg("Drain complete")
	return res, drainErr
}

// replay applies one entry and removes it on success.
func (d *Driver) replay(ctx context.Context, pc *models.PendingChange) (replayOutcome, error) {
	log := logging.Ctx(ctx).With().
		Str("change_id", pc.ID).
		Str("collection", pc.StoreName).
		Str("entity_id", pc.EntityID).
		Str("change_type", string(pc.ChangeType)).
		Logger()

	// Applied by an earlier drain whose local removal failed. Keyed by
	// version too: a folded entry reuses the id with newer data.
	appliedKey := pc.ID + "@" + strconv.FormatInt(pc.Version, 10)
	if d.applied.Contains(appliedKey) {
		if _, err := d.queue.RemoveReplayed(ctx, pc); err != nil {
			log.Warn().Err(err).Msg("Removing already-applied change failed again")
			return outcomeFailed, err
		}
		d.applied.Remove(appliedKey)
		replayedTotal.WithLabelValues("duplicate").Inc()
		return outcomeApplied, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return outcomeFailed, err
	}

	data := pc.Data
	if pc.ChangeType == models.ChangeDelete {
		data = models.Record{models.FieldID: pc.EntityID, models.FieldVersion: pc.Version}
	}
	err := d.apply(ctx, pc.StoreName, pc.ChangeType, data)

	outcome := outcomeApplied
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrStaleVersion) && d.cfg.ConflictPolicy == ConflictLastWriterWins:
		outcome = outcomeSuperseded
		log.Info().Msg("Remote holds a newer version; queued change superseded")
	case remote.IsUnavailable(err):
		d.markFailed(ctx, pc, err)
		replayedTotal.WithLabelValues("unavailable").Inc()
		log.Warn().Err(err).Msg("Remote unreachable during replay")
		return outcomeUnavailable, err
	default:
		d.markFailed(ctx, pc, err)
		replayedTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("Replay failed")
		return outcomeFailed, err
	}

	removed, err := d.queue.RemoveReplayed(ctx, pc)
	if err != nil {
		// The remote has it; never send it again, only retry the removal.
		d.applied.Add(appliedKey, struct{}{})
		log.Warn().Err(err).Msg("Change applied remotely but local removal failed")
		return outcomeFailed, err
	}
	if !removed {
		log.Debug().Msg("Entry was folded with newer changes during replay; kept for the next drain")
	}
	if outcome == outcomeSuperseded {
		replayedTotal.WithLabelValues("superseded").Inc()
	} else {
		replayedTotal.WithLabelValues("applied").Inc()
	}
	return outcome, nil
}

func (d *Driver) markFailed(ctx context.Context, pc *models.PendingChange, cause error) {
	if err := d.queue.MarkFailed(ctx, pc.ID, cause); err != nil {
		logging.Debug().Err(err).Str("change_id", pc.ID).Msg("Recording replay failure failed")
	}
}

// finishDrain updates stats and retry state, then publishes SYNC_STATUS.
func (d *Driver) finishDrain(ctx context.Context, res DrainResult, err error) {
	d.mu.Lock()
	d.stats.Drains++
	d.stats.Applied += int64(res.Applied)
	d.stats.Superseded += int64(res.Superseded)
	d.stats.Failed += int64(res.Failed)
	d.stats.LastDrain = d.now()

	if err == nil && res.Remaining == 0 {
		d.stats.LastError = ""
		d.retryAttempts = 0
		if d.retryTimer != nil {
			d.retryTimer.Stop()
			d.retryTimer = nil
		}
		drainsTotal.WithLabelValues("success").Inc()
	} else {
		if err != nil {
			d.stats.LastError = err.Error()
		}
		d.retryAttempts++
		d.scheduleRetryLocked()
		drainsTotal.WithLabelValues("failure").Inc()
	}
	retryAttemptsGauge.Set(float64(d.retryAttempts))
	d.mu.Unlock()

	d.publishStatus(ctx)
}

// scheduleRetryLocked arms the retry timer. Caller holds d.mu. Retries are
// only scheduled while the driver is running; a reconnect triggers the
// next drain otherwise.
func (d *Driver) scheduleRetryLocked() {
	if !d.running {
		return
	}
	if d.retryTimer != nil {
		d.retryTimer.Stop()
	}
	delay := Backoff(d.cfg.RetryBase, d.cfg.MaxBackoff, d.retryAttempts)
	d.retryTimer = time.AfterFunc(delay, func() {
		if d.monitor.Online() {
			d.TriggerDrain()
		}
	})
	logging.Debug().Dur("delay", delay).Int("attempt", d.retryAttempts).Msg("Drain retry scheduled")
}

func (d *Driver) cancelRetry() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
}

// mergeCancel returns a context derived from ctx that is also cancelled
// when other is done.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
