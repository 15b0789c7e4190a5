// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultMaxIdle is how long an untouched session survives.
	DefaultMaxIdle = 24 * time.Hour

	// DefaultReapInterval is the sweep cadence.
	DefaultReapInterval = 15 * time.Minute
)

// Reaper deletes idle and terminated sessions on a schedule.
//
// # Description
//
//	Terminated sessions are deleted as soon as a sweep sees them; their
//	stored state can never be resumed. Live sessions are deleted once
//	UpdatedAt falls behind the idle cutoff. Individual delete failures are
//	logged and retried on the next sweep.
type Reaper struct {
	store    Store
	maxIdle  time.Duration
	interval time.Duration
	now      func() time.Time
}

type ReaperOption func(*Reaper)

func WithMaxIdle(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.maxIdle = d
		}
	}
}

func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// withClock overrides time for tests.
func withClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

func NewReaper(store Store, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:    store,
		maxIdle:  DefaultMaxIdle,
		interval: DefaultReapInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps until the context is cancelled. Call it in its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Session reaper started",
		"max_idle", r.maxIdle, "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass and returns how many sessions it deleted.
func (r *Reaper) Sweep(ctx context.Context) int {
	summaries, err := r.store.List(ctx)
	if err != nil {
		slog.Warn("Session sweep failed to list sessions", "error", err)
		return 0
	}

	cutoff := r.now().Add(-r.maxIdle)
	deleted := 0
	for _, summary := range summaries {
		if !summary.Terminated && summary.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, summary.Id); err != nil {
			slog.Warn("Failed to delete expired session",
				"session_id", summary.Id, "error", err)
			continue
		}
		deleted++
		slog.Debug("Deleted expired session",
			"session_id", summary.Id,
			"terminated", summary.Terminated,
			"updated_at", summary.UpdatedAt)
	}

	if deleted > 0 {
		slog.Info("Session sweep complete",
			"deleted", deleted, "remaining", len(summaries)-deleted)
	}
	return deleted
}
