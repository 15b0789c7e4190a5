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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

func TestMemoryStore_GetReturnsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := datatypes.NewSession()
	sess.AppendHistory(datatypes.UserMessage("hello"))
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(ctx, sess.Id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Mutating the loaded copy must not leak into the store.
	loaded.AppendHistory(datatypes.AssistantMessage("hi"))
	again, err := store.Get(ctx, sess.Id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(again.History) != 1 {
		t.Errorf("stored history has %d messages, want 1", len(again.History))
	}
}

func TestMemoryStore_GetUnknownID(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLoadOrCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	fresh, err := LoadOrCreate(ctx, store, "")
	if err != nil {
		t.Fatalf("LoadOrCreate(\"\") error = %v", err)
	}
	if fresh.Id == "" {
		t.Error("fresh session has no generated id")
	}

	named, err := LoadOrCreate(ctx, store, "abc-123")
	if err != nil {
		t.Fatalf("LoadOrCreate(abc-123) error = %v", err)
	}
	if named.Id != "abc-123" {
		t.Errorf("session id = %q, want abc-123", named.Id)
	}

	named.AppendHistory(datatypes.UserMessage("remember me"))
	if err := store.Save(ctx, named); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reloaded, err := LoadOrCreate(ctx, store, "abc-123")
	if err != nil {
		t.Fatalf("LoadOrCreate(abc-123) error = %v", err)
	}
	if len(reloaded.History) != 1 {
		t.Errorf("reloaded history has %d messages, want 1", len(reloaded.History))
	}
}

func TestManager_SerializesSameSession(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.WithSession(ctx, "shared", func(sess *datatypes.Session) error {
				sess.AppendHistory(
					datatypes.UserMessage("q"),
					datatypes.AssistantMessage("a"),
				)
				return nil
			})
			if err != nil {
				t.Errorf("WithSession() error = %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := m.Store().Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(sess.History) != workers*2 {
		t.Errorf("history has %d messages, want %d; turns interleaved",
			len(sess.History), workers*2)
	}
	if len(m.locks) != 0 {
		t.Errorf("%d session locks leaked after all turns finished", len(m.locks))
	}
}

func TestManager_SavesEvenWhenTurnFails(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	turnErr := errors.New("turn failed")
	_, err := m.WithSession(ctx, "partial", func(sess *datatypes.Session) error {
		sess.AppendHistory(datatypes.UserMessage("made it"))
		return turnErr
	})
	if !errors.Is(err, turnErr) {
		t.Fatalf("WithSession() error = %v, want the turn error", err)
	}

	sess, err := m.Store().Get(ctx, "partial")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(sess.History) != 1 {
		t.Errorf("partial progress was not saved: history has %d messages", len(sess.History))
	}
}

func TestReaper_Sweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	stale := datatypes.NewSession()
	stale.Id = "stale"
	stale.UpdatedAt = now.Add(-48 * time.Hour)

	done := datatypes.NewSession()
	done.Id = "done"
	done.Terminated = true
	done.UpdatedAt = now

	live := datatypes.NewSession()
	live.Id = "live"
	live.UpdatedAt = now

	for _, sess := range []*datatypes.Session{stale, done, live} {
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("Save(%s) error = %v", sess.Id, err)
		}
	}

	reaper := NewReaper(store,
		WithMaxIdle(24*time.Hour),
		withClock(func() time.Time { return now }),
	)

	if deleted := reaper.Sweep(ctx); deleted != 2 {
		t.Errorf("Sweep() deleted %d sessions, want 2", deleted)
	}
	if _, err := store.Get(ctx, "live"); err != nil {
		t.Errorf("live session was reaped: %v", err)
	}
	if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Error("stale session survived the sweep")
	}
	if _, err := store.Get(ctx, "done"); !errors.Is(err, ErrNotFound) {
		t.Error("terminated session survived the sweep")
	}
}
