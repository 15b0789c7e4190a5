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
	"sync"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Manager serializes turns per session id. Two requests for different
// sessions run concurrently; two for the same session queue up, so a turn
// never observes another turn's half-committed scratch state.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sessionLock),
	}
}

// Store exposes the underlying store for listing and deletion.
func (m *Manager) Store() Store { return m.store }

// WithSession loads (or creates) the session, runs fn under the per-session
// lock, and saves the result. The session is saved even when fn fails, so
// partial turn progress committed by the state machine is not lost.
func (m *Manager) WithSession(ctx context.Context, id string,
	fn func(sess *datatypes.Session) error) (*datatypes.Session, error) {

	lock := m.acquire(id)
	defer m.release(id)

	lock.mu.Lock()
	defer lock.mu.Unlock()

	sess, err := LoadOrCreate(ctx, m.store, id)
	if err != nil {
		return nil, err
	}

	runErr := fn(sess)
	if saveErr := m.store.Save(ctx, sess); saveErr != nil && runErr == nil {
		return sess, saveErr
	}
	return sess, runErr
}

// acquire returns the lock for id, creating it on first use. Reference
// counting lets release drop idle locks so the map does not grow with every
// session ever seen.
func (m *Manager) acquire(id string) *sessionLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sessionLock{}
		m.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(m.locks, id)
	}
}
