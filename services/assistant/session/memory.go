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
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// MemoryStore keeps sessions in process memory. State does not survive a
// restart; use the Weaviate store when resumability matters.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*datatypes.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*datatypes.Session)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*datatypes.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Snapshot(), nil
}

// Save stores a snapshot, so later mutation of the caller's session does not
// leak into the store.
func (s *MemoryStore) Save(_ context.Context, sess *datatypes.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.Id] = sess.Snapshot()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, summarize(sess))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}
