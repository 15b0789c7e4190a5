// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session persists conversation sessions and serializes access to
// them, so a session can resume mid-pipeline after a restart and two
// concurrent requests for the same session cannot interleave their turns.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

var (
	// ErrNotFound indicates the session id has no stored state.
	ErrNotFound = errors.New("session not found")
)

// Summary is the listing view of a stored session.
type Summary struct {
	Id         string    `json:"session_id"`
	Turns      int       `json:"turns"`
	Terminated bool      `json:"terminated"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists full session state keyed by session id.
//
// # Description
//
//	Implementations must treat Save as an upsert and Delete of a missing
//	session as a no-op. Get returns ErrNotFound for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (*datatypes.Session, error)
	Save(ctx context.Context, sess *datatypes.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Summary, error)
}

// LoadOrCreate fetches the stored session or starts a fresh one under the
// given id. An empty id gets a generated one.
func LoadOrCreate(ctx context.Context, store Store, id string) (*datatypes.Session, error) {
	if id == "" {
		return datatypes.NewSession(), nil
	}
	sess, err := store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		sess = datatypes.NewSession()
		sess.Id = id
		return sess, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func summarize(sess *datatypes.Session) Summary {
	return Summary{
		Id:         sess.Id,
		Turns:      sess.TurnCount(),
		Terminated: sess.Terminated,
		UpdatedAt:  sess.UpdatedAt,
	}
}
