// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Scratch Keys
// =============================================================================

// Scratch-state field names. Each pipeline step declares which of these it
// reads and writes; the state machine rejects writes outside a step's
// declared set. Turn-scoped keys are cleared after synthesis.
const (
	KeyQuery            = "query"
	KeyRoute            = "route"
	KeyRetrievalQuery   = "retrieval_query"
	KeySnippets         = "snippets"
	KeyWebKeywords      = "web_keywords"
	KeyTool             = "tool"
	KeyToolParameters   = "tool_parameters"
	KeyToolOutput       = "tool_output"
	KeyAction           = "action"
	KeyActionParameters = "action_parameters"
	KeyActionOutput     = "action_output"
	KeyCommand          = "command"
	KeyFinalOutput      = "final_output"
	KeySources          = "sources"
)

// TurnScopedKeys lists the scratch fields that must be empty after any
// completed turn. History is the only thing that survives the turn boundary.
var TurnScopedKeys = []string{
	KeySnippets,
	KeyRetrievalQuery,
	KeyWebKeywords,
	KeyTool,
	KeyToolParameters,
	KeyToolOutput,
	KeyAction,
	KeyActionParameters,
	KeyActionOutput,
}

// =============================================================================
// Session
// =============================================================================

// Session holds all per-conversation state: the append-only message
// history, the mutable per-turn scratch map, and the resume point for the
// state machine.
//
// # Lifecycle
//
// A session is created on the first turn (or by an explicit new-session
// request), mutated once per step commit, and never implicitly destroyed.
// Idle sessions persist until reaped by the TTL cleaner.
//
// # Thread Safety
//
// Session itself is not synchronized. The session manager serializes all
// access to a given session id behind a per-session lock; Snapshot produces
// a deep copy safe to hand to status endpoints.
type Session struct {
	// Id uniquely identifies the session (UUID v4).
	Id string `json:"session_id"`

	// History is the ordered conversation transcript. Append-only within
	// a turn; truncation/rotation is an external policy.
	History []Message `json:"history"`

	// Scratch holds the per-turn working state keyed by the Key*
	// constants above.
	Scratch map[string]any `json:"scratch"`

	// Pipeline names the conversation pipeline that created the session.
	// NextStep and the scratch keys only make sense within one pipeline's
	// graph, so turns through a different pipeline are rejected.
	Pipeline string `json:"pipeline,omitempty"`

	// NextStep is the name of the step the state machine resumes at.
	// Empty means the graph's entrypoint.
	NextStep string `json:"next_step"`

	// Terminated is set once the terminal step has run. A terminated
	// session accepts no further turns.
	Terminated bool `json:"terminated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session with a fresh id.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		Id:        uuid.NewString(),
		History:   []Message{},
		Scratch:   map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendHistory appends messages to the transcript, preserving order.
func (s *Session) AppendHistory(messages ...Message) {
	s.History = append(s.History, messages...)
}

// ScratchString returns the scratch value for key as a string, or "" when
// absent or not a string.
func (s *Session) ScratchString(key string) string {
	v, ok := s.Scratch[key].(string)
	if !ok {
		return ""
	}
	return v
}

// ScratchSnippets returns the snippet list stored under key, or nil. The
// value may have round-tripped through JSON persistence, so both the typed
// and the generic decoded forms are accepted.
func (s *Session) ScratchSnippets(key string) []Snippet {
	switch v := s.Scratch[key].(type) {
	case []Snippet:
		return v
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var snippets []Snippet
		if err := json.Unmarshal(raw, &snippets); err != nil {
			return nil
		}
		return snippets
	default:
		return nil
	}
}

// ScratchStringList returns the string list stored under key, or nil. Like
// ScratchSnippets, it accepts the JSON-decoded []any form after persistence.
func (s *Session) ScratchStringList(key string) []string {
	switch v := s.Scratch[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}

// ScratchMap returns the map stored under key, or nil.
func (s *Session) ScratchMap(key string) map[string]any {
	v, ok := s.Scratch[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

// Snapshot returns a deep copy of the session. Used by the status endpoint
// to inspect state concurrently with a running turn.
func (s *Session) Snapshot() *Session {
	cp := *s
	cp.History = make([]Message, len(s.History))
	copy(cp.History, s.History)
	cp.Scratch = make(map[string]any, len(s.Scratch))
	for k, v := range s.Scratch {
		cp.Scratch[k] = v
	}
	return &cp
}

// TurnCount reports completed turns. Each turn appends exactly one user and
// one assistant message.
func (s *Session) TurnCount() int {
	return len(s.History) / 2
}
