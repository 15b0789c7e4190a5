// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

import (
	"fmt"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Guard fires a transition when a scratch key equals a value. Comparison is
// string equality against the key's scratch value.
type Guard struct {
	Key   string
	Value string
}

// When builds a guard for use with AddTransition.
func When(key, value string) Guard {
	return Guard{Key: key, Value: value}
}

// Transition joins two steps. A nil guard marks the default edge.
type Transition struct {
	From  string
	To    string
	Guard *Guard
}

// Graph is an immutable, validated step graph. Build one with Builder.
type Graph struct {
	name        string
	steps       map[string]Step
	transitions map[string][]Transition
	entrypoint  string
	halts       map[string]bool
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Entrypoint returns the step a fresh session starts at.
func (g *Graph) Entrypoint() string { return g.entrypoint }

// IsHalt reports whether the named step ends a turn.
func (g *Graph) IsHalt(name string) bool { return g.halts[name] }

// Step returns the named step.
func (g *Graph) Step(name string) (Step, bool) {
	s, ok := g.steps[name]
	return s, ok
}

// Next evaluates the outgoing transitions of a step against session scratch.
//
// Guarded edges are checked first, in the order they were added; the default
// edge fires only when no guard matches. Halt steps may legitimately have no
// outgoing edge, in which case ok is false.
func (g *Graph) Next(from string, sess *datatypes.Session) (string, bool) {
	var fallback string
	var hasFallback bool
	for _, t := range g.transitions[from] {
		if t.Guard == nil {
			fallback, hasFallback = t.To, true
			continue
		}
		if sess.ScratchString(t.Guard.Key) == t.Guard.Value {
			return t.To, true
		}
	}
	if hasFallback {
		return fallback, true
	}
	return "", false
}

// =============================================================================
// Builder
// =============================================================================

// Builder constructs a Graph with validation.
//
// # Description
//
//	Fluent API: add steps, join them with guarded or default transitions,
//	name the entrypoint and the halt steps, then Build. Errors accumulate
//	and surface from Build so construction chains stay readable.
//
// # Thread Safety
//
//	Builder is NOT safe for concurrent use.
type Builder struct {
	name        string
	steps       map[string]Step
	transitions map[string][]Transition
	entrypoint  string
	halts       map[string]bool
	errors      []error
}

// NewBuilder creates a graph builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:        name,
		steps:       make(map[string]Step),
		transitions: make(map[string][]Transition),
		halts:       make(map[string]bool),
	}
}

// AddStep adds a step to the graph.
func (b *Builder) AddStep(step Step) *Builder {
	if step == nil {
		b.errors = append(b.errors, ErrNilStep)
		return b
	}
	name := step.Name()
	if _, exists := b.steps[name]; exists {
		b.errors = append(b.errors, &StepError{StepName: name, Err: ErrDuplicateStep})
		return b
	}
	b.steps[name] = step
	return b
}

// AddTransition adds a guarded edge. Guards on one source step must cover
// distinct values; duplicates are rejected at Build.
func (b *Builder) AddTransition(from, to string, guard Guard) *Builder {
	b.transitions[from] = append(b.transitions[from],
		Transition{From: from, To: to, Guard: &guard})
	return b
}

// AddDefault adds the unconditional edge for a source step. At most one per
// step.
func (b *Builder) AddDefault(from, to string) *Builder {
	b.transitions[from] = append(b.transitions[from],
		Transition{From: from, To: to, Guard: nil})
	return b
}

// WithEntrypoint names the step a fresh session starts at.
func (b *Builder) WithEntrypoint(name string) *Builder {
	b.entrypoint = name
	return b
}

// WithHalt marks steps that end a turn once they complete.
func (b *Builder) WithHalt(names ...string) *Builder {
	for _, name := range names {
		b.halts[name] = true
	}
	return b
}

// Build validates and constructs the Graph.
//
// # Outputs
//
//   - *Graph: The validated graph.
//   - error: Non-nil when steps are missing, transitions are ambiguous, a
//     non-halt step has no outgoing edge, or the entrypoint/halts are unset.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if b.entrypoint == "" {
		return nil, ErrNoEntrypoint
	}
	if _, ok := b.steps[b.entrypoint]; !ok {
		return nil, &StepError{StepName: b.entrypoint, Err: ErrStepNotFound}
	}
	if len(b.halts) == 0 {
		return nil, ErrNoHaltSteps
	}
	for halt := range b.halts {
		if _, ok := b.steps[halt]; !ok {
			return nil, &StepError{StepName: halt, Err: ErrStepNotFound}
		}
	}

	for from, edges := range b.transitions {
		if _, ok := b.steps[from]; !ok {
			return nil, &StepError{StepName: from, Err: ErrStepNotFound}
		}
		defaults := 0
		seen := make(map[Guard]bool)
		for _, t := range edges {
			if _, ok := b.steps[t.To]; !ok {
				return nil, &StepError{StepName: t.To, Err: ErrStepNotFound}
			}
			if t.Guard == nil {
				defaults++
				if defaults > 1 {
					return nil, &StepError{StepName: from,
						Err: fmt.Errorf("%w: multiple default edges", ErrAmbiguousTransition)}
				}
				continue
			}
			if seen[*t.Guard] {
				return nil, &StepError{StepName: from,
					Err: fmt.Errorf("%w: duplicate guard %s=%s",
						ErrAmbiguousTransition, t.Guard.Key, t.Guard.Value)}
			}
			seen[*t.Guard] = true
		}
	}

	// Every non-halt step needs a way out.
	for name := range b.steps {
		if b.halts[name] {
			continue
		}
		if len(b.transitions[name]) == 0 {
			return nil, &StepError{StepName: name,
				Err: fmt.Errorf("%w: non-halt step has no outgoing transitions", ErrNoTransition)}
		}
	}

	return &Graph{
		name:        b.name,
		steps:       b.steps,
		transitions: b.transitions,
		entrypoint:  b.entrypoint,
		halts:       b.halts,
	}, nil
}
