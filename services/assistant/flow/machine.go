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
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

var tracer = otel.Tracer("aleutian.assistant.flow")

// DefaultTurnTimeout bounds one turn's model and retrieval calls.
const DefaultTurnTimeout = 2 * time.Minute

// DefaultStepBudget bounds steps per turn; exceeding it means a transition
// loop in the graph.
const DefaultStepBudget = 32

// PersistFunc saves a session snapshot after a committed step.
type PersistFunc func(ctx context.Context, sess *datatypes.Session) error

// Machine walks a Graph for one turn at a time.
//
// # Description
//
//	RunTurn starts at the session's resume point (or the graph entrypoint),
//	executes steps sequentially, commits each step's write-set, persists
//	after every commit, and stops once a halt step completes. The caller is
//	responsible for serializing turns of the same session; different
//	sessions may run concurrently since all mutable state is in the Session.
type Machine struct {
	graph       *Graph
	persist     PersistFunc
	turnTimeout time.Duration
	stepBudget  int
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithTurnTimeout overrides the per-turn deadline.
func WithTurnTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.turnTimeout = d
		}
	}
}

// WithStepBudget overrides the per-turn step limit.
func WithStepBudget(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.stepBudget = n
		}
	}
}

// NewMachine creates a machine over a validated graph. persist may be nil
// when resumability is not needed (tests, one-shot runs).
func NewMachine(graph *Graph, persist PersistFunc, opts ...MachineOption) *Machine {
	m := &Machine{
		graph:       graph,
		persist:     persist,
		turnTimeout: DefaultTurnTimeout,
		stepBudget:  DefaultStepBudget,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunTurn executes one turn against the session.
//
// # Inputs
//
//   - ctx: Cancellation context; the machine adds the turn deadline.
//   - sess: The session to drive. Mutated in place.
//
// # Outputs
//
//   - error: Non-nil on contract violations (unknown resume step, write-set
//     violation, transition dead-end, step budget). Model and retrieval
//     failures do not surface here: steps absorb those into their defaults.
func (m *Machine) RunTurn(ctx context.Context, sess *datatypes.Session) error {
	if sess.Terminated {
		return ErrSessionTerminated
	}

	ctx, cancel := context.WithTimeout(ctx, m.turnTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "Machine.RunTurn",
		trace.WithAttributes(
			attribute.String("flow.graph", m.graph.name),
			attribute.String("session.id", sess.Id),
		))
	defer span.End()

	current := sess.NextStep
	if current == "" {
		current = m.graph.entrypoint
	}

	for executed := 0; ; executed++ {
		if executed >= m.stepBudget {
			span.SetStatus(codes.Error, ErrStepBudget.Error())
			return fmt.Errorf("%w: %d steps in graph %q", ErrStepBudget, executed, m.graph.name)
		}

		step, ok := m.graph.Step(current)
		if !ok {
			span.SetStatus(codes.Error, ErrStepNotFound.Error())
			return &StepError{StepName: current, Err: ErrStepNotFound}
		}

		slog.Debug("Executing step", "graph", m.graph.name,
			"session_id", sess.Id, "step", current)
		delta, err := m.runStep(ctx, step, sess)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if err := commitDelta(sess, step, delta); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		next, hasNext := m.graph.Next(current, sess)
		halting := m.graph.IsHalt(current) || sess.Terminated
		if halting {
			if hasNext {
				sess.NextStep = next
			} else {
				sess.NextStep = m.graph.entrypoint
			}
		} else {
			if !hasNext {
				return &StepError{StepName: current, Err: ErrNoTransition}
			}
			sess.NextStep = next
		}
		m.save(ctx, sess)

		if halting {
			slog.Debug("Turn complete", "session_id", sess.Id,
				"halted_at", current, "resume_at", sess.NextStep)
			return nil
		}
		current = next
	}
}

func (m *Machine) runStep(ctx context.Context, step Step,
	sess *datatypes.Session) (map[string]any, error) {

	ctx, span := tracer.Start(ctx, "Step."+step.Name())
	defer span.End()

	delta, err := step.Run(ctx, sess)
	if err != nil {
		return nil, &StepError{StepName: step.Name(), Err: err}
	}
	return delta, nil
}

// commitDelta applies a step's writes to session scratch, enforcing the
// declared write-set. A nil delta value deletes the key.
func commitDelta(sess *datatypes.Session, step Step, delta map[string]any) error {
	if len(delta) == 0 {
		sess.UpdatedAt = time.Now()
		return nil
	}

	allowed := make(map[string]bool, len(step.Writes()))
	for _, key := range step.Writes() {
		allowed[key] = true
	}
	for key := range delta {
		if !allowed[key] {
			return &StepError{StepName: step.Name(),
				Err: fmt.Errorf("%w: key %q", ErrWriteViolation, key)}
		}
	}

	for key, value := range delta {
		if value == nil {
			delete(sess.Scratch, key)
			continue
		}
		sess.Scratch[key] = value
	}
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *Machine) save(ctx context.Context, sess *datatypes.Session) {
	if m.persist == nil {
		return
	}
	if err := m.persist(ctx, sess); err != nil {
		// Resumption degrades but the turn keeps going.
		slog.Warn("Failed to persist session after step",
			"session_id", sess.Id, "error", err)
	}
}
