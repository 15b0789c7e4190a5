// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flow provides the guarded state-machine framework driving a
// conversation turn.
//
// A Graph is a set of named Steps joined by transitions. A transition either
// carries a guard (fires when a scratch key equals a value) or is the
// unconditional default for its source step. Exactly one outgoing transition
// fires after each step. A Machine walks the graph for one turn, committing
// each step's declared write-set to the session and persisting after every
// commit so execution can resume mid-turn after a restart.
package flow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph construction and execution.
var (
	// ErrNilStep is returned when AddStep receives a nil step.
	ErrNilStep = errors.New("step is nil")

	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrStepNotFound is returned when a transition or entrypoint references
	// an unknown step.
	ErrStepNotFound = errors.New("step not found")

	// ErrNoEntrypoint is returned when Build is called without an entrypoint.
	ErrNoEntrypoint = errors.New("no entrypoint set")

	// ErrNoHaltSteps is returned when Build is called without any halt step;
	// a turn would never end.
	ErrNoHaltSteps = errors.New("no halt steps set")

	// ErrAmbiguousTransition is returned when a step has two default edges
	// or two guards on the same key/value pair.
	ErrAmbiguousTransition = errors.New("ambiguous transition")

	// ErrNoTransition is returned at runtime when no outgoing edge of a
	// non-halt step fires.
	ErrNoTransition = errors.New("no transition fired")

	// ErrWriteViolation is returned when a step writes a scratch key outside
	// its declared write-set.
	ErrWriteViolation = errors.New("write outside declared write-set")

	// ErrStepBudget is returned when a single turn executes more steps than
	// the machine allows, which indicates a transition loop.
	ErrStepBudget = errors.New("step budget exceeded")

	// ErrSessionTerminated is returned when RunTurn is called on a session
	// that already reached the terminal state.
	ErrSessionTerminated = errors.New("session is terminated")
)

// StepError wraps an error with the step it occurred in.
type StepError struct {
	StepName string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.StepName, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
