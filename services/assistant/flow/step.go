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

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// Step is one phase of a conversation turn.
//
// # Description
//
//	A step reads session state, performs its work (model calls, retrieval,
//	tool invocation), and returns a delta of scratch writes. The machine
//	commits the delta; steps never mutate Session.Scratch directly. Writes
//	outside the declared write-set are rejected at commit time.
//
// # Thread Safety
//
//	A Step instance is shared across sessions and must be stateless: all
//	per-session data lives in the Session passed to Run.
type Step interface {
	// Name is the step's unique identifier within a graph.
	Name() string

	// Reads lists the scratch keys the step consumes. Declarative only;
	// used for graph documentation and debugging, not enforced.
	Reads() []string

	// Writes lists the scratch keys the step may set. Enforced at commit.
	Writes() []string

	// Run executes the step against a read-only view of the session and
	// returns the scratch delta to commit. A delta value of nil deletes
	// the key. Run must treat sess as read-only except for History and
	// Terminated, which only synthesis/termination steps touch.
	Run(ctx context.Context, sess *datatypes.Session) (map[string]any, error)
}

// BaseStep provides the declarative parts of Step. Embed it and override Run.
type BaseStep struct {
	StepName   string
	StepReads  []string
	StepWrites []string
}

func (s *BaseStep) Name() string { return s.StepName }

func (s *BaseStep) Reads() []string {
	if s.StepReads == nil {
		return []string{}
	}
	return s.StepReads
}

func (s *BaseStep) Writes() []string {
	if s.StepWrites == nil {
		return []string{}
	}
	return s.StepWrites
}

// FuncStep wraps a function as a Step for simple cases and tests.
type FuncStep struct {
	BaseStep
	fn func(context.Context, *datatypes.Session) (map[string]any, error)
}

// NewFuncStep creates a step from a function.
func NewFuncStep(name string, reads, writes []string,
	fn func(context.Context, *datatypes.Session) (map[string]any, error)) *FuncStep {

	return &FuncStep{
		BaseStep: BaseStep{StepName: name, StepReads: reads, StepWrites: writes},
		fn:       fn,
	}
}

func (s *FuncStep) Run(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
	return s.fn(ctx, sess)
}
