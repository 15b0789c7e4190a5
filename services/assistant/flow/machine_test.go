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
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// twoPhaseGraph builds: classify -> {work | finish} -> finish, where finish
// halts and loops back to classify for the next turn.
func twoPhaseGraph(t *testing.T) *Graph {
	t.Helper()
	classify := NewFuncStep("classify", nil, []string{"route"},
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			return map[string]any{"route": sess.ScratchString("wanted")}, nil
		})
	work := NewFuncStep("work", []string{"route"}, []string{"result"},
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			return map[string]any{"result": "worked"}, nil
		})
	finish := NewFuncStep("finish", []string{"result"}, []string{"result"},
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			sess.AppendHistory(datatypes.AssistantMessage("done"))
			return map[string]any{"result": nil}, nil
		})

	graph, err := NewBuilder("two-phase").
		AddStep(classify).
		AddStep(work).
		AddStep(finish).
		AddTransition("classify", "work", When("route", "work")).
		AddDefault("classify", "finish").
		AddDefault("work", "finish").
		AddDefault("finish", "classify").
		WithEntrypoint("classify").
		WithHalt("finish").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return graph
}

func TestRunTurn_GuardedPath(t *testing.T) {
	graph := twoPhaseGraph(t)
	var persisted []string
	machine := NewMachine(graph, func(ctx context.Context, sess *datatypes.Session) error {
		persisted = append(persisted, sess.NextStep)
		return nil
	})

	sess := datatypes.NewSession()
	sess.Scratch["wanted"] = "work"
	if err := machine.RunTurn(context.Background(), sess); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(sess.History) != 1 || sess.History[0].Content != "done" {
		t.Errorf("history = %+v", sess.History)
	}
	if _, ok := sess.Scratch["result"]; ok {
		t.Error("finish should have cleared the result key")
	}
	// One persist per executed step: classify, work, finish.
	if len(persisted) != 3 {
		t.Errorf("persist calls = %d, want 3", len(persisted))
	}
	if sess.NextStep != "classify" {
		t.Errorf("resume point = %q, want classify", sess.NextStep)
	}
}

func TestRunTurn_DefaultPathSkipsWork(t *testing.T) {
	graph := twoPhaseGraph(t)
	machine := NewMachine(graph, nil)

	sess := datatypes.NewSession()
	sess.Scratch["wanted"] = "anything-else"
	if err := machine.RunTurn(context.Background(), sess); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if _, ok := sess.Scratch["result"]; ok {
		t.Error("work step should not have run")
	}
}

func TestRunTurn_ResumesFromStoredStep(t *testing.T) {
	graph := twoPhaseGraph(t)
	machine := NewMachine(graph, nil)

	// Simulate a restart after the classify step committed.
	sess := datatypes.NewSession()
	sess.Scratch["route"] = "work"
	sess.NextStep = "work"

	if err := machine.RunTurn(context.Background(), sess); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(sess.History) != 1 {
		t.Errorf("resumed turn should still reach finish, history = %+v", sess.History)
	}
}

func TestRunTurn_RejectsUndeclaredWrite(t *testing.T) {
	rogue := NewFuncStep("rogue", nil, []string{"allowed"},
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			return map[string]any{"forbidden": "x"}, nil
		})
	graph, err := NewBuilder("rogue").
		AddStep(rogue).
		WithEntrypoint("rogue").
		WithHalt("rogue").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	err = NewMachine(graph, nil).RunTurn(context.Background(), datatypes.NewSession())
	if !errors.Is(err, ErrWriteViolation) {
		t.Errorf("expected ErrWriteViolation, got %v", err)
	}
}

func TestRunTurn_StepBudget(t *testing.T) {
	spin := NewFuncStep("spin", nil, nil,
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			return nil, nil
		})
	stop := noopStep("stop")
	graph, err := NewBuilder("loop").
		AddStep(spin).
		AddStep(stop).
		AddTransition("spin", "stop", When("never", "set")).
		AddDefault("spin", "spin").
		WithEntrypoint("spin").
		WithHalt("stop").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	err = NewMachine(graph, nil, WithStepBudget(5)).
		RunTurn(context.Background(), datatypes.NewSession())
	if !errors.Is(err, ErrStepBudget) {
		t.Errorf("expected ErrStepBudget, got %v", err)
	}
}

func TestRunTurn_TerminatedSession(t *testing.T) {
	graph := twoPhaseGraph(t)
	sess := datatypes.NewSession()
	sess.Terminated = true

	err := NewMachine(graph, nil).RunTurn(context.Background(), sess)
	if !errors.Is(err, ErrSessionTerminated) {
		t.Errorf("expected ErrSessionTerminated, got %v", err)
	}
}

func TestRunTurn_TerminatingStepEndsTurn(t *testing.T) {
	bye := NewFuncStep("bye", nil, nil,
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			sess.Terminated = true
			return nil, nil
		})
	next := noopStep("next")
	graph, err := NewBuilder("term").
		AddStep(bye).
		AddStep(next).
		AddDefault("bye", "next").
		AddDefault("next", "bye").
		WithEntrypoint("bye").
		WithHalt("next"). // bye is NOT a halt; termination alone must end the turn
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sess := datatypes.NewSession()
	if err := NewMachine(graph, nil).RunTurn(context.Background(), sess); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !sess.Terminated {
		t.Error("session should be terminated")
	}
}
