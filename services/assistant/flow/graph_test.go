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

func noopStep(name string) Step {
	return NewFuncStep(name, nil, nil,
		func(ctx context.Context, sess *datatypes.Session) (map[string]any, error) {
			return nil, nil
		})
}

func TestBuild_Valid(t *testing.T) {
	graph, err := NewBuilder("test").
		AddStep(noopStep("router")).
		AddStep(noopStep("answer")).
		AddStep(noopStep("bye")).
		AddTransition("router", "bye", When("route", "terminate")).
		AddDefault("router", "answer").
		AddDefault("answer", "router").
		WithEntrypoint("router").
		WithHalt("answer", "bye").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if graph.Entrypoint() != "router" {
		t.Errorf("entrypoint = %q", graph.Entrypoint())
	}
	if !graph.IsHalt("bye") || graph.IsHalt("router") {
		t.Error("halt marks wrong")
	}
}

func TestBuild_MissingEntrypoint(t *testing.T) {
	_, err := NewBuilder("test").
		AddStep(noopStep("a")).
		WithHalt("a").
		Build()
	if !errors.Is(err, ErrNoEntrypoint) {
		t.Errorf("expected ErrNoEntrypoint, got %v", err)
	}
}

func TestBuild_UnknownTransitionTarget(t *testing.T) {
	_, err := NewBuilder("test").
		AddStep(noopStep("a")).
		AddDefault("a", "missing").
		WithEntrypoint("a").
		WithHalt("a").
		Build()
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}
}

func TestBuild_RejectsDuplicateDefault(t *testing.T) {
	_, err := NewBuilder("test").
		AddStep(noopStep("a")).
		AddStep(noopStep("b")).
		AddDefault("a", "b").
		AddDefault("a", "b").
		WithEntrypoint("a").
		WithHalt("b").
		Build()
	if !errors.Is(err, ErrAmbiguousTransition) {
		t.Errorf("expected ErrAmbiguousTransition, got %v", err)
	}
}

func TestBuild_RejectsDuplicateGuard(t *testing.T) {
	_, err := NewBuilder("test").
		AddStep(noopStep("a")).
		AddStep(noopStep("b")).
		AddStep(noopStep("c")).
		AddTransition("a", "b", When("route", "x")).
		AddTransition("a", "c", When("route", "x")).
		WithEntrypoint("a").
		WithHalt("b", "c").
		Build()
	if !errors.Is(err, ErrAmbiguousTransition) {
		t.Errorf("expected ErrAmbiguousTransition, got %v", err)
	}
}

func TestBuild_RejectsDeadEnd(t *testing.T) {
	_, err := NewBuilder("test").
		AddStep(noopStep("a")).
		AddStep(noopStep("b")).
		AddDefault("a", "b").
		WithEntrypoint("a").
		WithHalt("a"). // b is not a halt and has no way out
		Build()
	if !errors.Is(err, ErrNoTransition) {
		t.Errorf("expected ErrNoTransition, got %v", err)
	}
}

func TestBuild_RejectsDuplicateStep(t *testing.T) {
	_, err := NewBuilder("test").
		AddStep(noopStep("a")).
		AddStep(noopStep("a")).
		WithEntrypoint("a").
		WithHalt("a").
		Build()
	if !errors.Is(err, ErrDuplicateStep) {
		t.Errorf("expected ErrDuplicateStep, got %v", err)
	}
}

func TestNext_GuardsBeforeDefault(t *testing.T) {
	graph, err := NewBuilder("test").
		AddStep(noopStep("router")).
		AddStep(noopStep("search")).
		AddStep(noopStep("answer")).
		AddTransition("router", "search", When("route", "news")).
		AddDefault("router", "answer").
		AddDefault("search", "answer").
		WithEntrypoint("router").
		WithHalt("answer").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sess := datatypes.NewSession()
	sess.Scratch["route"] = "news"
	if next, ok := graph.Next("router", sess); !ok || next != "search" {
		t.Errorf("Next = %q/%v, want search/true", next, ok)
	}

	sess.Scratch["route"] = "assistant"
	if next, ok := graph.Next("router", sess); !ok || next != "answer" {
		t.Errorf("Next = %q/%v, want answer/true", next, ok)
	}

	if _, ok := graph.Next("answer", sess); ok {
		t.Error("halt step with no outgoing edges should report no transition")
	}
}
