// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// capabilitySelection is the model's answer when choosing from a catalog.
type capabilitySelection struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// selectionConstraint validates a selection against the catalog, so invalid
// names and parameters are caught inside the retry loop and fed back to the
// model rather than surfacing downstream.
func selectionConstraint(catalog *tools.Catalog) llm.JSONConstraint[capabilitySelection] {
	return llm.JSONConstraint[capabilitySelection]{
		Example: capabilitySelection{
			Name:       catalog.Fallback(),
			Parameters: map[string]any{"response": "reason no entry applies"},
		},
		Validate: func(sel capabilitySelection) error {
			return catalog.Validate(sel.Name, sel.Parameters)
		},
	}
}

// fallbackSelection deterministically substitutes the catalog's fallback
// entry with an explanation. The pipeline never stalls with nothing chosen.
func fallbackSelection(catalog *tools.Catalog, reason error) capabilitySelection {
	return capabilitySelection{
		Name: catalog.Fallback(),
		Parameters: map[string]any{
			"response": fmt.Sprintf("No valid selection was made: %v.", reason),
		},
	}
}

// =============================================================================
// Tool Selection and Invocation
// =============================================================================

// SelectToolStep chooses exactly one retrieval-phase tool for the turn.
type SelectToolStep struct {
	flow.BaseStep
	client  *llm.ConstrainedClient
	catalog *tools.Catalog
}

func NewSelectToolStep(client *llm.ConstrainedClient, catalog *tools.Catalog) *SelectToolStep {
	return &SelectToolStep{
		BaseStep: flow.BaseStep{
			StepName:   StepSelectTool,
			StepReads:  []string{datatypes.KeyQuery},
			StepWrites: []string{datatypes.KeyTool, datatypes.KeyToolParameters},
		},
		client:  client,
		catalog: catalog,
	}
}

func (s *SelectToolStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	prompt := fmt.Sprintf("Available tools:\n%s\nUser question: %s",
		s.catalog.PromptDescription(), sess.ScratchString(datatypes.KeyQuery))

	selection, err := llm.CompleteJSON(ctx, s.client, selectToolPrompt,
		[]datatypes.Message{datatypes.UserMessage(prompt)},
		selectionConstraint(s.catalog), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Tool selection failed, substituting fallback",
			"session_id", sess.Id, "error", err)
		selection = fallbackSelection(s.catalog, err)
	}

	slog.Debug("Selected tool", "session_id", sess.Id, "tool", selection.Name)
	return map[string]any{
		datatypes.KeyTool:           selection.Name,
		datatypes.KeyToolParameters: selection.Parameters,
	}, nil
}

// CallToolStep invokes the selected tool.
type CallToolStep struct {
	flow.BaseStep
	catalog *tools.Catalog
}

func NewCallToolStep(catalog *tools.Catalog) *CallToolStep {
	return &CallToolStep{
		BaseStep: flow.BaseStep{
			StepName:   StepCallTool,
			StepReads:  []string{datatypes.KeyTool, datatypes.KeyToolParameters},
			StepWrites: []string{datatypes.KeyToolOutput},
		},
		catalog: catalog,
	}
}

func (s *CallToolStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	name := sess.ScratchString(datatypes.KeyTool)
	params := sess.ScratchMap(datatypes.KeyToolParameters)

	output, err := s.catalog.Invoke(ctx, name, params)
	if err != nil {
		slog.Warn("Tool invocation failed", "session_id", sess.Id,
			"tool", name, "error", err)
		output = map[string]any{
			"response": fmt.Sprintf("The %s tool could not be used: %v.", name, err),
		}
	}
	return map[string]any{datatypes.KeyToolOutput: output}, nil
}

// =============================================================================
// Action Selection and Invocation
// =============================================================================

// SelectActionStep chooses exactly one effect-phase action, seeing both the
// original question and the tool output as context.
type SelectActionStep struct {
	flow.BaseStep
	client  *llm.ConstrainedClient
	catalog *tools.Catalog
}

func NewSelectActionStep(client *llm.ConstrainedClient, catalog *tools.Catalog) *SelectActionStep {
	return &SelectActionStep{
		BaseStep: flow.BaseStep{
			StepName:   StepSelectAction,
			StepReads:  []string{datatypes.KeyQuery, datatypes.KeyToolOutput},
			StepWrites: []string{datatypes.KeyAction, datatypes.KeyActionParameters},
		},
		client:  client,
		catalog: catalog,
	}
}

func (s *SelectActionStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	prompt := fmt.Sprintf(
		"Available actions:\n%s\nThe original question was: %s.\nThe context data is: %s.",
		s.catalog.PromptDescription(),
		sess.ScratchString(datatypes.KeyQuery),
		renderOutput(sess.ScratchMap(datatypes.KeyToolOutput)))

	selection, err := llm.CompleteJSON(ctx, s.client, selectActionPrompt,
		[]datatypes.Message{datatypes.UserMessage(prompt)},
		selectionConstraint(s.catalog), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Action selection failed, substituting fallback",
			"session_id", sess.Id, "error", err)
		selection = fallbackSelection(s.catalog, err)
	}

	slog.Debug("Selected action", "session_id", sess.Id, "action", selection.Name)
	return map[string]any{
		datatypes.KeyAction:           selection.Name,
		datatypes.KeyActionParameters: selection.Parameters,
	}, nil
}

// CallActionStep invokes the selected action and splits its result into the
// user-facing response and the device command.
type CallActionStep struct {
	flow.BaseStep
	catalog *tools.Catalog
}

func NewCallActionStep(catalog *tools.Catalog) *CallActionStep {
	return &CallActionStep{
		BaseStep: flow.BaseStep{
			StepName:   StepCallAction,
			StepReads:  []string{datatypes.KeyAction, datatypes.KeyActionParameters},
			StepWrites: []string{datatypes.KeyActionOutput, datatypes.KeyCommand},
		},
		catalog: catalog,
	}
}

func (s *CallActionStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	name := sess.ScratchString(datatypes.KeyAction)
	params := sess.ScratchMap(datatypes.KeyActionParameters)

	result, err := s.catalog.Invoke(ctx, name, params)
	if err != nil {
		slog.Warn("Action invocation failed", "session_id", sess.Id,
			"action", name, "error", err)
		result = map[string]any{
			tools.KeyActionResponse: fmt.Sprintf(
				"The %s action could not be performed: %v.", name, err),
		}
	}

	return map[string]any{
		datatypes.KeyActionOutput: result[tools.KeyActionResponse],
		datatypes.KeyCommand:      result[tools.KeyCommand],
	}, nil
}

// =============================================================================
// Result Formatting
// =============================================================================

// FormatResultsStep synthesizes the final answer from the tool and action
// outputs and closes the turn.
type FormatResultsStep struct {
	flow.BaseStep
	client *llm.ConstrainedClient
	config Config
}

func NewFormatResultsStep(client *llm.ConstrainedClient, config Config) *FormatResultsStep {
	writes := append([]string{datatypes.KeyFinalOutput}, datatypes.TurnScopedKeys...)
	return &FormatResultsStep{
		BaseStep: flow.BaseStep{
			StepName: StepFormatResults,
			StepReads: []string{datatypes.KeyQuery, datatypes.KeyToolOutput,
				datatypes.KeyActionOutput},
			StepWrites: writes,
		},
		client: client,
		config: config,
	}
}

func (s *FormatResultsStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	query := sess.ScratchString(datatypes.KeyQuery)
	prompt := fmt.Sprintf(
		"The original question was: %s.\nThe tool returned: %s.\nThe action result was: %s.\n"+
			"Formulate the final answer for the user.",
		query,
		renderOutput(sess.ScratchMap(datatypes.KeyToolOutput)),
		sess.ScratchString(datatypes.KeyActionOutput))

	response, err := s.client.CompleteText(ctx, s.config.SynthesisSystemPrompt,
		[]datatypes.Message{datatypes.UserMessage(prompt)}, llm.GenerationParams{})
	if err != nil {
		slog.Error("Result formatting failed, answering with apology",
			"session_id", sess.Id, "error", err)
		response = s.config.Apology
	}

	sess.AppendHistory(datatypes.UserMessage(query), datatypes.AssistantMessage(response))

	delta := map[string]any{datatypes.KeyFinalOutput: response}
	for _, key := range datatypes.TurnScopedKeys {
		delta[key] = nil
	}
	return delta, nil
}

// renderOutput flattens a tool result for prompting.
func renderOutput(output map[string]any) string {
	if len(output) == 0 {
		return "(none)"
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(raw)
}
