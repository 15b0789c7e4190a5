// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/observability"
)

var completeTracer = otel.Tracer("aleutian.assistant.llm.complete")

// DefaultMaxAttempts bounds the corrective retry loop when the caller does
// not override it.
const DefaultMaxAttempts = 10

// RetryExhaustedError reports that every attempt at a constrained completion
// produced output the constraint rejected. LastError holds the parse failure
// from the final attempt.
type RetryExhaustedError struct {
	Attempts  int
	LastError error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("constrained completion failed after %d attempts: %v",
		e.Attempts, e.LastError)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastError }

// =============================================================================
// Constrained Client
// =============================================================================

// ConstrainedClient layers schema enforcement on top of a raw LLMClient.
//
// # Description
//
//	Every call appends the constraint's format instruction to the system
//	message, then loops: generate, parse, and on a parse failure feed the
//	rejected output plus the parse error back to the model as a corrective
//	exchange. The loop is bounded; at most maxAttempts underlying calls are
//	issued per completion regardless of how the model misbehaves.
type ConstrainedClient struct {
	client      LLMClient
	maxAttempts int
}

// NewConstrainedClient wraps client with a retry bound. A non-positive
// maxAttempts falls back to DefaultMaxAttempts.
func NewConstrainedClient(client LLMClient, maxAttempts int) *ConstrainedClient {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &ConstrainedClient{client: client, maxAttempts: maxAttempts}
}

// MaxAttempts returns the configured retry bound.
func (c *ConstrainedClient) MaxAttempts() int { return c.maxAttempts }

// Complete runs one constrained completion.
//
// # Inputs
//   - ctx: Cancellation and tracing context.
//   - system: System prompt for this call; the constraint instruction is
//     appended to it.
//   - messages: Conversation turns presented to the model.
//   - constraint: Output shape to enforce.
//   - params: Sampling parameters passed through to the backend.
//
// # Outputs
//   - any: The parsed value (string, bool, or the constraint's record type).
//   - error: A transport error from the backend, or *RetryExhaustedError when
//     every attempt failed validation.
func (c *ConstrainedClient) Complete(ctx context.Context, system string,
	messages []datatypes.Message, constraint Constraint,
	params GenerationParams) (any, error) {

	ctx, span := completeTracer.Start(ctx, "ConstrainedClient.Complete")
	defer span.End()
	span.SetAttributes(attribute.Int("llm.max_attempts", c.maxAttempts))

	systemPrompt := system
	if instruction := constraint.Instruction(); instruction != "" {
		systemPrompt = systemPrompt + "\n\n" + instruction
	}
	convo := make([]datatypes.Message, 0, len(messages)+1+2*c.maxAttempts)
	convo = append(convo, datatypes.SystemMessage(systemPrompt))
	convo = append(convo, messages...)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		raw, err := c.client.Chat(ctx, convo, params)
		if err != nil {
			observability.RecordCompletionAttempt("transport_error")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("llm call failed: %w", err)
		}

		value, parseErr := constraint.Parse(raw)
		if parseErr == nil {
			observability.RecordCompletionAttempt("ok")
			span.SetAttributes(attribute.Int("llm.attempts_used", attempt))
			return value, nil
		}
		lastErr = parseErr
		observability.RecordCompletionAttempt("rejected")
		slog.Debug("Constrained completion rejected, retrying",
			"attempt", attempt, "error", parseErr)

		// Show the model what it produced and why it was rejected.
		convo = append(convo,
			datatypes.AssistantMessage(raw),
			datatypes.UserMessage(fmt.Sprintf(
				"That response was invalid: %v. Try again and follow the format exactly.",
				parseErr)),
		)
	}

	observability.RecordRetryExhaustion(fmt.Sprintf("%T", constraint))
	exhausted := &RetryExhaustedError{Attempts: c.maxAttempts, LastError: lastErr}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, exhausted.Error())
	slog.Warn("Constrained completion exhausted retries",
		"attempts", c.maxAttempts, "last_error", lastErr)
	return nil, exhausted
}

// CompleteText runs a free-text completion.
func (c *ConstrainedClient) CompleteText(ctx context.Context, system string,
	messages []datatypes.Message, params GenerationParams) (string, error) {

	value, err := c.Complete(ctx, system, messages, TextConstraint{}, params)
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// CompleteBool runs a yes/no completion.
func (c *ConstrainedClient) CompleteBool(ctx context.Context, system string,
	messages []datatypes.Message, params GenerationParams) (bool, error) {

	value, err := c.Complete(ctx, system, messages, BoolConstraint{}, params)
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

// CompleteEnum runs a completion constrained to one of allowed.
func (c *ConstrainedClient) CompleteEnum(ctx context.Context, system string,
	messages []datatypes.Message, allowed []string,
	params GenerationParams) (string, error) {

	value, err := c.Complete(ctx, system, messages,
		EnumConstraint{Allowed: allowed}, params)
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// CompleteJSON runs a completion constrained to a JSON record of type T.
// A package function rather than a method so T stays a type parameter.
func CompleteJSON[T any](ctx context.Context, c *ConstrainedClient,
	system string, messages []datatypes.Message, constraint JSONConstraint[T],
	params GenerationParams) (T, error) {

	value, err := c.Complete(ctx, system, messages, constraint, params)
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}
