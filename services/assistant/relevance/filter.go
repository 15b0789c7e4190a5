// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relevance grades retrieved passages against the user's question and
// drops the ones judged off-topic before synthesis sees them.
package relevance

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
	"github.com/AleutianAI/AleutianAssist/services/assistant/observability"
)

var tracer = otel.Tracer("aleutian.assistant.relevance")

const graderPrompt = `You are a grader assessing whether a retrieved document
is relevant to a user question. It does not need to answer the question fully;
it is relevant if it contains information that helps answer it.`

// Filter grades snippets for relevance to a question.
type Filter struct {
	client      *llm.ConstrainedClient
	concurrency int
}

// NewFilter creates a relevance filter. Judgments for one batch run on up to
// concurrency goroutines; a non-positive value means 4.
func NewFilter(client *llm.ConstrainedClient, concurrency int) *Filter {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Filter{client: client, concurrency: concurrency}
}

// Keep grades each snippet independently and returns the relevant ones in
// their original order.
//
// # Description
//
// Each snippet gets its own yes/no completion. A judgment that fails outright
// (transport error or retry exhaustion) keeps the snippet: losing context to
// a flaky grader is worse than passing an off-topic passage through.
//
// # Inputs
//
//   - ctx: Cancellation and tracing context.
//   - question: The user's question being answered.
//   - snippets: Retrieved passages to grade.
//
// # Outputs
//
//   - []datatypes.Snippet: Snippets judged relevant, original order preserved.
func (f *Filter) Keep(ctx context.Context, question string,
	snippets []datatypes.Snippet) []datatypes.Snippet {

	ctx, span := tracer.Start(ctx, "Filter.Keep")
	defer span.End()
	span.SetAttributes(attribute.Int("relevance.candidates", len(snippets)))

	if len(snippets) == 0 {
		return nil
	}

	verdicts := make([]bool, len(snippets))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.concurrency)
	for i, snippet := range snippets {
		group.Go(func() error {
			verdicts[i] = f.judge(groupCtx, question, snippet)
			return nil
		})
	}
	// Workers never return errors; Wait just joins them.
	_ = group.Wait()

	kept := make([]datatypes.Snippet, 0, len(snippets))
	for i, snippet := range snippets {
		if verdicts[i] {
			kept = append(kept, snippet)
		}
	}

	span.SetAttributes(attribute.Int("relevance.kept", len(kept)))
	slog.Debug("Graded snippets for relevance",
		"candidates", len(snippets), "kept", len(kept))
	return kept
}

func (f *Filter) judge(ctx context.Context, question string,
	snippet datatypes.Snippet) bool {

	prompt := fmt.Sprintf("Retrieved document:\n%s\n\nUser question: %s\n\n"+
		"Is the document relevant to the question?", snippet.Text, question)

	relevant, err := f.client.CompleteBool(ctx, graderPrompt,
		[]datatypes.Message{datatypes.UserMessage(prompt)}, llm.GenerationParams{})
	if err != nil {
		slog.Warn("Relevance judgment failed, keeping snippet",
			"source", snippet.Source, "error", err)
		observability.RecordSnippetJudgment("error_kept")
		return true
	}

	if relevant {
		observability.RecordSnippetJudgment("kept")
	} else {
		observability.RecordSnippetJudgment("dropped")
	}
	return relevant
}
