// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline assembles the conversation pipelines: the adaptive
// retrieval-and-routing flow and the two-phase tool/action flow. Each step
// here owns one phase of a turn and absorbs its backend failures into the
// phase's default so a turn always completes with an answer.
package pipeline

import "log/slog"

// Route sentinels offered to the router alongside the collection names.
const (
	RouteWebSearch = "web_search"
	RouteAssistant = "assistant"
	RouteTerminate = "terminate"
)

// Step names, shared between graph construction and resume points.
const (
	StepRouter          = "router"
	StepRewriteQuery    = "rewrite_query"
	StepSearchCorpus    = "search_corpus"
	StepExtractKeywords = "extract_keywords"
	StepWebSearch       = "web_search"
	StepFilterSnippets  = "filter_snippets"
	StepSynthesize      = "synthesize"
	StepTerminate       = "terminate"

	StepSelectTool    = "select_tool"
	StepCallTool      = "call_tool"
	StepSelectAction  = "select_action"
	StepCallAction    = "call_action"
	StepFormatResults = "format_results"
)

// defaultExitKeywords short-circuit the router to terminate.
var defaultExitKeywords = []string{"exit", "quit", "q"}

// Config carries the tunable pieces of both pipelines. Tone, language, and
// length constraints live in the synthesis system prompt so deployments can
// localize without code changes.
type Config struct {
	// SynthesisSystemPrompt fixes the assistant's voice for final answers.
	SynthesisSystemPrompt string

	// Apology is the user-visible fallback when synthesis itself fails.
	Apology string

	// Goodbye is emitted on the terminate route.
	Goodbye string

	// DocsLimit caps snippets per retrieval call.
	DocsLimit int

	// ExitKeywords terminate the session without a model call. Matched
	// case-insensitively against the whole query.
	ExitKeywords []string
}

// DefaultConfig returns workable defaults for every field.
func DefaultConfig() Config {
	return Config{
		SynthesisSystemPrompt: "You are a friendly assistant. Answer briefly " +
			"and clearly; summarize when the full answer would be long.",
		Apology:      "Sorry, please try again.",
		Goodbye:      "Goodbye!",
		DocsLimit:    5,
		ExitKeywords: defaultExitKeywords,
	}
}

// applyDefaults fills unset fields in place.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.SynthesisSystemPrompt == "" {
		c.SynthesisSystemPrompt = defaults.SynthesisSystemPrompt
	}
	if c.Apology == "" {
		c.Apology = defaults.Apology
	}
	if c.Goodbye == "" {
		c.Goodbye = defaults.Goodbye
	}
	if c.DocsLimit <= 0 {
		slog.Debug("DocsLimit not set, using default", "default", defaults.DocsLimit)
		c.DocsLimit = defaults.DocsLimit
	}
	if len(c.ExitKeywords) == 0 {
		c.ExitKeywords = defaults.ExitKeywords
	}
}
