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
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// AdaptiveDeps collects the backends the adaptive pipeline steps need.
type AdaptiveDeps struct {
	Client *llm.ConstrainedClient
	Corpus retrieval.CorpusSearcher
	Web    retrieval.WebSearcher
	Filter SnippetFilter
	Config Config
}

// BuildAdaptiveGraph assembles the routed retrieval pipeline.
//
// # Description
//
//	The router dispatches each turn: exit keywords and the terminate route
//	halt the session, the assistant route answers from history alone, the
//	web_search route extracts keywords and searches the web, and any corpus
//	collection falls through the default edge into query rewriting and
//	hybrid search. Both retrieval branches converge on the relevance filter
//	before synthesis. Synthesis loops back to the router so the next call
//	resumes there.
//
// # Outputs
//
//	A validated flow.Graph, or the builder's accumulated error.
func BuildAdaptiveGraph(deps AdaptiveDeps) (*flow.Graph, error) {
	cfg := deps.Config
	cfg.applyDefaults()

	return flow.NewBuilder("adaptive").
		AddStep(NewRouterStep(deps.Client, deps.Corpus, cfg.ExitKeywords)).
		AddStep(NewRewriteQueryStep(deps.Client)).
		AddStep(NewSearchCorpusStep(deps.Corpus, cfg.DocsLimit)).
		AddStep(NewExtractKeywordsStep(deps.Client)).
		AddStep(NewWebSearchStep(deps.Web)).
		AddStep(NewFilterSnippetsStep(deps.Filter)).
		AddStep(NewSynthesizeStep(deps.Client, cfg)).
		AddStep(NewTerminateStep(cfg.Goodbye)).
		AddTransition(StepRouter, StepTerminate,
			flow.When(datatypes.KeyRoute, RouteTerminate)).
		AddTransition(StepRouter, StepSynthesize,
			flow.When(datatypes.KeyRoute, RouteAssistant)).
		AddTransition(StepRouter, StepExtractKeywords,
			flow.When(datatypes.KeyRoute, RouteWebSearch)).
		AddDefault(StepRouter, StepRewriteQuery).
		AddDefault(StepRewriteQuery, StepSearchCorpus).
		AddDefault(StepSearchCorpus, StepFilterSnippets).
		AddDefault(StepExtractKeywords, StepWebSearch).
		AddDefault(StepWebSearch, StepFilterSnippets).
		AddDefault(StepFilterSnippets, StepSynthesize).
		AddDefault(StepSynthesize, StepRouter).
		WithEntrypoint(StepRouter).
		WithHalt(StepSynthesize, StepTerminate).
		Build()
}

// TaskDeps collects the backends the two-phase task pipeline needs.
type TaskDeps struct {
	Client  *llm.ConstrainedClient
	Tools   *tools.Catalog
	Actions *tools.Catalog
	Config  Config
}

// BuildTaskGraph assembles the two-phase tool/action pipeline. Every turn
// walks the same five steps; branching lives in the catalogs, not the graph.
func BuildTaskGraph(deps TaskDeps) (*flow.Graph, error) {
	cfg := deps.Config
	cfg.applyDefaults()

	return flow.NewBuilder("task").
		AddStep(NewSelectToolStep(deps.Client, deps.Tools)).
		AddStep(NewCallToolStep(deps.Tools)).
		AddStep(NewSelectActionStep(deps.Client, deps.Actions)).
		AddStep(NewCallActionStep(deps.Actions)).
		AddStep(NewFormatResultsStep(deps.Client, cfg)).
		AddDefault(StepSelectTool, StepCallTool).
		AddDefault(StepCallTool, StepSelectAction).
		AddDefault(StepSelectAction, StepCallAction).
		AddDefault(StepCallAction, StepFormatResults).
		AddDefault(StepFormatResults, StepSelectTool).
		WithEntrypoint(StepSelectTool).
		WithHalt(StepFormatResults).
		Build()
}
