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
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
	"github.com/AleutianAI/AleutianAssist/services/assistant/observability"
	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
)

// SnippetFilter grades retrieved snippets; relevance.Filter implements it.
type SnippetFilter interface {
	Keep(ctx context.Context, question string,
		snippets []datatypes.Snippet) []datatypes.Snippet
}

// =============================================================================
// Router
// =============================================================================

// RouterStep classifies a turn into a collection name, web_search, assistant,
// or terminate.
type RouterStep struct {
	flow.BaseStep
	client       *llm.ConstrainedClient
	searcher     retrieval.CorpusSearcher
	exitKeywords []string
}

func NewRouterStep(client *llm.ConstrainedClient, searcher retrieval.CorpusSearcher,
	exitKeywords []string) *RouterStep {

	return &RouterStep{
		BaseStep: flow.BaseStep{
			StepName:   StepRouter,
			StepReads:  []string{datatypes.KeyQuery},
			StepWrites: []string{datatypes.KeyRoute},
		},
		client:       client,
		searcher:     searcher,
		exitKeywords: exitKeywords,
	}
}

// Run decides the route for the current query.
//
// Exit keywords short-circuit to terminate with no model call. The candidate
// set is recomputed from the live collections every turn; collections change
// between sessions, so caching it would route to stale corpora. On retry
// exhaustion or transport failure the route defaults to assistant: a degraded
// direct answer beats a blocked turn.
func (s *RouterStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	query := sess.ScratchString(datatypes.KeyQuery)

	for _, keyword := range s.exitKeywords {
		if strings.EqualFold(strings.TrimSpace(query), keyword) {
			slog.Info("Exit keyword received, terminating session",
				"session_id", sess.Id)
			return map[string]any{datatypes.KeyRoute: RouteTerminate}, nil
		}
	}

	collections, err := s.searcher.Collections(ctx)
	if err != nil {
		slog.Warn("Failed to list collections, routing without them", "error", err)
		collections = nil
	}
	candidates := append(collections, RouteWebSearch, RouteAssistant)

	route, err := s.client.CompleteEnum(ctx, "",
		[]datatypes.Message{datatypes.UserMessage(
			routerPrompt(candidates, sess.History, query))},
		candidates, llm.GenerationParams{})
	if err != nil {
		slog.Warn("Router failed, defaulting to assistant",
			"session_id", sess.Id, "error", err)
		route = RouteAssistant
	}

	slog.Debug("Routed query", "session_id", sess.Id, "route", route)
	return map[string]any{datatypes.KeyRoute: route}, nil
}

// =============================================================================
// Query Rewriting
// =============================================================================

type retrievalQuery struct {
	Keywords []string `json:"keywords"`
	Query    string   `json:"query"`
}

func (q retrievalQuery) String() string {
	return strings.Join(q.Keywords, ", ") + ", " + q.Query
}

func retrievalQueryConstraint() llm.JSONConstraint[retrievalQuery] {
	return llm.JSONConstraint[retrievalQuery]{
		Example: retrievalQuery{
			Keywords: []string{"solar", "panel", "installation"},
			Query:    "residential solar panel installation requirements",
		},
		Validate: func(q retrievalQuery) error {
			if len(q.Keywords) < 1 || len(q.Keywords) > 10 {
				return fmt.Errorf("keywords must have 1 to 10 entries, got %d",
					len(q.Keywords))
			}
			if len(q.Query) < 10 || len(q.Query) > 300 {
				return fmt.Errorf("query must be 10 to 300 characters, got %d",
					len(q.Query))
			}
			return nil
		},
	}
}

// RewriteQueryStep turns the raw user query into a hybrid-search query.
type RewriteQueryStep struct {
	flow.BaseStep
	client *llm.ConstrainedClient
}

func NewRewriteQueryStep(client *llm.ConstrainedClient) *RewriteQueryStep {
	return &RewriteQueryStep{
		BaseStep: flow.BaseStep{
			StepName:   StepRewriteQuery,
			StepReads:  []string{datatypes.KeyQuery},
			StepWrites: []string{datatypes.KeyRetrievalQuery},
		},
		client: client,
	}
}

// Run rewrites the query. On failure the raw query is used as-is: worse
// retrieval beats no retrieval.
func (s *RewriteQueryStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	query := sess.ScratchString(datatypes.KeyQuery)
	rewritten := query

	result, err := llm.CompleteJSON(ctx, s.client, "",
		[]datatypes.Message{datatypes.UserMessage(
			rewritePrompt(query, sess.History))},
		retrievalQueryConstraint(), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Query rewrite failed, searching with the raw query",
			"session_id", sess.Id, "error", err)
	} else {
		rewritten = result.String()
	}

	return map[string]any{datatypes.KeyRetrievalQuery: rewritten}, nil
}

// =============================================================================
// Corpus Search
// =============================================================================

// SearchCorpusStep runs the hybrid search against the routed collection.
type SearchCorpusStep struct {
	flow.BaseStep
	searcher retrieval.CorpusSearcher
	limit    int
}

func NewSearchCorpusStep(searcher retrieval.CorpusSearcher, limit int) *SearchCorpusStep {
	return &SearchCorpusStep{
		BaseStep: flow.BaseStep{
			StepName:   StepSearchCorpus,
			StepReads:  []string{datatypes.KeyRoute, datatypes.KeyRetrievalQuery},
			StepWrites: []string{datatypes.KeySnippets},
		},
		searcher: searcher,
		limit:    limit,
	}
}

// Run searches the routed collection. A backend failure degrades to no extra
// context rather than aborting the turn.
func (s *SearchCorpusStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	collection := sess.ScratchString(datatypes.KeyRoute)
	query := sess.ScratchString(datatypes.KeyRetrievalQuery)

	snippets, err := s.searcher.Search(ctx, collection, query, s.limit)
	if err != nil {
		slog.Warn("Corpus search failed, continuing without context",
			"session_id", sess.Id, "collection", collection, "error", err)
		observability.RecordRetrievalFailure("corpus")
		snippets = []datatypes.Snippet{}
	}
	return map[string]any{datatypes.KeySnippets: snippets}, nil
}

// =============================================================================
// Web Search
// =============================================================================

type webKeywords struct {
	Keywords []string `json:"keywords"`
}

func webKeywordsConstraint() llm.JSONConstraint[webKeywords] {
	return llm.JSONConstraint[webKeywords]{
		Example: webKeywords{Keywords: []string{"topic", "background", "intent"}},
		Validate: func(k webKeywords) error {
			if len(k.Keywords) < 2 || len(k.Keywords) > 5 {
				return fmt.Errorf("keywords must have 2 to 5 entries, got %d",
					len(k.Keywords))
			}
			return nil
		},
	}
}

// ExtractKeywordsStep condenses the query into web search keywords.
type ExtractKeywordsStep struct {
	flow.BaseStep
	client *llm.ConstrainedClient
}

func NewExtractKeywordsStep(client *llm.ConstrainedClient) *ExtractKeywordsStep {
	return &ExtractKeywordsStep{
		BaseStep: flow.BaseStep{
			StepName:   StepExtractKeywords,
			StepReads:  []string{datatypes.KeyQuery},
			StepWrites: []string{datatypes.KeyWebKeywords},
		},
		client: client,
	}
}

// Run extracts keywords; on failure the raw query stands in for them.
func (s *ExtractKeywordsStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	query := sess.ScratchString(datatypes.KeyQuery)
	keywords := []string{query}

	result, err := llm.CompleteJSON(ctx, s.client, "",
		[]datatypes.Message{datatypes.UserMessage(webKeywordsPrompt(query))},
		webKeywordsConstraint(), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Keyword extraction failed, searching with the raw query",
			"session_id", sess.Id, "error", err)
	} else {
		keywords = result.Keywords
	}

	return map[string]any{datatypes.KeyWebKeywords: keywords}, nil
}

// WebSearchStep queries the public web with the extracted keywords.
type WebSearchStep struct {
	flow.BaseStep
	web retrieval.WebSearcher
}

func NewWebSearchStep(web retrieval.WebSearcher) *WebSearchStep {
	return &WebSearchStep{
		BaseStep: flow.BaseStep{
			StepName:   StepWebSearch,
			StepReads:  []string{datatypes.KeyWebKeywords},
			StepWrites: []string{datatypes.KeySnippets},
		},
		web: web,
	}
}

func (s *WebSearchStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	keywords := sess.ScratchStringList(datatypes.KeyWebKeywords)
	snippets, err := s.web.SearchWeb(ctx, keywords)
	if err != nil {
		slog.Warn("Web search failed, continuing without context",
			"session_id", sess.Id, "error", err)
		observability.RecordRetrievalFailure("web")
		snippets = []datatypes.Snippet{}
	}
	return map[string]any{datatypes.KeySnippets: snippets}, nil
}

// =============================================================================
// Relevance Filter
// =============================================================================

// FilterSnippetsStep drops retrieved snippets judged irrelevant.
type FilterSnippetsStep struct {
	flow.BaseStep
	filter SnippetFilter
}

func NewFilterSnippetsStep(filter SnippetFilter) *FilterSnippetsStep {
	return &FilterSnippetsStep{
		BaseStep: flow.BaseStep{
			StepName:   StepFilterSnippets,
			StepReads:  []string{datatypes.KeyQuery, datatypes.KeySnippets},
			StepWrites: []string{datatypes.KeySnippets},
		},
		filter: filter,
	}
}

func (s *FilterSnippetsStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	snippets := sess.ScratchSnippets(datatypes.KeySnippets)
	if len(snippets) == 0 {
		return nil, nil
	}
	kept := s.filter.Keep(ctx, sess.ScratchString(datatypes.KeyQuery), snippets)
	return map[string]any{datatypes.KeySnippets: kept}, nil
}

// =============================================================================
// Synthesis
// =============================================================================

// SynthesizeStep produces the final answer and closes the turn.
type SynthesizeStep struct {
	flow.BaseStep
	client *llm.ConstrainedClient
	config Config
}

func NewSynthesizeStep(client *llm.ConstrainedClient, config Config) *SynthesizeStep {
	writes := append([]string{datatypes.KeyFinalOutput, datatypes.KeySources},
		datatypes.TurnScopedKeys...)
	return &SynthesizeStep{
		BaseStep: flow.BaseStep{
			StepName:   StepSynthesize,
			StepReads:  []string{datatypes.KeyQuery, datatypes.KeySnippets},
			StepWrites: writes,
		},
		client: client,
		config: config,
	}
}

// Run merges history, query, and surviving snippets into one free-text call.
//
// Afterwards the raw user query and the answer are appended to history and
// every turn-scoped scratch key is cleared: history is the only thing that
// survives the turn boundary. A synthesis failure still answers the user,
// with the configured apology.
func (s *SynthesizeStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	query := sess.ScratchString(datatypes.KeyQuery)
	snippets := sess.ScratchSnippets(datatypes.KeySnippets)

	messages := make([]datatypes.Message, 0, len(sess.History)+1)
	messages = append(messages, sess.History...)
	messages = append(messages, datatypes.UserMessage(withContext(query, snippets)))

	response, err := s.client.CompleteText(ctx, s.config.SynthesisSystemPrompt,
		messages, llm.GenerationParams{})
	if err != nil {
		slog.Error("Synthesis failed, answering with apology",
			"session_id", sess.Id, "error", err)
		response = s.config.Apology
	}

	sess.AppendHistory(datatypes.UserMessage(query), datatypes.AssistantMessage(response))

	delta := map[string]any{
		datatypes.KeyFinalOutput: response,
		datatypes.KeySources:     snippetSources(snippets),
	}
	for _, key := range datatypes.TurnScopedKeys {
		delta[key] = nil
	}
	return delta, nil
}

// snippetSources collects the distinct source labels of the snippets that
// informed the answer, in retrieval order. Nil when the answer came from
// history alone, which clears any sources from an earlier turn.
func snippetSources(snippets []datatypes.Snippet) any {
	if len(snippets) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(snippets))
	sources := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if s.Source == "" || seen[s.Source] {
			continue
		}
		seen[s.Source] = true
		sources = append(sources, s.Source)
	}
	if len(sources) == 0 {
		return nil
	}
	return sources
}

// =============================================================================
// Termination
// =============================================================================

// TerminateStep ends the session.
type TerminateStep struct {
	flow.BaseStep
	goodbye string
}

func NewTerminateStep(goodbye string) *TerminateStep {
	return &TerminateStep{
		BaseStep: flow.BaseStep{
			StepName:   StepTerminate,
			StepWrites: []string{datatypes.KeyFinalOutput, datatypes.KeySources},
		},
		goodbye: goodbye,
	}
}

func (s *TerminateStep) Run(ctx context.Context,
	sess *datatypes.Session) (map[string]any, error) {

	sess.Terminated = true
	return map[string]any{
		datatypes.KeyFinalOutput: s.goodbye,
		datatypes.KeySources:     nil,
	}, nil
}
