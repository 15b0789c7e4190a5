// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

const webUserAgent = "AleutianAssist/1.0 (conversational assistant; contact@aleutian.ai)"

// WebSearcher retrieves snippets from a public web search.
type WebSearcher interface {
	SearchWeb(ctx context.Context, keywords []string) ([]datatypes.Snippet, error)
}

// DuckDuckGoSearcher implements WebSearcher over the DuckDuckGo HTML endpoint.
type DuckDuckGoSearcher struct {
	tool       *duckduckgo.Tool
	maxResults int
}

// NewDuckDuckGoSearcher creates a web searcher returning at most maxResults
// snippets per query.
func NewDuckDuckGoSearcher(maxResults int) (*DuckDuckGoSearcher, error) {
	if maxResults < 1 {
		maxResults = 5
	}
	tool, err := duckduckgo.New(maxResults, webUserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create duckduckgo search tool: %w", err)
	}
	return &DuckDuckGoSearcher{tool: tool, maxResults: maxResults}, nil
}

// SearchWeb joins the keywords into one query and splits the search output
// back into per-result snippets.
func (d *DuckDuckGoSearcher) SearchWeb(ctx context.Context,
	keywords []string) ([]datatypes.Snippet, error) {

	ctx, span := tracer.Start(ctx, "SearchWeb")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.keywords", len(keywords)))

	query := strings.TrimSpace(strings.Join(keywords, " "))
	if query == "" {
		return nil, fmt.Errorf("web search needs at least one keyword")
	}

	slog.Debug("Running web search", "query", query)
	raw, err := d.tool.Call(ctx, query)
	if err != nil {
		slog.Error("Web search failed", "error", err)
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	snippets := splitWebResults(raw, d.maxResults)
	slog.Debug("Web search returned results", "count", len(snippets))
	return snippets, nil
}

// splitWebResults turns the tool's blank-line separated result blocks into
// snippets, dropping empty blocks and capping at max.
func splitWebResults(raw string, max int) []datatypes.Snippet {
	blocks := strings.Split(raw, "\n\n")
	snippets := make([]datatypes.Snippet, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		snippets = append(snippets, datatypes.Snippet{
			Text:   block,
			Source: "web_search",
		})
		if len(snippets) == max {
			break
		}
	}
	return snippets
}
