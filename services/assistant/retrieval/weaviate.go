// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval provides hybrid search over Weaviate corpus collections
// and keyword search over the public web.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

var tracer = otel.Tracer("aleutian.assistant.retrieval")

// CorpusSearcher retrieves passages from named corpus collections.
type CorpusSearcher interface {
	// Collections lists the corpus collections currently routable to.
	Collections(ctx context.Context) ([]string, error)
	// Search runs a hybrid (keyword + vector) query against one collection.
	Search(ctx context.Context, collection, query string, limit int) ([]datatypes.Snippet, error)
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// TopK is the result limit applied when the caller passes limit <= 0.
	TopK int
	// Alpha balances BM25 (0) against vector similarity (1).
	Alpha float32
	// MaxEmbedLength truncates queries before embedding.
	MaxEmbedLength int
}

// DefaultSearchConfig returns the standard retrieval settings.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:           5,
		Alpha:          0.5,
		MaxEmbedLength: 2048,
	}
}

// WeaviateCorpusSearcher implements CorpusSearcher over a Weaviate instance.
//
// # Description
//
// Corpus collections are discovered from the live schema: every class whose
// description carries the corpus marker is routable. Discovery runs per call
// so collections created or dropped by ingestion show up without a restart.
//
// # Thread Safety
//
// WeaviateCorpusSearcher is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
type WeaviateCorpusSearcher struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
	config   SearchConfig
}

// NewWeaviateCorpusSearcher creates a corpus searcher. Config values are
// validated and corrected if necessary. A nil embedder is allowed and
// limits every search to its BM25 arm.
func NewWeaviateCorpusSearcher(client *weaviate.Client, embedder EmbeddingProvider,
	config SearchConfig) *WeaviateCorpusSearcher {

	return &WeaviateCorpusSearcher{
		client:   client,
		embedder: embedder,
		config:   validateSearchConfig(config),
	}
}

// validateSearchConfig validates and corrects search configuration values.
// Logs warnings for invalid values and applies sensible defaults.
func validateSearchConfig(config SearchConfig) SearchConfig {
	defaults := DefaultSearchConfig()

	if config.TopK < 1 {
		slog.Warn("Invalid TopK config, using default",
			"provided", config.TopK, "default", defaults.TopK)
		config.TopK = defaults.TopK
	}
	if config.Alpha < 0 || config.Alpha > 1 {
		slog.Warn("Invalid Alpha config, using default",
			"provided", config.Alpha, "default", defaults.Alpha)
		config.Alpha = defaults.Alpha
	}
	if config.MaxEmbedLength < 1 {
		slog.Warn("Invalid MaxEmbedLength config, using default",
			"provided", config.MaxEmbedLength, "default", defaults.MaxEmbedLength)
		config.MaxEmbedLength = defaults.MaxEmbedLength
	}
	return config
}

// Collections lists corpus classes from the live schema.
//
// # Outputs
//
//   - []string: Routable collection names, sorted for stable prompting.
//   - error: Non-nil if the schema cannot be read.
func (s *WeaviateCorpusSearcher) Collections(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Collections")
	defer span.End()

	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		slog.Error("Failed to read Weaviate schema", "error", err)
		return nil, fmt.Errorf("failed to read weaviate schema: %w", err)
	}

	names := make([]string, 0, len(schema.Classes))
	for _, class := range schema.Classes {
		if class.Description == datatypes.CorpusClassDescription {
			names = append(names, class.Class)
		}
	}
	sort.Strings(names)
	span.SetAttributes(attribute.Int("retrieval.collections", len(names)))
	return names, nil
}

// Search runs one hybrid query against a corpus collection.
//
// # Description
//
// The query text drives both the BM25 arm and, through the embedder, the
// vector arm of the hybrid search. If embedding fails the search degrades to
// keyword-only rather than failing the turn.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - collection: The corpus class to search.
//   - query: The retrieval query text.
//   - limit: Maximum passages to return; <= 0 means the configured TopK.
//
// # Outputs
//
//   - []datatypes.Snippet: Retrieved passages, highest hybrid score first.
//   - error: Non-nil if the search itself fails.
func (s *WeaviateCorpusSearcher) Search(ctx context.Context, collection, query string,
	limit int) ([]datatypes.Snippet, error) {

	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.collection", collection),
		attribute.Int("retrieval.limit", limit),
	)
	if limit <= 0 {
		limit = s.config.TopK
	}

	slog.Debug("Running hybrid search", "collection", collection, "limit", limit)

	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithAlpha(s.config.Alpha)

	// The vector arm is optional: corpus vectors are supplied at ingest time
	// (Vectorizer "none"), so no embedder or a failed embedding just means
	// keyword-only.
	if s.embedder == nil {
		slog.Debug("No embedder configured, running keyword-only search")
	} else if vector, err := s.embedder.Embed(ctx, truncateForEmbedding(query,
		s.config.MaxEmbedLength)); err != nil {
		slog.Warn("Embedding failed, degrading to keyword-only search", "error", err)
	} else {
		hybrid = hybrid.WithVector(vector)
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "score"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(collection).
		WithFields(fields...).
		WithHybrid(hybrid).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		slog.Error("Hybrid search failed", "collection", collection, "error", err)
		return nil, fmt.Errorf("weaviate hybrid search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.CorpusQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse hybrid search results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	snippets := make([]datatypes.Snippet, 0, len(parsed.Get[collection]))
	for _, hit := range parsed.Get[collection] {
		snippets = append(snippets, datatypes.Snippet{
			Text:   hit.Content,
			Source: hit.Source,
		})
	}
	slog.Debug("Hybrid search returned passages",
		"collection", collection, "count", len(snippets))
	return snippets, nil
}

// truncateForEmbedding caps the query at max bytes without splitting a rune,
// so the embedding sidecar always receives valid UTF-8.
func truncateForEmbedding(query string, max int) string {
	if len(query) <= max {
		return query
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(query[cut]) {
		cut--
	}
	return query[:cut]
}
