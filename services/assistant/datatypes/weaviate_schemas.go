// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// CorpusClassDescription marks a Weaviate class as an assistant knowledge
// collection. Router candidate sets are built from classes carrying this
// description, so ingesting a new corpus makes it routable on the next turn
// with no restart.
const CorpusClassDescription = "aleutian-assist knowledge collection"

// GetCorpusSchema returns the schema for one topic collection.
//
// Each collection is an independently searchable corpus holding text
// passages with a BM25-searchable content property alongside externally
// computed vectors, so hybrid search works immediately after load.
func GetCorpusSchema(className string) *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true
	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       className,
		Description: CorpusClassDescription,
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "The passage text.",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Label of the file the passage came from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the passage was loaded.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetSessionSchema returns the schema for persisted session snapshots.
//
// The full session (history, scratch, resume point) is stored as a JSON
// blob; session_id and updated_at are indexed for lookup and TTL reaping.
func GetSessionSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "AssistantSession",
		Description: "A persisted conversation session snapshot.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The session's unique id.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "state_json",
				DataType:    []string{"text"},
				Description: "JSON-encoded session state (history, scratch, resume point).",
			},
			{
				Name:            "updated_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of the last committed step.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureBaseSchema creates the session class if it does not exist yet.
// Corpus classes are created by the ingest path, not here.
func EnsureBaseSchema(ctx context.Context, client *weaviate.Client) error {
	class := GetSessionSchema()

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return err
	}
	slog.Info("Successfully created schema", "class", class.Class)
	return nil
}
