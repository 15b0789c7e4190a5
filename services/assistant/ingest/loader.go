// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
)

var tracer = otel.Tracer("aleutian.assistant.ingest")

// Loader replaces corpus collections with freshly split and embedded
// passages.
type Loader struct {
	client    *weaviate.Client
	embedder  retrieval.EmbeddingProvider
	threshold int
}

func NewLoader(client *weaviate.Client, embedder retrieval.EmbeddingProvider) *Loader {
	return &Loader{
		client:    client,
		embedder:  embedder,
		threshold: DefaultMergeThreshold,
	}
}

// LoadDirectory ingests every .txt file under dir into one collection named
// after the directory's base name. Each file's stem becomes the passage
// source label.
func (l *Loader) LoadDirectory(ctx context.Context, dir, collection string) (int, error) {
	if collection == "" {
		collection = defaultCollectionName(dir)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no .txt files found in %s", dir)
	}

	var passages []Passage
	for _, path := range entries {
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", path, err)
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		passages = append(passages, SplitDocument(string(raw), stem, l.threshold)...)
	}

	return l.ReplaceCollection(ctx, collection, passages)
}

// ReplaceCollection drops and recreates the collection, then batch-loads
// the passages with their vectors.
//
// # Description
//
//	Replacement rather than merge: re-ingesting a corpus must not leave
//	stale passages behind. Object ids are derived from the passage text, so
//	identical passages across runs keep stable ids. An embedding failure
//	for one passage skips that passage and continues; the collection is
//	still usable for keyword search.
func (l *Loader) ReplaceCollection(ctx context.Context, collection string,
	passages []Passage) (int, error) {

	ctx, span := tracer.Start(ctx, "Loader.ReplaceCollection")
	defer span.End()

	if len(passages) == 0 {
		return 0, fmt.Errorf("nothing to load into %s", collection)
	}

	if err := l.recreateClass(ctx, collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema replace failed")
		return 0, err
	}

	objects := make([]*models.Object, 0, len(passages))
	for _, passage := range passages {
		vector, err := l.embedder.Embed(ctx, passage.Text)
		if err != nil {
			slog.Warn("Skipping passage that failed to embed",
				"collection", collection, "source", passage.Source, "error", err)
			continue
		}

		hash := sha256.Sum256([]byte(passage.Text))
		objectUUID, _ := uuid.FromBytes(hash[:16])

		objects = append(objects, &models.Object{
			Class:  collection,
			ID:     strfmt.UUID(objectUUID.String()),
			Vector: vector,
			Properties: map[string]interface{}{
				"content":     passage.Text,
				"source":      passage.Source,
				"ingested_at": time.Now().UnixMilli(),
			},
		})
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("every passage failed to embed for %s", collection)
	}

	resp, err := l.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch import failed")
		return 0, fmt.Errorf("failed to load passages into %s: %w", collection, err)
	}

	loaded := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			loaded++
		} else if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Weaviate batch item failed",
					"collection", collection, "error", errItem.Message)
			}
		}
	}

	slog.Info("Corpus collection replaced",
		"collection", collection, "passages", len(passages), "loaded", loaded)
	return loaded, nil
}

func (l *Loader) recreateClass(ctx context.Context, collection string) error {
	exists, err := l.client.Schema().ClassExistenceChecker().
		WithClassName(collection).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if exists {
		if err := l.client.Schema().ClassDeleter().
			WithClassName(collection).Do(ctx); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", collection, err)
		}
	}

	class := datatypes.GetCorpusSchema(collection)
	if err := l.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	return nil
}

// defaultCollectionName maps a directory path to a Weaviate class name:
// base name, first letter upper-cased, separators stripped.
func defaultCollectionName(dir string) string {
	base := filepath.Base(filepath.Clean(dir))
	cleaned := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == ' ' || r == '.' {
			return -1
		}
		return r
	}, base)
	if cleaned == "" {
		return "Corpus"
	}
	return strings.ToUpper(cleaned[:1]) + cleaned[1:]
}
