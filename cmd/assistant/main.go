// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command assistant runs the conversational assistant service and its
// corpus ingestion tooling.
//
// # Environment Variables
//
//   - ASSISTANT_PORT: HTTP server port (default: 12220)
//   - ASSISTANT_PIPELINE: default pipeline - adaptive, task (default: adaptive)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, openai (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - EMBEDDING_SERVICE_URL: embedding sidecar URL (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Run the server
//	assistant serve --config assistant.yaml
//
//	# Load a corpus directory into a collection
//	assistant ingest --dir ./docs/handbook --collection Handbook
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/AleutianAssist/services/assistant"
	"github.com/AleutianAI/AleutianAssist/services/assistant/config"
	"github.com/AleutianAI/AleutianAssist/services/assistant/ingest"
	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
)

var (
	configPath string
	ingestDir  string
	collection string
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Conversational assistant over local knowledge collections",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistant HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		slog.Info("Starting assistant",
			"port", cfg.Port,
			"pipeline", cfg.Pipeline,
			"llm_backend", cfg.LLM.Backend,
			"weaviate_url", cfg.Weaviate.URL,
		)

		svc, err := assistant.New(cfg)
		if err != nil {
			return err
		}
		return svc.Run()
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replace a corpus collection with the .txt files in a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		loader, err := newLoader(cfg)
		if err != nil {
			return err
		}

		loaded, err := loader.LoadDirectory(context.Background(), ingestDir, collection)
		if err != nil {
			return err
		}
		slog.Info("Ingestion complete", "dir", ingestDir, "passages_loaded", loaded)
		return nil
	},
}

func newLoader(cfg config.Config) (*ingest.Loader, error) {
	weaviateURL := strings.Trim(cfg.Weaviate.URL, "\"' ")
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("WEAVIATE_SERVICE_URL is required for ingestion")
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := retrieval.NewHTTPEmbedder(cfg.Embedding.URL)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_SERVICE_URL is required for ingestion: %w", err)
	}
	return ingest.NewLoader(client, embedder), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to an optional YAML configuration file")
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "",
		"directory of .txt files to load")
	ingestCmd.Flags().StringVar(&collection, "collection", "",
		"target collection name (default: derived from the directory name)")
	_ = ingestCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(serveCmd, ingestCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
