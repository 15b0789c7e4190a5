// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant assembles the conversational assistant service: the
// HTTP surface, the conversation pipelines, retrieval and speech backends,
// session persistence, and observability.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := assistant.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianAssist/services/assistant/config"
	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/handlers"
	"github.com/AleutianAI/AleutianAssist/services/assistant/ingest"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
	"github.com/AleutianAI/AleutianAssist/services/assistant/observability"
	"github.com/AleutianAI/AleutianAssist/services/assistant/pipeline"
	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/session"
	"github.com/AleutianAI/AleutianAssist/services/assistant/speech"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// Service is the assistant service lifecycle.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the configured Gin engine for integration tests.
	Router() *gin.Engine
}

type service struct {
	config         config.Config
	router         *gin.Engine
	weaviateClient *weaviate.Client
	sessions       *session.Manager
	tracerCleanup  func(context.Context)
	reaperCancel   context.CancelFunc
}

// New wires the assistant from configuration.
//
// # Description
//
//	Initialization order matters: tracing and metrics first so every later
//	component can emit, then Weaviate (optional — without it the service
//	runs in lightweight mode with in-memory sessions and no corpus routes),
//	then the LLM client, retrieval and speech backends, and finally the two
//	pipelines and HTTP routes. A missing optional backend degrades the
//	related feature instead of failing startup; only an unreachable tracer,
//	a bad LLM backend name, or an invalid pipeline graph are fatal.
func New(cfg config.Config) (Service, error) {
	s := &service{config: cfg}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup
	observability.InitMetrics()

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, running in lightweight mode",
			"error", err)
	}

	llmClient, err := llm.NewClient(llm.BackendConfig{
		Backend: cfg.LLM.Backend,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	constrained := llm.NewConstrainedClient(llmClient, cfg.LLM.MaxAttempts)

	var embedder retrieval.EmbeddingProvider
	if cfg.Embedding.URL != "" {
		embedder, err = retrieval.NewHTTPEmbedder(cfg.Embedding.URL)
		if err != nil {
			slog.Warn("Embedding service unavailable, hybrid search degrades to keyword-only",
				"error", err)
			embedder = nil
		}
	}

	var corpus retrieval.CorpusSearcher = noopCorpus{}
	var loader *ingest.Loader
	if s.weaviateClient != nil {
		corpus = retrieval.NewWeaviateCorpusSearcher(s.weaviateClient, embedder,
			retrieval.SearchConfig{})
		if embedder != nil {
			loader = ingest.NewLoader(s.weaviateClient, embedder)
		}
	}

	var web retrieval.WebSearcher = noopWeb{}
	if ddg, err := retrieval.NewDuckDuckGoSearcher(0); err != nil {
		slog.Warn("Web search unavailable", "error", err)
	} else {
		web = ddg
	}

	store := s.initSessionStore()
	s.sessions = session.NewManager(store)

	pipelines, err := s.buildPipelines(constrained, corpus, web, store)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	var transcriber speech.Transcriber
	if cfg.Speech.STTURL != "" {
		transcriber = speech.NewHTTPTranscriber(cfg.Speech.STTURL)
	}
	var synthesizer speech.Synthesizer
	if cfg.Speech.TTSURL != "" {
		synthesizer = speech.NewHTTPSynthesizer(cfg.Speech.TTSURL)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("assistant-service"))
	routes.SetupRoutes(s.router, routes.Deps{
		Sessions:    s.sessions,
		Pipelines:   pipelines,
		Corpus:      corpus,
		Loader:      loader,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
	})

	return s, nil
}

func (s *service) Run() error {
	defer s.cleanup()

	reaperCtx, cancel := context.WithCancel(context.Background())
	s.reaperCancel = cancel
	reaper := session.NewReaper(s.sessions.Store(),
		session.WithMaxIdle(s.config.Session.MaxIdle),
		session.WithReapInterval(s.config.Session.ReapInterval))
	go reaper.Run(reaperCtx)

	slog.Info("Starting assistant server", "port", s.config.Port)
	return s.router.Run(":" + s.config.Port)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) cleanup() {
	if s.reaperCancel != nil {
		s.reaperCancel()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.Weaviate.URL, "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, running in lightweight mode")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := datatypes.EnsureBaseSchema(context.Background(), client); err != nil {
		return fmt.Errorf("failed to ensure base schema: %w", err)
	}
	s.weaviateClient = client
	return nil
}

func (s *service) initSessionStore() session.Store {
	if s.config.Session.Backend == "weaviate" && s.weaviateClient != nil {
		slog.Info("Using Weaviate-backed session store")
		return session.NewWeaviateStore(s.weaviateClient)
	}
	if s.config.Session.Backend == "weaviate" {
		slog.Warn("Weaviate session store requested but Weaviate is unavailable, " +
			"falling back to in-memory sessions")
	}
	return session.NewMemoryStore()
}

func (s *service) buildPipelines(client *llm.ConstrainedClient,
	corpus retrieval.CorpusSearcher, web retrieval.WebSearcher,
	store session.Store) (handlers.Pipelines, error) {

	persist := func(ctx context.Context, sess *datatypes.Session) error {
		return store.Save(ctx, sess)
	}

	adaptiveGraph, err := pipeline.BuildAdaptiveGraph(pipeline.AdaptiveDeps{
		Client: client,
		Corpus: corpus,
		Web:    web,
		Filter: relevance.NewFilter(client, 0),
		Config: pipeline.DefaultConfig(),
	})
	if err != nil {
		return handlers.Pipelines{}, fmt.Errorf("failed to build adaptive pipeline: %w", err)
	}

	provider, err := s.loadChannels()
	if err != nil {
		return handlers.Pipelines{}, err
	}
	toolCatalog, err := tools.NewToolCatalog(provider)
	if err != nil {
		return handlers.Pipelines{}, fmt.Errorf("failed to build tool catalog: %w", err)
	}
	actionCatalog, err := tools.NewActionCatalog(provider)
	if err != nil {
		return handlers.Pipelines{}, fmt.Errorf("failed to build action catalog: %w", err)
	}

	taskGraph, err := pipeline.BuildTaskGraph(pipeline.TaskDeps{
		Client:  client,
		Tools:   toolCatalog,
		Actions: actionCatalog,
		Config:  pipeline.DefaultConfig(),
	})
	if err != nil {
		return handlers.Pipelines{}, fmt.Errorf("failed to build task pipeline: %w", err)
	}

	return handlers.Pipelines{
		Adaptive: flow.NewMachine(adaptiveGraph, persist),
		Task:     flow.NewMachine(taskGraph, persist),
	}, nil
}

func (s *service) loadChannels() (*tools.ChannelProvider, error) {
	if s.config.Channels.LineupPath == "" {
		slog.Info("No channel lineup configured, task pipeline runs with an empty lineup")
		return tools.NewChannelProvider(nil), nil
	}
	provider, err := tools.LoadChannelProvider(s.config.Channels.LineupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel lineup: %w", err)
	}
	return provider, nil
}

// noopCorpus serves lightweight mode: no collections, empty searches. The
// router then only ever offers web_search and assistant.
type noopCorpus struct{}

func (noopCorpus) Collections(context.Context) ([]string, error) { return nil, nil }

func (noopCorpus) Search(context.Context, string, string, int) ([]datatypes.Snippet, error) {
	return nil, nil
}

type noopWeb struct{}

func (noopWeb) SearchWeb(context.Context, []string) ([]datatypes.Snippet, error) {
	return nil, nil
}
