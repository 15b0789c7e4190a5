// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// Metrics cover the turn pipeline end to end:
//   - Turn counters (by pipeline and route)
//   - Constrained-completion attempts and retry exhaustions
//   - Retrieval failures (hybrid search degradations)
//   - Relevance-filter keep/drop decisions
//   - Turn latency histograms
//
// Exposed on /metrics. All operations are thread-safe via Prometheus's
// internal locking. Initialize once at startup via InitMetrics().
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"
const assistantSubsystem = "assistant"

// AssistantMetrics holds all Prometheus metrics for the turn pipeline.
type AssistantMetrics struct {
	// TurnsTotal counts completed turns.
	// Labels: pipeline (adaptive, task), route (collection name, web_search,
	// assistant, terminate), status (success, degraded)
	TurnsTotal *prometheus.CounterVec

	// CompletionAttemptsTotal counts underlying generation calls.
	// Labels: outcome (ok, parse_error, transport_error)
	CompletionAttemptsTotal *prometheus.CounterVec

	// RetryExhaustionsTotal counts constrained calls that ran out of attempts.
	// Labels: constraint (text, boolean, enum, record)
	RetryExhaustionsTotal *prometheus.CounterVec

	// RetrievalFailuresTotal counts hybrid-search calls degraded to empty results.
	// Labels: backend (weaviate, web_search)
	RetrievalFailuresTotal *prometheus.CounterVec

	// SnippetJudgmentsTotal counts relevance-filter decisions.
	// Labels: decision (keep, drop, keep_on_failure)
	SnippetJudgmentsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures full-turn latency.
	// Labels: pipeline (adaptive, task)
	TurnDurationSeconds *prometheus.HistogramVec
}

// metrics is the package-level singleton, set by InitMetrics. Nil until
// initialized; all record helpers are nil-safe so tests need no setup.
var metrics *AssistantMetrics

// InitMetrics registers all assistant metrics with the default registry.
// Call once at startup; a second call panics (duplicate registration).
func InitMetrics() *AssistantMetrics {
	metrics = &AssistantMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turns_total",
				Help:      "Completed turns by pipeline, route, and status.",
			},
			[]string{"pipeline", "route", "status"},
		),
		CompletionAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "completion_attempts_total",
				Help:      "Underlying generation calls by outcome.",
			},
			[]string{"outcome"},
		),
		RetryExhaustionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "retry_exhaustions_total",
				Help:      "Constrained calls that exhausted their attempt budget.",
			},
			[]string{"constraint"},
		),
		RetrievalFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "retrieval_failures_total",
				Help:      "Search calls degraded to empty results.",
			},
			[]string{"backend"},
		),
		SnippetJudgmentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "snippet_judgments_total",
				Help:      "Relevance-filter decisions.",
			},
			[]string{"decision"},
		),
		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Full-turn latency.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"pipeline"},
		),
	}
	return metrics
}

// RecordTurn records one completed turn.
func RecordTurn(pipeline, route, status string) {
	if metrics == nil {
		return
	}
	metrics.TurnsTotal.WithLabelValues(pipeline, route, status).Inc()
}

// RecordCompletionAttempt records one underlying generation call.
func RecordCompletionAttempt(outcome string) {
	if metrics == nil {
		return
	}
	metrics.CompletionAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRetryExhaustion records a constrained call running out of attempts.
func RecordRetryExhaustion(constraint string) {
	if metrics == nil {
		return
	}
	metrics.RetryExhaustionsTotal.WithLabelValues(constraint).Inc()
}

// RecordRetrievalFailure records a search call degraded to empty results.
func RecordRetrievalFailure(backend string) {
	if metrics == nil {
		return
	}
	metrics.RetrievalFailuresTotal.WithLabelValues(backend).Inc()
}

// RecordSnippetJudgment records one relevance-filter decision.
func RecordSnippetJudgment(decision string) {
	if metrics == nil {
		return
	}
	metrics.SnippetJudgmentsTotal.WithLabelValues(decision).Inc()
}

// ObserveTurnDuration records full-turn latency in seconds.
func ObserveTurnDuration(pipeline string, seconds float64) {
	if metrics == nil {
		return
	}
	metrics.TurnDurationSeconds.WithLabelValues(pipeline).Observe(seconds)
}
