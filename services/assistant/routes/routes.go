// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAssist/services/assistant/handlers"
	"github.com/AleutianAI/AleutianAssist/services/assistant/ingest"
	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
	"github.com/AleutianAI/AleutianAssist/services/assistant/session"
	"github.com/AleutianAI/AleutianAssist/services/assistant/speech"
)

// Deps carries everything the HTTP surface needs. Nil optional fields
// (loader, speech clients, corpus searcher) disable their routes' backends
// gracefully rather than at route registration.
type Deps struct {
	Sessions    *session.Manager
	Pipelines   handlers.Pipelines
	Corpus      retrieval.CorpusSearcher
	Loader      *ingest.Loader
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(deps.Sessions, deps.Pipelines))
		v1.POST("/voice", handlers.HandleVoice(deps.Sessions, deps.Pipelines,
			deps.Transcriber, deps.Synthesizer))
		v1.POST("/ingest", handlers.HandleIngest(deps.Loader))
		v1.GET("/status", handlers.HandleStatus(deps.Corpus))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(deps.Sessions.Store()))
			sessions.GET("/:sessionId/history",
				handlers.GetSessionHistory(deps.Sessions.Store()))
			sessions.DELETE("/:sessionId",
				handlers.DeleteSession(deps.Sessions.Store()))
		}
	}
}
