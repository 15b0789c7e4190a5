// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/services/assistant/ingest"
)

// IngestRequest replaces one corpus collection with the supplied documents.
type IngestRequest struct {
	Collection string           `json:"collection" binding:"required"`
	Documents  []IngestDocument `json:"documents" binding:"required,min=1"`
}

type IngestDocument struct {
	Source  string `json:"source" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// HandleIngest splits, embeds, and loads documents into a collection. The
// collection becomes routable on the next turn; no restart needed.
func HandleIngest(loader *ingest.Loader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if loader == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "ingestion requires Weaviate and the embedding service"})
			return
		}

		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var passages []ingest.Passage
		for _, doc := range req.Documents {
			passages = append(passages,
				ingest.SplitDocument(doc.Content, doc.Source, 0)...)
		}
		if len(passages) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "documents contain no text"})
			return
		}

		loaded, err := loader.ReplaceCollection(c.Request.Context(),
			req.Collection, passages)
		if err != nil {
			slog.Error("Ingestion failed", "collection", req.Collection, "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to load the collection"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"collection":      req.Collection,
			"passages_loaded": loaded,
		})
	}
}
