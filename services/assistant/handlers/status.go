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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/services/assistant/retrieval"
)

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus reports the live corpus collections so operators can see
// what the router can currently route to.
func HandleStatus(searcher retrieval.CorpusSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok", "corpus": "unavailable"}
		if searcher != nil {
			collections, err := searcher.Collections(c.Request.Context())
			if err == nil {
				status["corpus"] = "ok"
				status["collections"] = collections
			}
		}
		c.JSON(http.StatusOK, status)
	}
}
