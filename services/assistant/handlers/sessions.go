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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/services/assistant/session"
)

func ListSessions(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": summaries})
	}
}

func GetSessionHistory(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		sess, err := store.Get(c.Request.Context(), id)
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			slog.Error("Failed to load session", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sess.Id,
			"terminated": sess.Terminated,
			"history":    sess.History,
		})
	}
}

func DeleteSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := store.Delete(c.Request.Context(), id); err != nil {
			slog.Error("Failed to delete session", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to delete session"})
			return
		}
		slog.Info("Deleted session", "session_id", id)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}
