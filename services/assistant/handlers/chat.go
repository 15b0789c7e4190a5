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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/observability"
	"github.com/AleutianAI/AleutianAssist/services/assistant/session"
)

// ErrPipelineConflict rejects a turn routed through a different pipeline
// than the one that created the session: the resume step and scratch state
// belong to the original pipeline's graph.
var ErrPipelineConflict = errors.New("session belongs to a different pipeline")

// Pipelines holds the runnable conversation pipelines by name.
type Pipelines struct {
	Adaptive *flow.Machine
	Task     *flow.Machine
}

func (p Pipelines) get(name string) *flow.Machine {
	switch name {
	case "adaptive":
		return p.Adaptive
	case "task":
		return p.Task
	default:
		return nil
	}
}

// HandleChat runs one conversation turn.
//
// # Description
//
//	Binds and validates the request, resolves the pipeline, and runs the
//	turn under the per-session lock. The response carries the session id so
//	the caller can continue the conversation; a terminated session answers
//	410 on subsequent turns.
func HandleChat(sessions *session.Manager, pipelines Pipelines) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		pipeline := req.EnsureDefaults()
		machine := pipelines.get(pipeline)
		if machine == nil {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "unknown pipeline: " + pipeline})
			return
		}

		start := time.Now()
		sess, err := sessions.WithSession(c.Request.Context(), req.SessionId,
			func(sess *datatypes.Session) error {
				if err := bindPipeline(sess, pipeline); err != nil {
					return err
				}
				sess.Scratch[datatypes.KeyQuery] = req.Message
				return machine.RunTurn(c.Request.Context(), sess)
			})
		observability.ObserveTurnDuration(pipeline, time.Since(start).Seconds())

		if errors.Is(err, ErrPipelineConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "session was created by the " + sess.Pipeline + " pipeline",
				"session_id": sess.Id,
			})
			return
		}
		if errors.Is(err, flow.ErrSessionTerminated) {
			observability.RecordTurn(pipeline, "", "terminated")
			c.JSON(http.StatusGone, gin.H{
				"error":      "session is terminated",
				"session_id": sess.Id,
			})
			return
		}
		if err != nil {
			slog.Error("Turn failed", "session_id", req.SessionId, "error", err)
			observability.RecordTurn(pipeline, "", "error")
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to run the conversation turn"})
			return
		}

		route := sess.ScratchString(datatypes.KeyRoute)
		observability.RecordTurn(pipeline, route, "ok")

		resp := datatypes.NewChatResponse(sess.Id,
			sess.ScratchString(datatypes.KeyFinalOutput), route, sess.TurnCount())
		resp.Terminated = sess.Terminated
		resp.Sources = sess.ScratchStringList(datatypes.KeySources)
		if command, ok := sess.Scratch[datatypes.KeyCommand]; ok {
			resp.Command = command
		}
		c.JSON(http.StatusOK, resp)
	}
}

// bindPipeline pins a fresh session to the pipeline running its first turn.
func bindPipeline(sess *datatypes.Session, pipeline string) error {
	if sess.Pipeline == "" {
		sess.Pipeline = pipeline
		return nil
	}
	if sess.Pipeline != pipeline {
		return ErrPipelineConflict
	}
	return nil
}
