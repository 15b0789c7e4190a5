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
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/session"
	"github.com/AleutianAI/AleutianAssist/services/assistant/speech"
)

// HandleVoice runs one spoken turn: transcribe, answer, synthesize.
//
// # Description
//
//	Transcription failures are a client-visible error. Synthesis failures
//	are not: the textual answer is still returned and the audio field is
//	left empty, so a broken TTS sidecar degrades rather than silences the
//	assistant. A nil synthesizer means text-only responses.
func HandleVoice(sessions *session.Manager, pipelines Pipelines,
	transcriber speech.Transcriber, synthesizer speech.Synthesizer) gin.HandlerFunc {

	return func(c *gin.Context) {
		if transcriber == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "speech-to-text is not configured"})
			return
		}

		var req datatypes.VoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		transcript, err := transcriber.Transcribe(c.Request.Context(), req.AudioBase64)
		if err != nil {
			slog.Error("Transcription failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to transcribe audio"})
			return
		}
		if strings.TrimSpace(transcript) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no speech detected"})
			return
		}

		pipeline := pipelineName(req.Pipeline)
		machine := pipelines.get(pipeline)
		if machine == nil {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "unknown pipeline: " + req.Pipeline})
			return
		}

		sess, err := sessions.WithSession(c.Request.Context(), req.SessionId,
			func(sess *datatypes.Session) error {
				if err := bindPipeline(sess, pipeline); err != nil {
					return err
				}
				sess.Scratch[datatypes.KeyQuery] = transcript
				return machine.RunTurn(c.Request.Context(), sess)
			})
		if errors.Is(err, ErrPipelineConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "session was created by the " + sess.Pipeline + " pipeline",
				"session_id": sess.Id,
			})
			return
		}
		if errors.Is(err, flow.ErrSessionTerminated) {
			c.JSON(http.StatusGone, gin.H{
				"error":      "session is terminated",
				"session_id": sess.Id,
			})
			return
		}
		if err != nil {
			slog.Error("Voice turn failed", "session_id", req.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to run the conversation turn"})
			return
		}

		answer := sess.ScratchString(datatypes.KeyFinalOutput)
		resp := datatypes.VoiceResponse{
			Transcript: transcript,
			Answer:     answer,
			SessionId:  sess.Id,
		}
		if command, ok := sess.Scratch[datatypes.KeyCommand]; ok {
			resp.Command = command
		}

		if synthesizer != nil && answer != "" {
			audio, err := synthesizer.Speak(c.Request.Context(), answer)
			if err != nil {
				slog.Warn("Speech synthesis failed, returning text only", "error", err)
			} else {
				resp.AudioBase64 = audio
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

func pipelineName(name string) string {
	if name == "" {
		return "adaptive"
	}
	return name
}
