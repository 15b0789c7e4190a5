// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the chat and voice
// endpoints. For session state, see session.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxQueryBytes is the maximum size of a single user query. Byte length
// (not rune count) is checked to bound memory for large payloads.
const MaxQueryBytes = 32 * 1024 // 32KB

// chatValidate is the shared validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Chat Request / Response
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
//
// # Fields
//
//   - Message: Required. The user's query for this turn. Limited to 32KB.
//   - SessionId: Optional. Omit to start a new session; the response
//     carries the id to use on subsequent turns.
//   - Pipeline: Optional. "adaptive" (default) routes between knowledge
//     collections, web search, and direct answers; "task" runs the
//     tool/action pipeline.
type ChatRequest struct {
	Message   string `json:"message" binding:"required" validate:"required,maxbytes"`
	SessionId string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
	Pipeline  string `json:"pipeline,omitempty" validate:"omitempty,oneof=adaptive task"`
}

// Validate checks the request against the declared constraints.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults fills optional fields. Returns the effective pipeline.
func (r *ChatRequest) EnsureDefaults() string {
	if r.Pipeline == "" {
		r.Pipeline = "adaptive"
	}
	return r.Pipeline
}

// ChatResponse is the body returned for a completed turn.
type ChatResponse struct {
	Id         string     `json:"id"`
	SessionId  string     `json:"session_id"`
	Answer     string     `json:"answer"`
	Route      string     `json:"route,omitempty"`
	Command    any        `json:"command,omitempty"`
	Terminated bool       `json:"terminated"`
	TurnCount  int        `json:"turn_count"`
	Timestamp  int64      `json:"timestamp"`
	Sources    []string   `json:"sources,omitempty"`
}

// NewChatResponse builds a response with a fresh id and UTC timestamp.
func NewChatResponse(sessionId, answer, route string, turnCount int) *ChatResponse {
	return &ChatResponse{
		Id:        uuid.NewString(),
		SessionId: sessionId,
		Answer:    answer,
		Route:     route,
		TurnCount: turnCount,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
}

// =============================================================================
// Voice Request / Response
// =============================================================================

// VoiceRequest is the body of POST /v1/voice: one spoken turn carried as
// base64-encoded audio.
type VoiceRequest struct {
	AudioBase64 string `json:"audio_base64" binding:"required"`
	SessionId   string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
	Pipeline    string `json:"pipeline,omitempty" validate:"omitempty,oneof=adaptive task"`
}

// Validate checks the request against the declared constraints.
func (r *VoiceRequest) Validate() error {
	return chatValidate.Struct(r)
}

// VoiceResponse carries the transcribed query, the textual answer, and the
// synthesized audio for playback.
type VoiceResponse struct {
	Transcript  string `json:"transcript"`
	Answer      string `json:"answer"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	SessionId   string `json:"session_id"`
	Command     any    `json:"command,omitempty"`
}
