// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps the raw text-generation capability behind a uniform,
// schema-validated, retrying call contract.
//
// Every other component of the assistant talks to the model only through
// ConstrainedClient; nothing calls a backend directly. This isolates the
// single most failure-prone dependency behind one retry/failure policy.
package llm

import (
	"context"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// GenerationParams carries optional sampling parameters for a single call.
// Nil pointers mean "backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any generation backend.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple sessions;
// the underlying HTTP clients pool connections.
type LLMClient interface {
	// Chat sends an ordered message list and returns the raw completion text.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}
