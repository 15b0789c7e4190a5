// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"strings"
)

// BackendConfig selects and configures an LLM backend.
type BackendConfig struct {
	// Backend is "ollama" or "openai".
	Backend string
	BaseURL string
	Model   string
	APIKey  string
}

// NewClient builds the backend named in cfg.
func NewClient(cfg BackendConfig) (LLMClient, error) {
	switch strings.ToLower(cfg.Backend) {
	case "ollama":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model})
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	}
	return nil, fmt.Errorf("unknown LLM backend %q (want 'ollama' or 'openai')", cfg.Backend)
}
