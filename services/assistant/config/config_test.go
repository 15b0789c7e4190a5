// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "12220", cfg.Port)
	assert.Equal(t, "adaptive", cfg.Pipeline)
	assert.Equal(t, "memory", cfg.Session.Backend)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	content := []byte("pipeline: task\nllm:\n  backend: openai\n  model: gpt-4o-mini\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	// Env beats file; quoting from the container runtime is stripped.
	t.Setenv("LLM_MODEL_NAME", `"local-model"`)
	t.Setenv("ASSISTANT_PORT", "9000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "task", cfg.Pipeline)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.Equal(t, "9000", cfg.Port)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("ASSISTANT_PIPELINE", "quantum")
	_, err := Load("")
	assert.Error(t, err, "an unknown pipeline name should be rejected")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/assistant.yaml")
	assert.Error(t, err)
}
