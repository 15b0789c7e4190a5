// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads assistant configuration from an optional YAML file
// with environment variable overrides. Container deployments typically use
// only the env vars; the file is for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full assistant service configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port" validate:"required,numeric"`

	// Pipeline selects the conversation pipeline for /v1/chat.
	Pipeline string `yaml:"pipeline" validate:"oneof=adaptive task"`

	LLM       LLMConfig       `yaml:"llm"`
	Weaviate  WeaviateConfig  `yaml:"weaviate"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Speech    SpeechConfig    `yaml:"speech"`
	Session   SessionConfig   `yaml:"session"`
	Channels  ChannelsConfig  `yaml:"channels"`
}

type LLMConfig struct {
	// Backend is "ollama" or "openai".
	Backend string `yaml:"backend" validate:"oneof=ollama openai"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`

	// MaxAttempts bounds the constrained-decoding retry loop.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0"`
}

type WeaviateConfig struct {
	// URL of the Weaviate instance. Empty runs the service in lightweight
	// mode: in-memory sessions, no corpus routes.
	URL string `yaml:"url"`
}

type EmbeddingConfig struct {
	// URL of the embedding sidecar. Empty degrades hybrid search to
	// keyword-only.
	URL string `yaml:"url"`
}

type SpeechConfig struct {
	// STTURL is the speech-to-text service. Empty disables /v1/voice input.
	STTURL string `yaml:"stt_url"`
	// TTSURL is the text-to-speech service. Empty returns text-only voice
	// responses.
	TTSURL string `yaml:"tts_url"`
}

type SessionConfig struct {
	// Backend is "memory" or "weaviate".
	Backend      string        `yaml:"backend" validate:"oneof=memory weaviate"`
	MaxIdle      time.Duration `yaml:"max_idle" validate:"gte=0"`
	ReapInterval time.Duration `yaml:"reap_interval" validate:"gte=0"`
}

type ChannelsConfig struct {
	// LineupPath points at the channel lineup JSON for the task pipeline.
	LineupPath string `yaml:"lineup_path"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     "12220",
		Pipeline: "adaptive",
		LLM: LLMConfig{
			Backend: "ollama",
		},
		Session: SessionConfig{
			Backend: "memory",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, then validates it.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file layer.
//
// # Outputs
//
//   - Config: The merged, validated configuration.
//   - error: Non-nil if the file is unreadable or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Info("Loaded configuration file", "path", path)
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration. Values
// are trimmed of quotes in case the container runtime passes them literally.
func applyEnv(cfg *Config) {
	setString(&cfg.Port, "ASSISTANT_PORT")
	setString(&cfg.Pipeline, "ASSISTANT_PIPELINE")
	setString(&cfg.LLM.Backend, "LLM_BACKEND_TYPE")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL_NAME")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Weaviate.URL, "WEAVIATE_SERVICE_URL")
	setString(&cfg.Embedding.URL, "EMBEDDING_SERVICE_URL")
	setString(&cfg.Speech.STTURL, "STT_SERVICE_URL")
	setString(&cfg.Speech.TTSURL, "TTS_SERVICE_URL")
	setString(&cfg.Session.Backend, "SESSION_BACKEND")
	setString(&cfg.Channels.LineupPath, "CHANNEL_LINEUP_PATH")
}

func setString(target *string, key string) {
	value := strings.Trim(os.Getenv(key), "\"' ")
	if value != "" {
		*target = value
	}
}
