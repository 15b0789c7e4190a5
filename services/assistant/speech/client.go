// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transcriber converts spoken audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64 string) (string, error)
}

// Synthesizer converts text to spoken audio.
type Synthesizer interface {
	Speak(ctx context.Context, text string) (string, error)
}

// HTTPTranscriber calls the speech-to-text sidecar. Audio travels as a
// base64 string in both directions; the sidecar owns model choice and
// language handling.
type HTTPTranscriber struct {
	url    string
	client *http.Client
}

func NewHTTPTranscriber(url string) *HTTPTranscriber {
	return &HTTPTranscriber{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type transcribeRequest struct {
	AudioBase64 string `json:"audio_base64"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	var resp transcribeResponse
	if err := postJSON(ctx, t.client, t.url,
		transcribeRequest{AudioBase64: audioBase64}, &resp); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// HTTPSynthesizer calls the text-to-speech sidecar.
type HTTPSynthesizer struct {
	url    string
	client *http.Client
}

func NewHTTPSynthesizer(url string) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type speakRequest struct {
	Text string `json:"text"`
}

type speakResponse struct {
	AudioBase64 string `json:"audio_base64_str"`
}

// Speak synthesizes the text after unit normalization.
func (s *HTTPSynthesizer) Speak(ctx context.Context, text string) (string, error) {
	var resp speakResponse
	if err := postJSON(ctx, s.client, s.url,
		speakRequest{Text: NormalizeForSpeech(text)}, &resp); err != nil {
		return "", fmt.Errorf("speech synthesis failed: %w", err)
	}
	return resp.AudioBase64, nil
}

func postJSON(ctx context.Context, client *http.Client, url string,
	payload, target any) error {

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("service at %s returned status %d: %s",
			url, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
