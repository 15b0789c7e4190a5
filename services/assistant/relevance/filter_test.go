// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relevance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
)

// graderLLM answers yes/no based on whether the snippet text carries a
// marker, and fails outright for snippets marked broken.
type graderLLM struct {
	mu    sync.Mutex
	calls int
}

func (g *graderLLM) Chat(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams) (string, error) {

	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	prompt := messages[len(messages)-1].Content
	switch {
	case strings.Contains(prompt, "BROKEN"):
		return "", errors.New("backend unavailable")
	case strings.Contains(prompt, "RELEVANT"):
		return "yes", nil
	default:
		return "no", nil
	}
}

func TestKeep_FiltersAndPreservesOrder(t *testing.T) {
	grader := &graderLLM{}
	filter := NewFilter(llm.NewConstrainedClient(grader, 2), 2)

	snippets := []datatypes.Snippet{
		{Text: "RELEVANT passage one", Source: "docs"},
		{Text: "off topic passage", Source: "docs"},
		{Text: "RELEVANT passage two", Source: "web_search"},
		{Text: "another off topic", Source: "docs"},
	}

	kept := filter.Keep(context.Background(), "a question", snippets)
	if len(kept) != 2 {
		t.Fatalf("kept %d snippets, want 2", len(kept))
	}
	if kept[0].Text != "RELEVANT passage one" || kept[1].Text != "RELEVANT passage two" {
		t.Errorf("order not preserved: %+v", kept)
	}
	if grader.calls != 4 {
		t.Errorf("grader calls = %d, want 4 (one per snippet)", grader.calls)
	}
}

func TestKeep_JudgmentFailureKeepsSnippet(t *testing.T) {
	grader := &graderLLM{}
	filter := NewFilter(llm.NewConstrainedClient(grader, 2), 1)

	snippets := []datatypes.Snippet{
		{Text: "BROKEN grader path", Source: "docs"},
		{Text: "off topic passage", Source: "docs"},
	}

	kept := filter.Keep(context.Background(), "a question", snippets)
	if len(kept) != 1 {
		t.Fatalf("kept %d snippets, want 1", len(kept))
	}
	if kept[0].Text != "BROKEN grader path" {
		t.Errorf("failed judgment should keep its snippet, got %+v", kept)
	}
}

func TestKeep_EmptyInput(t *testing.T) {
	filter := NewFilter(llm.NewConstrainedClient(&graderLLM{}, 2), 2)
	if kept := filter.Keep(context.Background(), "q", nil); len(kept) != 0 {
		t.Errorf("kept %d snippets for empty input, want 0", len(kept))
	}
}
