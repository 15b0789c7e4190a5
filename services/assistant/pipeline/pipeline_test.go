// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/flow"
	"github.com/AleutianAI/AleutianAssist/services/assistant/llm"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// scriptedLLM returns canned responses in order and records every call.
type scriptedLLM struct {
	responses []string
	calls     [][]datatypes.Message
}

func (s *scriptedLLM) Chat(_ context.Context, messages []datatypes.Message,
	_ llm.GenerationParams) (string, error) {

	s.calls = append(s.calls, messages)
	if len(s.calls) > len(s.responses) {
		return "", errors.New("scripted llm: out of responses")
	}
	return s.responses[len(s.calls)-1], nil
}

type stubCorpus struct {
	collections []string
	snippets    []datatypes.Snippet
	searchCalls int
}

func (s *stubCorpus) Collections(context.Context) ([]string, error) {
	return s.collections, nil
}

func (s *stubCorpus) Search(_ context.Context, _, _ string,
	_ int) ([]datatypes.Snippet, error) {

	s.searchCalls++
	return s.snippets, nil
}

type stubWeb struct {
	snippets []datatypes.Snippet
}

func (s *stubWeb) SearchWeb(context.Context, []string) ([]datatypes.Snippet, error) {
	return s.snippets, nil
}

// indexFilter keeps only the snippets at the configured positions.
type indexFilter struct {
	keep []int
}

func (f *indexFilter) Keep(_ context.Context, _ string,
	snippets []datatypes.Snippet) []datatypes.Snippet {

	var kept []datatypes.Snippet
	for _, i := range f.keep {
		if i < len(snippets) {
			kept = append(kept, snippets[i])
		}
	}
	return kept
}

func newAdaptiveMachine(t *testing.T, mock *scriptedLLM, corpus *stubCorpus,
	filter SnippetFilter) *flow.Machine {

	t.Helper()
	graph, err := BuildAdaptiveGraph(AdaptiveDeps{
		Client: llm.NewConstrainedClient(mock, 3),
		Corpus: corpus,
		Web:    &stubWeb{},
		Filter: filter,
		Config: DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("BuildAdaptiveGraph() error = %v", err)
	}
	return flow.NewMachine(graph, func(context.Context, *datatypes.Session) error {
		return nil
	})
}

func runTurn(t *testing.T, m *flow.Machine, sess *datatypes.Session, query string) {
	t.Helper()
	sess.Scratch[datatypes.KeyQuery] = query
	if err := m.RunTurn(context.Background(), sess); err != nil {
		t.Fatalf("RunTurn(%q) error = %v", query, err)
	}
}

func TestAdaptive_ExitKeywordTerminatesWithoutModelCall(t *testing.T) {
	mock := &scriptedLLM{}
	corpus := &stubCorpus{collections: []string{"ProductDocs"}}
	m := newAdaptiveMachine(t, mock, corpus, &indexFilter{})

	sess := datatypes.NewSession()
	runTurn(t, m, sess, "EXIT")

	if !sess.Terminated {
		t.Error("session should be terminated after an exit keyword")
	}
	if got := sess.ScratchString(datatypes.KeyFinalOutput); got != "Goodbye!" {
		t.Errorf("final output = %q, want %q", got, "Goodbye!")
	}
	if len(mock.calls) != 0 {
		t.Errorf("model was called %d times, want 0", len(mock.calls))
	}
	if len(sess.History) != 0 {
		t.Errorf("history grew to %d messages on a terminated turn", len(sess.History))
	}

	err := m.RunTurn(context.Background(), sess)
	if !errors.Is(err, flow.ErrSessionTerminated) {
		t.Errorf("RunTurn on terminated session error = %v, want ErrSessionTerminated", err)
	}
}

func TestAdaptive_NoCollectionsAnswersFromHistory(t *testing.T) {
	mock := &scriptedLLM{responses: []string{
		"assistant",
		"The capital of France is Paris.",
	}}
	corpus := &stubCorpus{} // nothing ingested yet
	m := newAdaptiveMachine(t, mock, corpus, &indexFilter{})

	sess := datatypes.NewSession()
	runTurn(t, m, sess, "What is the capital of France?")

	if got := sess.ScratchString(datatypes.KeyFinalOutput); got != "The capital of France is Paris." {
		t.Errorf("final output = %q", got)
	}
	if corpus.searchCalls != 0 {
		t.Errorf("corpus searched %d times on the assistant route, want 0", corpus.searchCalls)
	}
	if len(sess.History) != 2 {
		t.Fatalf("history has %d messages, want 2", len(sess.History))
	}
	if sess.History[0].Content != "What is the capital of France?" {
		t.Errorf("history[0] = %q, want the raw query", sess.History[0].Content)
	}
	if sess.NextStep != StepRouter {
		t.Errorf("NextStep = %q, want %q for the following turn", sess.NextStep, StepRouter)
	}
}

func TestAdaptive_CorpusRouteSynthesizesFromKeptSnippets(t *testing.T) {
	docs := []datatypes.Snippet{
		{Text: "doc-one", Source: "a.md"},
		{Text: "doc-two", Source: "b.md"},
		{Text: "doc-three", Source: "c.md"},
		{Text: "doc-four", Source: "d.md"},
		{Text: "doc-five", Source: "e.md"},
	}
	mock := &scriptedLLM{responses: []string{
		"ProductDocs",
		`{"keywords": ["warranty", "returns"], "query": "product warranty return policy"}`,
		"You have thirty days to return it.",
	}}
	corpus := &stubCorpus{collections: []string{"ProductDocs"}, snippets: docs}
	m := newAdaptiveMachine(t, mock, corpus, &indexFilter{keep: []int{1, 3}})

	sess := datatypes.NewSession()
	runTurn(t, m, sess, "Can I return a broken unit?")

	if corpus.searchCalls != 1 {
		t.Fatalf("corpus searched %d times, want 1", corpus.searchCalls)
	}
	if len(mock.calls) != 3 {
		t.Fatalf("model called %d times, want 3", len(mock.calls))
	}

	synth := mock.calls[2]
	prompt := synth[len(synth)-1].Content
	for _, want := range []string{"doc-two", "doc-four"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("synthesis prompt missing kept snippet %q", want)
		}
	}
	for _, dropped := range []string{"doc-one", "doc-three", "doc-five"} {
		if strings.Contains(prompt, dropped) {
			t.Errorf("synthesis prompt contains dropped snippet %q", dropped)
		}
	}

	if got := sess.ScratchSnippets(datatypes.KeySnippets); len(got) != 0 {
		t.Errorf("snippets survived the turn boundary: %v", got)
	}
	if got := sess.ScratchString(datatypes.KeyRetrievalQuery); got != "" {
		t.Errorf("retrieval query survived the turn boundary: %q", got)
	}
	sources := sess.ScratchStringList(datatypes.KeySources)
	if len(sources) != 2 || sources[0] != "b.md" || sources[1] != "d.md" {
		t.Errorf("sources = %v, want the kept snippets' sources [b.md d.md]", sources)
	}
	if len(sess.History) != 2 {
		t.Errorf("history has %d messages, want 2", len(sess.History))
	}

	// A follow-up answered from history alone must not re-report them.
	mock.responses = append(mock.responses, "assistant", "Yes, within thirty days.")
	runTurn(t, m, sess, "Even if I opened the box?")
	if got := sess.ScratchStringList(datatypes.KeySources); len(got) != 0 {
		t.Errorf("sources survived into a history-only turn: %v", got)
	}
}

func TestAdaptive_WebRouteReachesSynthesis(t *testing.T) {
	mock := &scriptedLLM{responses: []string{
		"web_search",
		`{"keywords": ["tokyo", "weather", "today"]}`,
		"It is raining in Tokyo.",
	}}
	corpus := &stubCorpus{collections: []string{"ProductDocs"}}
	graph, err := BuildAdaptiveGraph(AdaptiveDeps{
		Client: llm.NewConstrainedClient(mock, 3),
		Corpus: corpus,
		Web: &stubWeb{snippets: []datatypes.Snippet{
			{Text: "Tokyo forecast: rain all day", Source: "web_search"},
		}},
		Filter: &indexFilter{keep: []int{0}},
		Config: DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("BuildAdaptiveGraph() error = %v", err)
	}
	m := flow.NewMachine(graph, func(context.Context, *datatypes.Session) error {
		return nil
	})

	sess := datatypes.NewSession()
	runTurn(t, m, sess, "What is the weather in Tokyo today?")

	if got := sess.ScratchString(datatypes.KeyFinalOutput); got != "It is raining in Tokyo." {
		t.Errorf("final output = %q", got)
	}
	if corpus.searchCalls != 0 {
		t.Errorf("corpus searched %d times on the web route, want 0", corpus.searchCalls)
	}
	synth := mock.calls[2]
	if !strings.Contains(synth[len(synth)-1].Content, "Tokyo forecast") {
		t.Error("synthesis prompt missing the web snippet")
	}
}

// =============================================================================
// Task pipeline
// =============================================================================

func taskCatalogs(t *testing.T) (toolCat, actionCat *tools.Catalog) {
	t.Helper()

	echoFallback := func(_ context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"response": params["response"]}, nil
	}
	toolCat, err := tools.NewCatalog("explain",
		tools.Capability{
			Name:        "lookup_schedule",
			Description: "Look up the broadcast schedule.",
			Params: []tools.Param{
				{Name: "day", Type: tools.TypeString, Description: "Weekday name", Required: true},
			},
			Invoke: func(context.Context, map[string]any) (map[string]any, error) {
				return map[string]any{"response": "schedule data"}, nil
			},
		},
		tools.Capability{
			Name:        "explain",
			Description: "Explain why no tool applies.",
			Params: []tools.Param{
				{Name: "response", Type: tools.TypeString, Description: "Explanation", Required: true},
			},
			Invoke: echoFallback,
		},
	)
	if err != nil {
		t.Fatalf("tool catalog: %v", err)
	}

	actionCat, err = tools.NewCatalog("no_action",
		tools.Capability{
			Name:        "no_action",
			Description: "Take no device action.",
			Params: []tools.Param{
				{Name: "response", Type: tools.TypeString, Description: "Explanation", Required: true},
			},
			Invoke: func(_ context.Context, params map[string]any) (map[string]any, error) {
				return map[string]any{
					tools.KeyActionResponse: params["response"],
					tools.KeyCommand:        nil,
				}, nil
			},
		},
	)
	if err != nil {
		t.Fatalf("action catalog: %v", err)
	}
	return toolCat, actionCat
}

func TestTask_InvalidSelectionFallsBackAndStillFormats(t *testing.T) {
	toolCat, actionCat := taskCatalogs(t)

	// Two invalid tool picks exhaust the retry budget. The pipeline must
	// substitute the fallback with an explanation and still reach the end.
	mock := &scriptedLLM{responses: []string{
		`{"name": "launch_rocket", "parameters": {}}`,
		`{"name": "launch_rocket", "parameters": {}}`,
		`{"name": "no_action", "parameters": {"response": "Nothing to operate."}}`,
		"I could not find a tool for that, sorry.",
	}}

	graph, err := BuildTaskGraph(TaskDeps{
		Client:  llm.NewConstrainedClient(mock, 2),
		Tools:   toolCat,
		Actions: actionCat,
		Config:  DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("BuildTaskGraph() error = %v", err)
	}
	m := flow.NewMachine(graph, func(context.Context, *datatypes.Session) error {
		return nil
	})

	sess := datatypes.NewSession()
	runTurn(t, m, sess, "Please launch a rocket")

	if got := sess.ScratchString(datatypes.KeyFinalOutput); got != "I could not find a tool for that, sorry." {
		t.Errorf("final output = %q", got)
	}

	// The fallback explanation must reach the action-selection prompt.
	actionPrompt := mock.calls[2][len(mock.calls[2])-1].Content
	if !strings.Contains(actionPrompt, "No valid selection") {
		t.Errorf("action prompt missing the fallback explanation: %q", actionPrompt)
	}

	if got := sess.ScratchString(datatypes.KeyTool); got != "" {
		t.Errorf("tool key survived the turn boundary: %q", got)
	}
	if len(sess.History) != 2 {
		t.Errorf("history has %d messages, want 2", len(sess.History))
	}
	if sess.NextStep != StepSelectTool {
		t.Errorf("NextStep = %q, want %q", sess.NextStep, StepSelectTool)
	}
}

func TestTask_HappyPathInvokesToolAndAction(t *testing.T) {
	toolCat, actionCat := taskCatalogs(t)

	mock := &scriptedLLM{responses: []string{
		`{"name": "lookup_schedule", "parameters": {"day": "monday"}}`,
		`{"name": "no_action", "parameters": {"response": "Informational query only."}}`,
		"Here is Monday's schedule.",
	}}

	graph, err := BuildTaskGraph(TaskDeps{
		Client:  llm.NewConstrainedClient(mock, 2),
		Tools:   toolCat,
		Actions: actionCat,
		Config:  DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("BuildTaskGraph() error = %v", err)
	}
	m := flow.NewMachine(graph, func(context.Context, *datatypes.Session) error {
		return nil
	})

	sess := datatypes.NewSession()
	runTurn(t, m, sess, "What is on Monday?")

	if got := sess.ScratchString(datatypes.KeyFinalOutput); got != "Here is Monday's schedule." {
		t.Errorf("final output = %q", got)
	}
	formatPrompt := mock.calls[2][len(mock.calls[2])-1].Content
	if !strings.Contains(formatPrompt, "schedule data") {
		t.Errorf("format prompt missing the tool output: %q", formatPrompt)
	}
}
