// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared across the
// assistant service: conversation messages, sessions, retrieval snippets,
// HTTP request/response bodies, and Weaviate schema definitions.
package datatypes

// Message roles. Role alternation is not enforced; system messages may be
// injected before a model call without being persisted to history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single role-tagged conversation message. Ordering within a
// history is significant and must be preserved.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Snippet is one retrieved passage of context. Snippets are turn-scoped:
// they are produced by retrieval, possibly discarded by the relevance
// filter, consumed by synthesis, and never accumulate into history.
type Snippet struct {
	// Text is the passage content.
	Text string `json:"text"`

	// Source identifies where the passage came from: a collection name
	// for hybrid search results, or a search-result label for web results.
	Source string `json:"source"`
}

// SnippetTexts extracts the text fields in order.
func SnippetTexts(snippets []Snippet) []string {
	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		texts = append(texts, s.Text)
	}
	return texts
}
