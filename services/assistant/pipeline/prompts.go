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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

// =============================================================================
// Prompt Templates
// =============================================================================

func routerPrompt(candidates []string, history []datatypes.Message, query string) string {
	var b strings.Builder
	b.WriteString(`<task>
You are a router for user queries.
Given the user query in the <query> tag, you may need extra information to answer it, so pick the best place to find the answer.
Your options:
1. The knowledge collections listed in <available_collections> each cover a specific topic. If the query relates directly to one of those topics, return that collection name.
2. If you can answer the query directly from your own knowledge, return "assistant".
3. If you do not know the answer, the internet can be searched. In that case return "web_search".
</task>
<available_collections>
`)
	b.WriteString(strings.Join(candidates, "\n"))
	b.WriteString("\n</available_collections>")
	writeHistory(&b, history)
	fmt.Fprintf(&b, "\n\n<query>\n%s\n</query>", query)
	return b.String()
}

func rewritePrompt(query string, history []datatypes.Message) string {
	var b strings.Builder
	b.WriteString(`<task>
You are a researcher with access to a vector database with hybrid search capability: it can do both full-text search and vector similarity search.
Given the user query in the <query> tag, rewrite it to find the most relevant information in the database.
Do not remove any important keywords from the query; add more keywords if they are relevant.
Split the query into a list of keywords and a query string.
</task>
`)
	fmt.Fprintf(&b, "\n<query>\n%s\n</query>", query)
	writeHistory(&b, history)
	return b.String()
}

func webKeywordsPrompt(query string) string {
	return fmt.Sprintf(`<task>
You are an internet researcher.
Given a user query, extract 2-5 keywords to use as the web search query. Include the topic background and the main intent.
</task>

<examples>

<query>
What year was Voice of Vietnam radio founded?
</query>
<keywords>
Voice of Vietnam, radio, founded, year
</keywords>

<query>
List the channels that belong to VTV.
</query>
<keywords>
list, channels, VTV
</keywords>

</examples>

<query>
%s
</query>`, query)
}

const selectToolPrompt = `You are a helpful assistant. Use the supplied tools to assist the user, if they apply in any way. Remember to use the tools! They can do things you cannot.
If no tool applies to the question, select the fallback tool and provide a reason.
You must select exactly one tool no matter what, filling in every parameter with your best guess. Do not skip parameters!`

const selectActionPrompt = `You are a helpful assistant. Use the supplied actions to assist the user, if they apply in any way. Remember to use the actions! They can perform effects and control devices that you cannot.
If no action applies to the user's request, select the fallback action and provide a reason.
You must select exactly one action no matter what, filling in every parameter with your best guess. Do not skip parameters!`

// writeHistory appends the transcript in "role: content" lines, the way every
// prompt here presents prior turns.
func writeHistory(b *strings.Builder, history []datatypes.Message) {
	if len(history) == 0 {
		return
	}
	b.WriteString("\n\n<chat_history>\n")
	for _, msg := range history {
		fmt.Fprintf(b, "%s: %s\n", msg.Role, msg.Content)
	}
	b.WriteString("</chat_history>")
}

// withContext embeds retrieved passages into the user query for synthesis.
func withContext(query string, snippets []datatypes.Snippet) string {
	if len(snippets) == 0 {
		return strings.TrimSpace(query)
	}
	texts := datatypes.SnippetTexts(snippets)
	return strings.TrimSpace(query) + "\n<additional_context>\n" +
		strings.Join(texts, "\n") + "\n</additional_context>"
}
