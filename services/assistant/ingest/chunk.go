// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest splits plain-text documents into searchable passages and
// loads them into corpus collections.
package ingest

import "strings"

// DefaultMergeThreshold is the character length below which adjacent
// paragraphs are merged into one passage.
const DefaultMergeThreshold = 512

// Passage is one searchable unit of a document.
type Passage struct {
	Text   string
	Source string
}

// SplitDocument breaks a document on blank lines and merges short
// paragraphs forward until each passage exceeds the threshold.
//
// # Description
//
//	A paragraph is appended to the previous passage while that passage is
//	still at or under the threshold, so tiny fragments (headings, list
//	stubs) ride along with the text they introduce instead of becoming
//	their own search hits. A threshold <= 0 uses the default.
//
// # Inputs
//
//   - content: Raw document text.
//   - source: Label recorded on every produced passage.
//   - threshold: Merge cutoff in characters.
//
// # Outputs
//
//   - []Passage: Ordered passages; empty for blank input.
func SplitDocument(content, source string, threshold int) []Passage {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}

	var paragraphs []string
	for _, part := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(part) != "" {
			paragraphs = append(paragraphs, part)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	passages := []Passage{{Text: paragraphs[0], Source: source}}
	for _, paragraph := range paragraphs[1:] {
		last := &passages[len(passages)-1]
		if len(last.Text) <= threshold {
			last.Text = strings.TrimSpace(last.Text) + "\n" + paragraph
		} else {
			passages = append(passages, Passage{Text: paragraph, Source: source})
		}
	}
	return passages
}
