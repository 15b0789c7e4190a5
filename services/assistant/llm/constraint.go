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
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Output Constraints
// =============================================================================

// Constraint describes the shape a model response must take. Instruction is
// appended to the system prompt so the model knows the expected format;
// Parse validates a raw completion and returns the typed value, or an error
// whose text is fed back to the model on the corrective retry.
type Constraint interface {
	Instruction() string
	Parse(raw string) (any, error)
}

// TextConstraint accepts any non-empty response verbatim.
type TextConstraint struct{}

func (TextConstraint) Instruction() string {
	return "Answer in plain text."
}

func (TextConstraint) Parse(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("response was empty; produce a plain text answer")
	}
	return trimmed, nil
}

// BoolConstraint accepts a bare yes/no style answer and yields a bool.
type BoolConstraint struct{}

func (BoolConstraint) Instruction() string {
	return "Answer with a single word: 'yes' or 'no'. Do not add anything else."
}

func (BoolConstraint) Parse(raw string) (any, error) {
	cleaned := strings.ToLower(strings.TrimSpace(stripFences(raw)))
	cleaned = strings.Trim(cleaned, ".!\"'")
	switch cleaned {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return nil, fmt.Errorf("response %q is not a yes/no answer; reply with exactly 'yes' or 'no'", raw)
}

// EnumConstraint accepts exactly one of a fixed set of strings. Matching is
// case-insensitive but the returned value is the canonical casing from Allowed.
type EnumConstraint struct {
	Allowed []string
}

func (e EnumConstraint) Instruction() string {
	return fmt.Sprintf("Answer with exactly one of the following values and nothing else: %s",
		strings.Join(e.Allowed, ", "))
}

func (e EnumConstraint) Parse(raw string) (any, error) {
	cleaned := strings.TrimSpace(stripFences(raw))
	cleaned = strings.Trim(cleaned, ".\"'")
	for _, allowed := range e.Allowed {
		if strings.EqualFold(cleaned, allowed) {
			return allowed, nil
		}
	}
	return nil, fmt.Errorf("response %q is not one of the allowed values: %s",
		raw, strings.Join(e.Allowed, ", "))
}

// JSONConstraint accepts a JSON object matching T. Example is serialized into
// the instruction so the model sees the exact field names; Validate, when set,
// enforces field bounds beyond what unmarshalling checks.
type JSONConstraint[T any] struct {
	Example  T
	Validate func(T) error
}

func (j JSONConstraint[T]) Instruction() string {
	example, err := json.Marshal(j.Example)
	if err != nil {
		// Example types are plain structs; this only fires on a programming
		// error, so degrade to a generic instruction.
		return "Answer with a single JSON object and nothing else."
	}
	return fmt.Sprintf("Answer with a single JSON object in this exact format "+
		"and nothing else: %s", string(example))
}

func (j JSONConstraint[T]) Parse(raw string) (any, error) {
	cleaned := strings.TrimSpace(stripFences(raw))
	var value T
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("response is not valid JSON (%v); produce a single JSON object", err)
	}
	if j.Validate != nil {
		if err := j.Validate(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag. Models routinely wrap structured answers this way even when
// told not to.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		firstLine := trimmed[:idx]
		// Drop a language tag like "json" on the fence line.
		if !strings.ContainsAny(firstLine, "{}[]\"") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
