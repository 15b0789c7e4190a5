// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the response shape.
// GraphQL-level errors in the payload are surfaced as a Go error since the
// HTTP layer reports 200 for them.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if the response is nil, carries errors, or parsing fails.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// CorpusQueryResponse represents a hybrid search response over a corpus class.
// The class name is dynamic so Get is keyed by class.
type CorpusQueryResponse struct {
	Get map[string][]CorpusHit `json:"Get"`
}

// CorpusHit is a single retrieved passage.
type CorpusHit struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Additional struct {
		// Hybrid scores come back as strings in the GraphQL payload.
		Score string `json:"score"`
	} `json:"_additional"`
}

// SessionQueryResponse represents a query over the AssistantSession class.
type SessionQueryResponse struct {
	Get struct {
		AssistantSession []SessionResult `json:"AssistantSession"`
	} `json:"Get"`
}

// SessionResult is a single stored session with its Weaviate UUID.
type SessionResult struct {
	SessionID  string `json:"session_id"`
	StateJSON  string `json:"state_json"`
	UpdatedAt  int64  `json:"updated_at"`
	Additional struct {
		ID string `json:"id"`
	} `json:"_additional"`
}
