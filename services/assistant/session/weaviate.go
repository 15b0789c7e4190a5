// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

const sessionClassName = "AssistantSession"

// listLimit bounds the sessions returned by List. Reaping runs repeatedly,
// so a bounded page is enough.
const listLimit = 500

// WeaviateStore persists sessions as JSON blobs in the AssistantSession
// class, so an interrupted turn resumes at its stored step after a restart.
type WeaviateStore struct {
	client *weaviate.Client
}

func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

func (s *WeaviateStore) Get(ctx context.Context, id string) (*datatypes.Session, error) {
	result, err := s.query(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNotFound
	}

	var sess datatypes.Session
	if err := json.Unmarshal([]byte(result.StateJSON), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode stored session %s: %w", id, err)
	}
	return &sess, nil
}

// Save upserts the session snapshot. The lookup-then-write pair is not
// atomic; the Manager's per-session lock is what prevents two writers from
// racing on the same id.
func (s *WeaviateStore) Save(ctx context.Context, sess *datatypes.Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.Id, err)
	}

	properties := map[string]any{
		"session_id": sess.Id,
		"state_json": string(state),
		"updated_at": sess.UpdatedAt.UnixMilli(),
	}

	existing, err := s.query(ctx, sess.Id)
	if err != nil {
		return err
	}
	if existing != nil {
		err = s.client.Data().Updater().
			WithClassName(sessionClassName).
			WithID(existing.Additional.ID).
			WithProperties(properties).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to update session %s: %w", sess.Id, err)
		}
		return nil
	}

	_, err = s.client.Data().Creator().
		WithClassName(sessionClassName).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", sess.Id, err)
	}
	return nil
}

// Delete removes every object stored under the session id. Batch delete by
// filter also clears duplicates left behind by interrupted saves.
func (s *WeaviateStore) Delete(ctx context.Context, id string) error {
	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueText(id)

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(sessionClassName).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	if resp != nil && resp.Results != nil && resp.Results.Failed > 0 {
		return fmt.Errorf("failed to delete session %s: %d objects not removed",
			id, resp.Results.Failed)
	}
	return nil
}

func (s *WeaviateStore) List(ctx context.Context) ([]Summary, error) {
	resp, err := s.client.GraphQL().Get().
		WithClassName(sessionClassName).
		WithLimit(listLimit).
		WithFields(sessionFields()...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.SessionQueryResponse](resp)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(parsed.Get.AssistantSession))
	for _, result := range parsed.Get.AssistantSession {
		var sess datatypes.Session
		if err := json.Unmarshal([]byte(result.StateJSON), &sess); err != nil {
			slog.Warn("Skipping undecodable stored session",
				"session_id", result.SessionID, "error", err)
			continue
		}
		summary := summarize(&sess)
		summary.UpdatedAt = time.UnixMilli(result.UpdatedAt)
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// query fetches the stored object for a session id, or nil when absent.
func (s *WeaviateStore) query(ctx context.Context, id string) (*datatypes.SessionResult, error) {
	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueText(id)

	resp, err := s.client.GraphQL().Get().
		WithClassName(sessionClassName).
		WithWhere(where).
		WithLimit(1).
		WithFields(sessionFields()...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.SessionQueryResponse](resp)
	if err != nil {
		return nil, err
	}
	if len(parsed.Get.AssistantSession) == 0 {
		return nil, nil
	}
	return &parsed.Get.AssistantSession[0], nil
}

func sessionFields() []graphql.Field {
	return []graphql.Field{
		{Name: "session_id"},
		{Name: "state_json"},
		{Name: "updated_at"},
		{Name: "_additional { id }"},
	}
}
