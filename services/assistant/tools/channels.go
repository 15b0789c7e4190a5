// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"encoding/json"
	"fmt"
	"os"
)

// Channel is one playable broadcast channel.
type Channel struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// ChannelProvider serves the channel lineup for the task pipeline's tools.
// The lineup file maps category name to channel list, e.g.
//
//	{"radio": [{"id": "vov1", "name": "VOV 1"}], "tv": [...]}
type ChannelProvider struct {
	// category -> channels
	lineup map[string][]Channel
}

// LoadChannelProvider reads the lineup from a JSON file at startup.
func LoadChannelProvider(path string) (*ChannelProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel lineup %s: %w", path, err)
	}
	var lineup map[string][]Channel
	if err := json.Unmarshal(raw, &lineup); err != nil {
		return nil, fmt.Errorf("failed to parse channel lineup %s: %w", path, err)
	}
	return &ChannelProvider{lineup: lineup}, nil
}

// NewChannelProvider wraps an in-memory lineup, for tests and embedding.
func NewChannelProvider(lineup map[string][]Channel) *ChannelProvider {
	return &ChannelProvider{lineup: lineup}
}

// Lineup returns the full category -> channels map.
func (p *ChannelProvider) Lineup() map[string][]Channel {
	return p.lineup
}

// Find returns the channel with the given id and its category.
func (p *ChannelProvider) Find(channelId string) (Channel, string, bool) {
	for category, channels := range p.lineup {
		for _, ch := range channels {
			if ch.Id == channelId {
				return ch, category, true
			}
		}
	}
	return Channel{}, "", false
}
