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
	"context"
	"fmt"
	"strings"
	"time"
)

// Result keys produced by action capabilities.
const (
	KeyActionResponse = "action_response"
	KeyCommand        = "command"
)

// NewToolCatalog builds the retrieval-phase catalog: read-only lookups plus
// the mandatory fallback.
func NewToolCatalog(provider *ChannelProvider) (*Catalog, error) {
	return NewCatalog(FallbackToolName,
		Capability{
			Name:        "query_channels",
			Description: "Get the list of available broadcast channels grouped by category.",
			Params:      []Param{},
			Invoke: func(ctx context.Context, params map[string]any) (map[string]any, error) {
				return map[string]any{"channels": provider.Lineup()}, nil
			},
		},
		Capability{
			Name:        "get_current_weather",
			Description: "Get the current weather for a location.",
			Params: []Param{
				{Name: "location", Type: TypeString, Required: true,
					Description: "City and state/province, e.g. San Francisco, CA"},
				{Name: "unit", Type: TypeString, Required: true,
					Description: "One of celsius or fahrenheit"},
			},
			Invoke: currentWeather,
		},
		Capability{
			Name:        "get_current_time",
			Description: "Get the current time in a timezone.",
			Params: []Param{
				{Name: "timezone", Type: TypeString, Required: true,
					Description: "IANA timezone name, e.g. Asia/Tokyo"},
			},
			Invoke: currentTime,
		},
		Capability{
			Name:        FallbackToolName,
			Description: "Tells the user the assistant can't do that. Use when no other tool applies, with a reason.",
			Params: []Param{
				{Name: "response", Type: TypeString, Required: true,
					Description: "Explanation of why no tool applies"},
			},
			Invoke: func(ctx context.Context, params map[string]any) (map[string]any, error) {
				return map[string]any{"response": params["response"]}, nil
			},
		},
	)
}

// NewActionCatalog builds the effect-phase catalog: capabilities with
// externally visible effects plus the mandatory fallback.
func NewActionCatalog(provider *ChannelProvider) (*Catalog, error) {
	return NewCatalog(FallbackActionName,
		Capability{
			Name: "open_channel",
			Description: "Open the channel with the given id. Users only know channel " +
				"names, so resolve the id from the name in the channel list first.",
			Params: []Param{
				{Name: "channel_id", Type: TypeString, Required: true,
					Description: "The id of the channel to open"},
			},
			Invoke: func(ctx context.Context, params map[string]any) (map[string]any, error) {
				channelId, _ := params["channel_id"].(string)
				channel, category, ok := provider.Find(channelId)
				if !ok {
					return nil, fmt.Errorf("no channel with id %q", channelId)
				}
				return map[string]any{
					KeyActionResponse: fmt.Sprintf(
						"Opening channel %s. Wait for a moment.", channel.Name),
					KeyCommand: map[string]any{
						"type":       category,
						"message_id": channel.Id,
						"message":    channel.Name,
					},
				}, nil
			},
		},
		Capability{
			Name:        FallbackActionName,
			Description: "Tells the user the assistant can't perform any action. Use when no other action applies, with a reason.",
			Params: []Param{
				{Name: "response", Type: TypeString, Required: true,
					Description: "Explanation of why no action applies"},
			},
			Invoke: func(ctx context.Context, params map[string]any) (map[string]any, error) {
				return map[string]any{
					KeyActionResponse: params["response"],
					KeyCommand:        nil,
				}, nil
			},
		},
	)
}

// currentWeather reports canned conditions for a few known cities. A live
// weather backend slots in behind the same capability without catalog
// changes.
func currentWeather(ctx context.Context, params map[string]any) (map[string]any, error) {
	location, _ := params["location"].(string)
	unit, _ := params["unit"].(string)
	if unit == "" {
		unit = "fahrenheit"
	}
	lowered := strings.ToLower(location)
	switch {
	case strings.Contains(lowered, "tokyo"):
		return map[string]any{"location": "Tokyo", "temperature": "10", "unit": "celsius"}, nil
	case strings.Contains(lowered, "san francisco"):
		return map[string]any{"location": "San Francisco", "temperature": "72", "unit": "fahrenheit"}, nil
	case strings.Contains(lowered, "paris"):
		return map[string]any{"location": "Paris", "temperature": "22", "unit": "celsius"}, nil
	}
	return map[string]any{"location": location, "temperature": "unknown", "unit": unit}, nil
}

func currentTime(ctx context.Context, params map[string]any) (map[string]any, error) {
	zone, _ := params["timezone"].(string)
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", zone)
	}
	return map[string]any{
		"timezone": zone,
		"time":     time.Now().In(loc).Format("2006-01-02 15:04:05"),
	}, nil
}
