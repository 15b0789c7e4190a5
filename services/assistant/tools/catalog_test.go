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
	"errors"
	"strings"
	"testing"
)

func testProvider() *ChannelProvider {
	return NewChannelProvider(map[string][]Channel{
		"radio": {
			{Id: "vov1", Name: "VOV 1"},
			{Id: "vov2", Name: "VOV 2"},
		},
		"tv": {
			{Id: "vtv1", Name: "VTV 1"},
		},
	})
}

func TestNewCatalog_RejectsBadConfigs(t *testing.T) {
	valid := Capability{
		Name:        "a",
		Description: "a capability",
		Invoke: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}

	t.Run("empty catalog", func(t *testing.T) {
		if _, err := NewCatalog("a"); !errors.Is(err, ErrBadCatalog) {
			t.Errorf("expected ErrBadCatalog, got %v", err)
		}
	})
	t.Run("missing fallback", func(t *testing.T) {
		if _, err := NewCatalog("other", valid); !errors.Is(err, ErrBadCatalog) {
			t.Errorf("expected ErrBadCatalog, got %v", err)
		}
	})
	t.Run("duplicate names", func(t *testing.T) {
		if _, err := NewCatalog("a", valid, valid); !errors.Is(err, ErrBadCatalog) {
			t.Errorf("expected ErrBadCatalog, got %v", err)
		}
	})
	t.Run("unknown param type", func(t *testing.T) {
		bad := valid
		bad.Params = []Param{{Name: "p", Type: "object", Required: true}}
		if _, err := NewCatalog("a", bad); !errors.Is(err, ErrBadCatalog) {
			t.Errorf("expected ErrBadCatalog, got %v", err)
		}
	})
	t.Run("nil invoke", func(t *testing.T) {
		bad := valid
		bad.Invoke = nil
		if _, err := NewCatalog("a", bad); !errors.Is(err, ErrBadCatalog) {
			t.Errorf("expected ErrBadCatalog, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	catalog, err := NewToolCatalog(testProvider())
	if err != nil {
		t.Fatalf("NewToolCatalog: %v", err)
	}

	t.Run("unknown capability", func(t *testing.T) {
		err := catalog.Validate("launch_rocket", nil)
		if !errors.Is(err, ErrUnknownCapability) {
			t.Errorf("expected ErrUnknownCapability, got %v", err)
		}
	})
	t.Run("missing parameter", func(t *testing.T) {
		err := catalog.Validate("get_current_weather", map[string]any{"location": "Paris"})
		if !errors.Is(err, ErrMissingParameter) {
			t.Errorf("expected ErrMissingParameter, got %v", err)
		}
	})
	t.Run("wrong type", func(t *testing.T) {
		err := catalog.Validate("get_current_weather",
			map[string]any{"location": 42.0, "unit": "celsius"})
		if !errors.Is(err, ErrBadParameterType) {
			t.Errorf("expected ErrBadParameterType, got %v", err)
		}
	})
	t.Run("valid call", func(t *testing.T) {
		err := catalog.Validate("get_current_weather",
			map[string]any{"location": "Paris", "unit": "celsius"})
		if err != nil {
			t.Errorf("Validate: %v", err)
		}
	})
}

func TestCheckType_Integer(t *testing.T) {
	if err := checkType(TypeInteger, 3.0); err != nil {
		t.Errorf("whole float should pass as integer: %v", err)
	}
	if err := checkType(TypeInteger, 3.5); err == nil {
		t.Error("fractional value should fail as integer")
	}
}

func TestInvoke_QueryChannels(t *testing.T) {
	catalog, err := NewToolCatalog(testProvider())
	if err != nil {
		t.Fatalf("NewToolCatalog: %v", err)
	}
	result, err := catalog.Invoke(context.Background(), "query_channels", map[string]any{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	lineup, ok := result["channels"].(map[string][]Channel)
	if !ok || len(lineup["radio"]) != 2 {
		t.Errorf("unexpected lineup: %+v", result)
	}
}

func TestInvoke_OpenChannel(t *testing.T) {
	catalog, err := NewActionCatalog(testProvider())
	if err != nil {
		t.Fatalf("NewActionCatalog: %v", err)
	}

	result, err := catalog.Invoke(context.Background(), "open_channel",
		map[string]any{"channel_id": "vov2"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	response, _ := result[KeyActionResponse].(string)
	if !strings.Contains(response, "VOV 2") {
		t.Errorf("response = %q, want channel name mentioned", response)
	}
	command, _ := result[KeyCommand].(map[string]any)
	if command["message_id"] != "vov2" || command["type"] != "radio" {
		t.Errorf("command = %+v", command)
	}

	if _, err := catalog.Invoke(context.Background(), "open_channel",
		map[string]any{"channel_id": "nope"}); err == nil {
		t.Error("expected error for unknown channel id")
	}
}

func TestInvoke_FallbackCarriesExplanation(t *testing.T) {
	catalog, err := NewActionCatalog(testProvider())
	if err != nil {
		t.Fatalf("NewActionCatalog: %v", err)
	}
	result, err := catalog.Invoke(context.Background(), FallbackActionName,
		map[string]any{"response": "I cannot control the volume."})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result[KeyActionResponse] != "I cannot control the volume." {
		t.Errorf("explanation not carried: %+v", result)
	}
}

func TestPromptDescription_ListsEverything(t *testing.T) {
	catalog, err := NewToolCatalog(testProvider())
	if err != nil {
		t.Fatalf("NewToolCatalog: %v", err)
	}
	desc := catalog.PromptDescription()
	for _, name := range catalog.Names() {
		if !strings.Contains(desc, name) {
			t.Errorf("prompt description missing %q", name)
		}
	}
}
