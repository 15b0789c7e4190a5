// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools declares the callable capability catalogs for task-style
// pipelines.
//
// Catalogs are static declaration tables populated once at startup: every
// capability lists its parameters with explicit types, and every declared
// parameter is required. There is no runtime signature reflection; adding a
// capability means adding an entry to the table.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for catalog construction and invocation.
var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrMissingParameter  = errors.New("missing required parameter")
	ErrBadParameterType  = errors.New("parameter has wrong type")
	ErrBadCatalog        = errors.New("malformed capability catalog")
)

// Fallback entries every catalog must carry. They are no-op capabilities
// whose only job is to carry an explanation string forward when the model
// declines to pick a real entry.
const (
	FallbackToolName   = "fallback_tool"
	FallbackActionName = "fallback_action"
)

// Param types understood by validation.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Param declares one capability parameter. Every parameter is required;
// Required exists so the declaration table is explicit about it.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Capability is one callable entry in a catalog.
type Capability struct {
	Name        string
	Description string
	Params      []Param
	Invoke      func(ctx context.Context, params map[string]any) (map[string]any, error)
}

// Catalog is an ordered, validated set of capabilities.
type Catalog struct {
	entries  []Capability
	byName   map[string]*Capability
	fallback string
}

// NewCatalog validates and builds a catalog. The fallback name must be a
// member. Catalog problems are configuration errors: callers fail startup
// on them rather than limping along.
func NewCatalog(fallback string, entries ...Capability) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no capabilities", ErrBadCatalog)
	}
	c := &Catalog{
		entries:  entries,
		byName:   make(map[string]*Capability, len(entries)),
		fallback: fallback,
	}
	for i := range entries {
		entry := &c.entries[i]
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: capability with empty name", ErrBadCatalog)
		}
		if entry.Invoke == nil {
			return nil, fmt.Errorf("%w: capability %q has no implementation",
				ErrBadCatalog, entry.Name)
		}
		if _, dup := c.byName[entry.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate capability %q", ErrBadCatalog, entry.Name)
		}
		for _, p := range entry.Params {
			switch p.Type {
			case TypeString, TypeInteger, TypeNumber, TypeBoolean:
			default:
				return nil, fmt.Errorf("%w: capability %q parameter %q has unknown type %q",
					ErrBadCatalog, entry.Name, p.Name, p.Type)
			}
		}
		c.byName[entry.Name] = entry
	}
	if _, ok := c.byName[fallback]; !ok {
		return nil, fmt.Errorf("%w: fallback %q not in catalog", ErrBadCatalog, fallback)
	}
	return c, nil
}

// Names returns capability names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Fallback returns the designated fallback capability name.
func (c *Catalog) Fallback() string { return c.fallback }

// Get returns the named capability.
func (c *Catalog) Get(name string) (*Capability, bool) {
	entry, ok := c.byName[name]
	return entry, ok
}

// Validate checks a selection against the catalog: the name must be a member
// and every declared parameter must be present with the declared type.
func (c *Catalog) Validate(name string, params map[string]any) error {
	entry, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q (valid: %s)", ErrUnknownCapability, name,
			strings.Join(c.Names(), ", "))
	}
	for _, p := range entry.Params {
		value, present := params[p.Name]
		if !present {
			return fmt.Errorf("%w: %s.%s", ErrMissingParameter, name, p.Name)
		}
		if err := checkType(p.Type, value); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrBadParameterType, name, p.Name, err)
		}
	}
	return nil
}

// Invoke validates a selection and runs it.
func (c *Catalog) Invoke(ctx context.Context, name string,
	params map[string]any) (map[string]any, error) {

	if err := c.Validate(name, params); err != nil {
		return nil, err
	}
	return c.byName[name].Invoke(ctx, params)
}

// PromptDescription renders the catalog for a selection prompt: one line per
// capability with its parameter names and types.
func (c *Catalog) PromptDescription() string {
	var b strings.Builder
	for _, entry := range c.entries {
		b.WriteString(fmt.Sprintf("- %s: %s", entry.Name, entry.Description))
		if len(entry.Params) > 0 {
			parts := make([]string, len(entry.Params))
			for i, p := range entry.Params {
				parts[i] = fmt.Sprintf("%s (%s: %s)", p.Name, p.Type, p.Description)
			}
			b.WriteString(" Parameters: " + strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// checkType verifies a decoded JSON value against a declared parameter type.
// JSON numbers decode as float64, so integers accept whole-valued floats.
func checkType(declared string, value any) error {
	switch declared {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("got %T, want string", value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("got %T, want boolean", value)
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("got %T, want number", value)
		}
	case TypeInteger:
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("got %T, want integer", value)
		}
		if f != float64(int64(f)) {
			return fmt.Errorf("got fractional value %v, want integer", f)
		}
	}
	return nil
}
