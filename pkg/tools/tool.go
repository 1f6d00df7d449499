// Package tools implements the capability functions agents may call: file access, command
// execution, the gated planning tools, and the terminal tools that end an agent run.
//
// Tools never surface Go errors for expected failures. Missing files, I/O problems and timeouts
// come back as string-tagged results (FILE_NOT_FOUND, "ERROR: <msg>", TIMEOUT).
package tools

import (
	"context"
)

// Tool is a capability exposed to the model.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	PromptDocumentation() string
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// Gated marks tools whose calls must be resolved externally before they run.
type Gated interface {
	RequiresApproval() bool
}

// ArgValidator lets a gated tool reject malformed arguments before a call is deferred.
type ArgValidator interface {
	ValidateArgs(args map[string]any) error
}

// RequiresApproval reports whether t is a gated tool.
func RequiresApproval(t Tool) bool {
	g, ok := t.(Gated)
	return ok && g.RequiresApproval()
}

// ExecResult is the text handed back to the model.
type ExecResult struct {
	Content string
	IsError bool
}

// ToolDefinition describes a tool to the model service.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is the top-level JSON schema of a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one JSON schema node.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	MinItems    *int                 `json:"minItems,omitempty"`
	MaxItems    *int                 `json:"maxItems,omitempty"`
}

// Map renders the property as a plain JSON schema map.
func (p *Property) Map() map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Items != nil {
		m["items"] = p.Items.Map()
	}
	if len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			if child != nil {
				props[name] = child.Map()
			}
		}
		m["properties"] = props
	}
	if len(p.Required) > 0 {
		m["required"] = p.Required
	}
	if p.MinItems != nil {
		m["minItems"] = *p.MinItems
	}
	if p.MaxItems != nil {
		m["maxItems"] = *p.MaxItems
	}
	return m
}

// PropertiesMap renders the schema's properties as plain JSON schema maps.
func (s InputSchema) PropertiesMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name := range s.Properties {
		prop := s.Properties[name]
		props[name] = prop.Map()
	}
	return props
}

// Map renders the whole schema as a JSON schema object.
func (s InputSchema) Map() map[string]any {
	m := map[string]any{
		"type":       s.Type,
		"properties": s.PropertiesMap(),
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

func intPtr(n int) *int { return &n }

func errorResult(msg string) *ExecResult {
	return &ExecResult{Content: ErrorPrefix + msg, IsError: true}
}

func textResult(content string) *ExecResult {
	return &ExecResult{Content: content}
}
