package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ToolFactory creates a tool bound to a workspace.
type ToolFactory func(ws *Workspace) (Tool, error)

// factories is the read-only table of every known tool.
//
//nolint:gochecknoglobals // immutable factory table
var factories = map[string]ToolFactory{
	ToolReadFile:    func(ws *Workspace) (Tool, error) { return NewReadFileTool(ws), nil },
	ToolWriteFile:   func(ws *Workspace) (Tool, error) { return NewWriteFileTool(ws), nil },
	ToolEditFile:    func(ws *Workspace) (Tool, error) { return NewEditFileTool(ws), nil },
	ToolListFiles:   func(ws *Workspace) (Tool, error) { return NewListFilesTool(ws, 1000), nil },
	ToolSearchFiles: requireRunner(func(ws *Workspace) Tool { return NewSearchFilesTool(ws) }),
	ToolExecute:     requireRunner(func(ws *Workspace) Tool { return NewExecuteTool(ws) }),
	ToolAskFollowup: func(*Workspace) (Tool, error) { return NewAskFollowupTool(), nil },
	ToolApprove:     func(*Workspace) (Tool, error) { return NewApproveTool(), nil },
	ToolSubmitPlan:  func(*Workspace) (Tool, error) { return NewSubmitPlanTool(), nil },
	ToolDone:        func(*Workspace) (Tool, error) { return NewDoneTool(), nil },
}

func requireRunner(build func(*Workspace) Tool) ToolFactory {
	return func(ws *Workspace) (Tool, error) {
		if ws == nil || ws.runner == nil {
			return nil, fmt.Errorf("tool requires a command session")
		}
		return build(ws), nil
	}
}

// Known reports whether name is a registered tool.
func Known(name string) bool {
	_, ok := factories[name]
	return ok
}

// ToolProvider creates and caches the tools an agent is allowed to use.
type ToolProvider struct {
	ws      *Workspace
	allowed []string
	tools   map[string]Tool
	mu      sync.Mutex
}

// NewProvider creates a provider for the allowed tool names, in the given order.
func NewProvider(ws *Workspace, allowedTools []string) *ToolProvider {
	return &ToolProvider{
		ws:      ws,
		allowed: append([]string(nil), allowedTools...),
		tools:   make(map[string]Tool, len(allowedTools)),
	}
}

// Get retrieves a tool instance, creating it lazily if needed.
func (p *ToolProvider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.allows(name) {
		return nil, fmt.Errorf("tool '%s' not allowed in this context", name)
	}
	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not registered", name)
	}
	tool, err := factory(p.ws)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
	}
	p.tools[name] = tool
	return tool, nil
}

func (p *ToolProvider) allows(name string) bool {
	for _, n := range p.allowed {
		if n == name {
			return true
		}
	}
	return false
}

// Tools instantiates every allowed tool in allow-list order.
func (p *ToolProvider) Tools() ([]Tool, error) {
	out := make([]Tool, 0, len(p.allowed))
	for _, name := range p.allowed {
		tool, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, tool)
	}
	return out, nil
}

// Documentation renders prompt documentation for the given tools.
func Documentation(list []Tool) string {
	if len(list) == 0 {
		return "No tools available"
	}

	sorted := append([]Tool(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for _, tool := range sorted {
		doc.WriteString(tool.PromptDocumentation())
		doc.WriteString("\n")
	}
	return doc.String()
}
