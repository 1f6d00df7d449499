// Package templates provides template rendering for agent prompts.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering.
type TemplateData struct {
	Extra             map[string]any `json:"extra,omitempty"`
	TaskContent       string         `json:"task_content,omitempty"`
	TaskName          string         `json:"task_name,omitempty"`
	TaskSteps         []string       `json:"task_steps,omitempty"`
	TaskNumber        int            `json:"task_number,omitempty"`
	TaskTotal         int            `json:"task_total,omitempty"`
	WorkDir           string         `json:"work_dir,omitempty"`
	ProjectDir        string         `json:"project_dir,omitempty"`
	SpecFile          string         `json:"spec_file,omitempty"`
	ToolDocumentation string         `json:"tool_documentation,omitempty"`
}

// StateTemplate names an embedded prompt template.
type StateTemplate string

const (
	// PlanningSystemTemplate is the system prompt of the planning agent.
	PlanningSystemTemplate StateTemplate = "planning_system.tpl.md"
	// PlanningRequestTemplate wraps the user's project description.
	PlanningRequestTemplate StateTemplate = "planning_request.tpl.md"
	// InitializerSystemTemplate is the system prompt of the initializer agent.
	InitializerSystemTemplate StateTemplate = "initializer_system.tpl.md"
	// CodingSystemTemplate is the system prompt of the coding agent.
	CodingSystemTemplate StateTemplate = "coding_system.tpl.md"
	// CodingTaskTemplate is the first user message of a coding session.
	CodingTaskTemplate StateTemplate = "coding_task.tpl.md"
)

// UserInstructionsFile is read from the project config directory and appended to system prompts.
const UserInstructionsFile = "instructions.md"

// Renderer handles prompt template rendering.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	templateNames := []StateTemplate{
		PlanningSystemTemplate,
		PlanningRequestTemplate,
		InitializerSystemTemplate,
		CodingSystemTemplate,
		CodingTaskTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
			"join":     strings.Join,
		}).Option("missingkey=zero").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}
	if data == nil {
		data = &TemplateData{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// RenderWithUserInstructions renders the template and appends the user's instruction file from
// configDir, when one exists.
func (r *Renderer) RenderWithUserInstructions(templateName StateTemplate, data *TemplateData, configDir string) (string, error) {
	basePrompt, err := r.Render(templateName, data)
	if err != nil {
		return "", err
	}

	instructions, err := LoadUserInstructions(configDir)
	if err != nil {
		return "", fmt.Errorf("failed to load user instructions: %w", err)
	}
	if instructions == "" {
		return basePrompt, nil
	}

	return basePrompt + "\n\n## PROJECT INSTRUCTIONS\n\n" + instructions + "\n", nil
}

// LoadUserInstructions reads the instruction file in configDir. A missing file yields "".
func LoadUserInstructions(configDir string) (string, error) {
	if configDir == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(configDir, UserInstructionsFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return strings.TrimSpace(string(data)), nil
}

// GetAvailableTemplates returns a list of all available templates.
func (r *Renderer) GetAvailableTemplates() []StateTemplate {
	templates := make([]StateTemplate, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}
