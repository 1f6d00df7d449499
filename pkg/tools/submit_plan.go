package tools

import (
	"context"
	"fmt"

	"forgeloop/pkg/plan"
)

// SubmitPlanTool is the planning agent's terminal tool. A valid submission ends the run with
// the structured plan; an invalid one is returned to the model with the validation errors.
type SubmitPlanTool struct{}

// NewSubmitPlanTool creates a submit_plan tool.
func NewSubmitPlanTool() *SubmitPlanTool {
	return &SubmitPlanTool{}
}

// Name returns the tool name.
func (t *SubmitPlanTool) Name() string {
	return ToolSubmitPlan
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *SubmitPlanTool) PromptDocumentation() string {
	return `- **submit_plan** - Submit the final, approved project plan
  - Parameters: the full plan object (overview, technology_stack, prerequisites, core_features,
    database_schema, api_endpoints_summary, ui_layout, design_system, key_interactions,
    implementation_steps, success_criteria)
  - Only call this after the user approved the plan summary
  - Omit database_schema, api_endpoints_summary, ui_layout and design_system only when the project genuinely has none`
}

func stringList(desc string) Property {
	return Property{Type: "array", Description: desc, Items: &Property{Type: "string"}}
}

// Definition returns the tool definition for LLM.
func (t *SubmitPlanTool) Definition() ToolDefinition {
	column := &Property{
		Type: "object",
		Properties: map[string]*Property{
			"name":        {Type: "string", Description: "Column name, e.g. 'id' or 'email'"},
			"type":        {Type: "string", Description: "Column type, e.g. 'VARCHAR(255)' or 'TIMESTAMP'"},
			"constraints": {Type: "string", Description: "Optional constraints, e.g. 'PRIMARY KEY' or 'NOT NULL'"},
		},
		Required: []string{"name", "type"},
	}
	table := &Property{
		Type: "object",
		Properties: map[string]*Property{
			"name":    {Type: "string", Description: "Table name"},
			"columns": {Type: "array", Items: column},
		},
		Required: []string{"name", "columns"},
	}
	endpoint := &Property{
		Type: "object",
		Properties: map[string]*Property{
			"path":   {Type: "string", Description: "Endpoint path, e.g. '/api/users'"},
			"method": {Type: "string", Description: "HTTP method", Enum: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
		},
		Required: []string{"path", "method"},
	}
	interaction := &Property{
		Type: "object",
		Properties: map[string]*Property{
			"feature":  {Type: "string", Description: "Feature under test"},
			"workflow": {Type: "array", Description: "Actionable steps from the user's perspective", Items: &Property{Type: "string"}},
		},
		Required: []string{"feature", "workflow"},
	}
	task := &Property{
		Type: "object",
		Properties: map[string]*Property{
			"task_name":            {Type: "string", Description: "Descriptive task name, e.g. 'Implement User Authentication API'"},
			"implementation_steps": {Type: "array", Description: "Ordered, concrete steps", Items: &Property{Type: "string"}},
		},
		Required: []string{"task_name", "implementation_steps"},
	}

	return ToolDefinition{
		Name:        ToolSubmitPlan,
		Description: "Submit the complete project plan after the user approved it. Autonomous agents will build the project from this plan without further guidance.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"overview":              {Type: "string", Description: "2-4 sentences: what the system does, who it is for, and why"},
				"technology_stack":      {Type: "string", Description: "Technology choices by category with critical versions"},
				"prerequisites":         stringList("Environment setup required before development, with versions"),
				"core_features":         stringList("User-facing features that define the system"),
				"database_schema":       {Type: "array", Description: "Tables with columns; omit only when no database is needed", Items: table},
				"api_endpoints_summary": {Type: "array", Description: "API endpoints; omit only when there is no backend API", Items: endpoint},
				"ui_layout":             stringList("Major pages and their key components; omit for backend-only projects"),
				"design_system":         stringList("Palette, typography, spacing and styling approach; omit for backend-only projects"),
				"key_interactions":      {Type: "array", Description: "End-to-end workflows that verify core functionality", Items: interaction},
				"implementation_steps":  {Type: "array", Description: "Ordered implementation phases", Items: task},
				"success_criteria":      stringList("Measurable completion criteria"),
			},
			Required: []string{
				"overview", "technology_stack", "prerequisites", "core_features",
				"key_interactions", "implementation_steps", "success_criteria",
			},
		},
	}
}

// Exec validates the submission.
func (t *SubmitPlanTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	p, err := plan.FromArgs(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := p.Validate(); err != nil {
		return errorResult(fmt.Sprintf("plan is incomplete, fix and resubmit:\n%v", err)), nil
	}
	return textResult(ResultPlanSubmitted), nil
}

// ExtractResult returns the submitted plan.
func (t *SubmitPlanTool) ExtractResult(args map[string]any) (*plan.Plan, error) {
	p, err := plan.FromArgs(args)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
