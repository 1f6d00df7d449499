package tools

import (
	"context"
	"strings"

	"forgeloop/pkg/utils"
)

// ApproveTool presents the plan summary for human approval. It is gated; once approved the
// agent is told to submit the full plan.
type ApproveTool struct{}

// NewApproveTool creates an approve tool.
func NewApproveTool() *ApproveTool {
	return &ApproveTool{}
}

// Name returns the tool name.
func (t *ApproveTool) Name() string {
	return ToolApprove
}

// RequiresApproval marks the tool as gated.
func (t *ApproveTool) RequiresApproval() bool {
	return true
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ApproveTool) PromptDocumentation() string {
	return `- **approve** - Present the complete plan summary to the user for approval
  - Parameters:
    - plan (string, REQUIRED): digestible markdown overview that matches the final plan
  - If the user declines, their feedback is returned; revise and ask again
  - After approval, call submit_plan with the full structured plan`
}

// Definition returns the tool definition for LLM.
func (t *ApproveTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolApprove,
		Description: "Present the complete plan summary for user review and approval. The summary must accurately represent the final detailed plan.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"plan": {Type: "string", Description: "Markdown summary of the plan for the user to review"},
			},
			Required: []string{"plan"},
		},
	}
}

// Summary extracts the plan summary from a call's arguments.
func Summary(args map[string]any) string {
	return utils.GetMapFieldOr(args, "plan", "")
}

// ValidateArgs rejects an empty summary.
func (t *ApproveTool) ValidateArgs(args map[string]any) error {
	_, err := utils.StringArg(args, "plan")
	return err
}

// Exec runs after the user approved the plan.
func (t *ApproveTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	msg := ResultPlanApproved + ". Now call submit_plan with the complete structured plan."
	if note := strings.TrimSpace(utils.GetMapFieldOr(args, "note", "")); note != "" {
		msg += "\nUser note: " + note
	}
	return textResult(msg), nil
}
