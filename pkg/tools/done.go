package tools

import (
	"context"
	"strings"

	"forgeloop/pkg/utils"
)

// DoneTool ends an initializer or coding session with a summary of the work.
type DoneTool struct{}

// NewDoneTool creates a done tool.
func NewDoneTool() *DoneTool {
	return &DoneTool{}
}

// Name returns the tool name.
func (t *DoneTool) Name() string {
	return ToolDone
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *DoneTool) PromptDocumentation() string {
	return `- **done** - Finish the session
  - Parameters:
    - summary (string, REQUIRED): what was built, verified, and what remains`
}

// Definition returns the tool definition for LLM.
func (t *DoneTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolDone,
		Description: "Signal that the current task is complete. Call this only after the work is implemented and verified.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"summary": {Type: "string", Description: "What was done, how it was verified, and any known gaps"},
			},
			Required: []string{"summary"},
		},
	}
}

// Exec acknowledges completion.
func (t *DoneTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	if _, err := utils.StringArg(args, "summary"); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult("Session complete"), nil
}

// ExtractResult returns the summary.
func (t *DoneTool) ExtractResult(args map[string]any) (string, error) {
	summary, err := utils.StringArg(args, "summary")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}
