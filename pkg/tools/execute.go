package tools

import (
	"context"
	"time"

	"forgeloop/pkg/utils"
)

// ExecuteTool runs a command in the persistent shell session.
type ExecuteTool struct {
	ws *Workspace
}

// NewExecuteTool creates an execute tool.
func NewExecuteTool(ws *Workspace) *ExecuteTool {
	return &ExecuteTool{ws: ws}
}

// Name returns the tool name.
func (t *ExecuteTool) Name() string {
	return ToolExecute
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ExecuteTool) PromptDocumentation() string {
	return `- **execute** - Run a bash command in a persistent shell
  - Parameters:
    - command (string, REQUIRED): the command to run
    - timeout (number, optional): seconds to wait before giving up (default 10)
  - Returns combined stdout/stderr, or TIMEOUT
  - Working directory and exported variables persist between calls
  - Do not use this for file reads or edits; use the file tools`
}

// Definition returns the tool definition for LLM.
func (t *ExecuteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolExecute,
		Description: "Run a bash command and return its combined output. Use this for git, package managers, builds, tests and scripts, not for file operations. Returns TIMEOUT if the command exceeds the time limit; long-running servers should be started in the background.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {Type: "string", Description: "The bash command to execute"},
				"timeout": {Type: "number", Description: "Max seconds to wait before returning TIMEOUT. Defaults to 10."},
			},
			Required: []string{"command"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ExecuteTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	command, err := utils.StringArg(args, "command")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	var timeout time.Duration
	if secs, ok := utils.NumberArg(args, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	res, failure := t.ws.Run(ctx, command, timeout)
	if failure != nil {
		return failure, nil
	}
	return textResult(res.Output), nil
}
