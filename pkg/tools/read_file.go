package tools

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"forgeloop/pkg/utils"
)

// ReadFileTool returns the full text of a file.
type ReadFileTool struct {
	ws *Workspace
}

// NewReadFileTool creates a read_file tool.
func NewReadFileTool(ws *Workspace) *ReadFileTool {
	return &ReadFileTool{ws: ws}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReadFileTool) PromptDocumentation() string {
	return `- **read_file** - Read the full contents of a file
  - Parameters:
    - filepath (string, REQUIRED): absolute or workspace-relative path
  - Returns FILE_NOT_FOUND when the path does not exist
  - Read a file before editing or overwriting it`
}

// Definition returns the tool definition for LLM.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read the full contents of a file. Use this to inspect source code or configuration before making changes. Returns FILE_NOT_FOUND if the path does not exist.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {
					Type:        "string",
					Description: "Absolute or workspace-relative path of the file to read",
				},
			},
			Required: []string{"filepath"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := utils.StringArg(args, "filepath")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	data, err := os.ReadFile(t.ws.Resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ExecResult{Content: ResultFileNotFound, IsError: true}, nil
		}
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}
