package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"forgeloop/pkg/utils"
)

// WriteFileTool creates or overwrites a file.
type WriteFileTool struct {
	ws *Workspace
}

// NewWriteFileTool creates a write_file tool.
func NewWriteFileTool(ws *Workspace) *WriteFileTool {
	return &WriteFileTool{ws: ws}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WriteFileTool) PromptDocumentation() string {
	return `- **write_file** - Create or overwrite a file
  - Parameters:
    - filepath (string, REQUIRED): path of the file to write
    - content (string, REQUIRED): complete new file content
  - Overwrites the entire file; prefer edit_file for targeted changes`
}

// Definition returns the tool definition for LLM.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Create or overwrite a file with the given content. This replaces the whole file: read it first and prefer edit_file for targeted changes.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {
					Type:        "string",
					Description: "Path of the file to create or overwrite",
				},
				"content": {
					Type:        "string",
					Description: "The full text content to write",
				},
			},
			Required: []string{"filepath", "content"},
		},
	}
}

// Exec executes the tool with the given arguments. Parent directories are created as needed.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := utils.StringArg(args, "filepath")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	content, err := utils.GetMapField[string](args, "content")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	target := t.ws.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errorResult(fmt.Sprintf("failed to create directory: %v", err)), nil
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(ResultFileWritten), nil
}
