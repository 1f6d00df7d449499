package tools

import (
	"context"
	"os"
	"strings"

	"forgeloop/pkg/utils"
)

// EditFileTool replaces every occurrence of a string in a file.
type EditFileTool struct {
	ws *Workspace
}

// NewEditFileTool creates an edit_file tool.
func NewEditFileTool(ws *Workspace) *EditFileTool {
	return &EditFileTool{ws: ws}
}

// Name returns the tool name.
func (t *EditFileTool) Name() string {
	return ToolEditFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *EditFileTool) PromptDocumentation() string {
	return `- **edit_file** - Replace text in a file
  - Parameters:
    - filepath (string, REQUIRED): file to edit
    - old_str (string, REQUIRED): exact text to find, including whitespace
    - new_str (string, REQUIRED): replacement text
  - Replaces ALL occurrences of old_str
  - Returns a warning and leaves the file untouched when old_str is not found`
}

// Definition returns the tool definition for LLM.
func (t *EditFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolEditFile,
		Description: "Replace a specific string in a file. Replaces ALL occurrences of old_str. Read the file first to match the exact text including indentation.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {Type: "string", Description: "Path of the file to edit"},
				"old_str":  {Type: "string", Description: "Exact text to find; must match the file content"},
				"new_str":  {Type: "string", Description: "Replacement text"},
			},
			Required: []string{"filepath", "old_str", "new_str"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *EditFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := utils.StringArg(args, "filepath")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	oldStr, err := utils.GetMapField[string](args, "old_str")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	newStr, err := utils.GetMapField[string](args, "new_str")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	target := t.ws.Resolve(path)
	info, err := os.Stat(target)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	content := string(data)
	updated := content
	if oldStr != "" {
		updated = strings.ReplaceAll(content, oldStr, newStr)
	}
	if updated == content {
		return textResult(ResultNoChanges), nil
	}

	if err := os.WriteFile(target, []byte(updated), info.Mode().Perm()); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(ResultFileEdited), nil
}
