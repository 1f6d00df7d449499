package tools

import (
	"context"
	"fmt"
	"strings"

	"forgeloop/pkg/utils"
)

// SearchFilesTool greps file contents through the command session.
type SearchFilesTool struct {
	ws *Workspace
}

// NewSearchFilesTool creates a search_files tool.
func NewSearchFilesTool(ws *Workspace) *SearchFilesTool {
	return &SearchFilesTool{ws: ws}
}

// Name returns the tool name.
func (t *SearchFilesTool) Name() string {
	return ToolSearchFiles
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *SearchFilesTool) PromptDocumentation() string {
	return `- **search_files** - Search file contents with grep
  - Parameters:
    - pattern (string, REQUIRED): text or basic regex to find
    - path (string, optional): directory to search (default ".")
  - Output lines are path:line:text`
}

// Definition returns the tool definition for LLM.
func (t *SearchFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchFiles,
		Description: "Search file contents for a text pattern using grep -r. Use this to find where a function, variable or string is used. Excludes .git, .venv, __pycache__ and node_modules.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"pattern": {Type: "string", Description: "Text or regex pattern passed to grep"},
				"path":    {Type: "string", Description: "Directory to search within. Defaults to the workspace root."},
			},
			Required: []string{"pattern"},
		},
	}
}

// Command builds the grep invocation. It runs in a subshell so the session's working
// directory is left unchanged.
func (t *SearchFilesTool) Command(pattern, path string) string {
	excludes := make([]string, 0, len(ExcludedDirs))
	for _, dir := range ExcludedDirs {
		excludes = append(excludes, "--exclude-dir="+shellQuote(dir))
	}
	return fmt.Sprintf("(cd %s && grep -rnI %s -e %s -- %s)",
		shellQuote(t.ws.Root()), strings.Join(excludes, " "), shellQuote(pattern), shellQuote(path))
}

// Exec executes the tool with the given arguments.
func (t *SearchFilesTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	pattern, err := utils.StringArg(args, "pattern")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	path, _ := args["path"].(string)
	if strings.TrimSpace(path) == "" {
		path = "."
	}

	res, failure := t.ws.Run(ctx, t.Command(pattern, path), 0)
	if failure != nil {
		return failure, nil
	}

	// grep exits 1 silently when nothing matched and 2 on errors. Output with status 1
	// comes from the shell, e.g. a failed cd.
	output := strings.TrimSpace(res.Output)
	switch {
	case res.ExitCode >= 2, res.ExitCode == 1 && output != "":
		if output == "" {
			output = fmt.Sprintf("grep exited with status %d", res.ExitCode)
		}
		return errorResult(output), nil
	case output == "":
		return textResult(ResultNoMatches), nil
	default:
		return textResult(output), nil
	}
}
