package tools

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ListFilesTool recursively lists files matching a glob.
type ListFilesTool struct {
	ws         *Workspace
	maxResults int
}

// NewListFilesTool creates a list_files tool. maxResults <= 0 means unlimited.
func NewListFilesTool(ws *Workspace, maxResults int) *ListFilesTool {
	return &ListFilesTool{ws: ws, maxResults: maxResults}
}

// Name returns the tool name.
func (t *ListFilesTool) Name() string {
	return ToolListFiles
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ListFilesTool) PromptDocumentation() string {
	return `- **list_files** - Recursively find files matching a glob pattern
  - Parameters:
    - directory (string, optional): root directory to search (default ".")
    - pattern (string, optional): glob such as "*.go" or "src/**/*.ts" (default "*"), matched at any depth
  - Skips .git, .venv, __pycache__ and node_modules`
}

// Definition returns the tool definition for LLM.
func (t *ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListFiles,
		Description: "Recursively find files whose name matches a glob pattern. Use this to discover project structure. Excludes .git, .venv, __pycache__ and node_modules.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"directory": {Type: "string", Description: "Root directory to search from. Defaults to the workspace root."},
				"pattern":   {Type: "string", Description: "Glob matched at any depth below the directory; '**' spans directories. Defaults to '*'."},
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ListFilesTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	directory, _ := args["directory"].(string)
	if strings.TrimSpace(directory) == "" {
		directory = "."
	}
	pattern, _ := args["pattern"].(string)
	if strings.TrimSpace(pattern) == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return errorResult("invalid pattern: " + pattern), nil
	}
	// Patterns match at every depth, so "*.py" and "**/*.py" are equivalent.
	if !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + pattern
	}

	root := t.ws.Resolve(directory)
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable subdirectory is skipped; only a bad root fails the listing.
			if path != root && d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			if path != root {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && slices.Contains(ExcludedDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}

		files = append(files, filepath.Join(directory, rel))
		if t.maxResults > 0 && len(files) >= t.maxResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if len(files) == 0 {
		return textResult(ResultNoFiles), nil
	}
	return textResult(strings.Join(files, "\n")), nil
}
