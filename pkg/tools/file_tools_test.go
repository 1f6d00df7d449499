package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestWorkspace(t *testing.T) (*Workspace, string) {
	t.Helper()
	dir := t.TempDir()
	return NewWorkspace(dir, nil, 0), dir
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestReadFile(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	writeTestFile(t, filepath.Join(dir, "notes.txt"), "line one\nline two\n")
	tool := NewReadFileTool(ws)

	res, err := tool.Exec(context.Background(), map[string]any{"filepath": "notes.txt"})
	if err != nil {
		t.Fatalf("Exec returned error: %v", err)
	}
	if res.Content != "line one\nline two\n" || res.IsError {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestReadFileMissing(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	res, _ := NewReadFileTool(ws).Exec(context.Background(), map[string]any{"filepath": "missing.txt"})
	if res.Content != ResultFileNotFound {
		t.Errorf("Expected %s, got %q", ResultFileNotFound, res.Content)
	}
}

func TestReadFileDirectoryIsError(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	res, _ := NewReadFileTool(ws).Exec(context.Background(), map[string]any{"filepath": "."})
	if !strings.HasPrefix(res.Content, ErrorPrefix) {
		t.Errorf("Expected ERROR result, got %q", res.Content)
	}
}

func TestReadFileMissingArgument(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	res, err := NewReadFileTool(ws).Exec(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Expected string-tagged failure, got error %v", err)
	}
	if !strings.HasPrefix(res.Content, ErrorPrefix) || !res.IsError {
		t.Errorf("Expected ERROR result, got %+v", res)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	ws, dir := newTestWorkspace(t)

	res, _ := NewWriteFileTool(ws).Exec(context.Background(), map[string]any{
		"filepath": "src/app/main.go",
		"content":  "package main\n",
	})
	if res.Content != ResultFileWritten {
		t.Fatalf("Expected %q, got %q", ResultFileWritten, res.Content)
	}

	data, err := os.ReadFile(filepath.Join(dir, "src", "app", "main.go"))
	if err != nil || string(data) != "package main\n" {
		t.Errorf("File not written correctly: %q (%v)", data, err)
	}
}

func TestWriteFileAllowsEmptyContent(t *testing.T) {
	ws, dir := newTestWorkspace(t)

	res, _ := NewWriteFileTool(ws).Exec(context.Background(), map[string]any{"filepath": "empty", "content": ""})
	if res.Content != ResultFileWritten {
		t.Fatalf("Expected success, got %q", res.Content)
	}
	if info, err := os.Stat(filepath.Join(dir, "empty")); err != nil || info.Size() != 0 {
		t.Errorf("Expected empty file, got %v %v", info, err)
	}
}

func TestEditFileReplacesAllOccurrences(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	path := filepath.Join(dir, "config.py")
	writeTestFile(t, path, "DEBUG = True\nVERBOSE = True\n")

	tool := NewEditFileTool(ws)
	args := map[string]any{"filepath": "config.py", "old_str": "True", "new_str": "False"}

	res, _ := tool.Exec(context.Background(), args)
	if res.Content != ResultFileEdited {
		t.Fatalf("Expected %q, got %q", ResultFileEdited, res.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "DEBUG = False\nVERBOSE = False\n" {
		t.Errorf("Unexpected content %q", data)
	}

	// A second identical edit finds nothing to replace and leaves the file untouched.
	res, _ = tool.Exec(context.Background(), args)
	if res.Content != ResultNoChanges {
		t.Errorf("Expected %q, got %q", ResultNoChanges, res.Content)
	}
	again, _ := os.ReadFile(path)
	if string(again) != string(data) {
		t.Errorf("File changed on no-op edit")
	}
}

func TestEditFileMissingFile(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	res, _ := NewEditFileTool(ws).Exec(context.Background(), map[string]any{
		"filepath": "nope.txt", "old_str": "a", "new_str": "b",
	})
	if !strings.HasPrefix(res.Content, ErrorPrefix) {
		t.Errorf("Expected ERROR result, got %q", res.Content)
	}
}

func TestListFiles(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	for _, p := range []string{"main.go", "pkg/util.go", "pkg/util_test.go", "README.md",
		".git/config", "node_modules/x/index.js", "__pycache__/a.pyc", ".venv/bin/python"} {
		writeTestFile(t, filepath.Join(dir, p), "x")
	}
	tool := NewListFilesTool(ws, 0)

	res, _ := tool.Exec(context.Background(), map[string]any{"pattern": "*.go"})
	want := strings.Join([]string{"main.go", filepath.Join("pkg", "util.go"), filepath.Join("pkg", "util_test.go")}, "\n")
	if res.Content != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, res.Content)
	}

	res, _ = tool.Exec(context.Background(), map[string]any{})
	for _, excluded := range []string{".git", "node_modules", "__pycache__", ".venv"} {
		if strings.Contains(res.Content, excluded) {
			t.Errorf("Expected %s to be excluded, got:\n%s", excluded, res.Content)
		}
	}
	if !strings.Contains(res.Content, "README.md") {
		t.Errorf("Expected README.md in listing, got:\n%s", res.Content)
	}

	res, _ = tool.Exec(context.Background(), map[string]any{"directory": "pkg", "pattern": "*_test.go"})
	if res.Content != filepath.Join("pkg", "util_test.go") {
		t.Errorf("Unexpected scoped listing %q", res.Content)
	}
}

func TestListFilesDoubleStar(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	for _, p := range []string{"main.py", "pkg/a.py", "pkg/sub/b.py", "pkg/sub/notes.md"} {
		writeTestFile(t, filepath.Join(dir, p), "x")
	}
	tool := NewListFilesTool(ws, 0)

	want := strings.Join([]string{"main.py", filepath.Join("pkg", "a.py"), filepath.Join("pkg", "sub", "b.py")}, "\n")
	for _, pattern := range []string{"**/*.py", "*.py"} {
		res, _ := tool.Exec(context.Background(), map[string]any{"pattern": pattern})
		if res.Content != want {
			t.Errorf("Pattern %s: expected:\n%s\ngot:\n%s", pattern, want, res.Content)
		}
	}

	res, _ := tool.Exec(context.Background(), map[string]any{"pattern": "sub/*.py"})
	if res.Content != filepath.Join("pkg", "sub", "b.py") {
		t.Errorf("Unexpected nested match %q", res.Content)
	}

	res, _ = tool.Exec(context.Background(), map[string]any{"pattern": "[a-"})
	if !strings.HasPrefix(res.Content, ErrorPrefix) {
		t.Errorf("Expected ERROR for invalid pattern, got %q", res.Content)
	}
}

func TestListFilesSkipsUnreadableDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any directory")
	}
	ws, dir := newTestWorkspace(t)
	writeTestFile(t, filepath.Join(dir, "ok.txt"), "x")
	writeTestFile(t, filepath.Join(dir, "locked", "secret.txt"), "x")
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	res, _ := NewListFilesTool(ws, 0).Exec(context.Background(), map[string]any{})
	if res.Content != "ok.txt" {
		t.Errorf("Expected only ok.txt, got %q", res.Content)
	}
}

func TestListFilesNoMatches(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	writeTestFile(t, filepath.Join(dir, "a.txt"), "x")

	res, _ := NewListFilesTool(ws, 0).Exec(context.Background(), map[string]any{"pattern": "*.rs"})
	if res.Content != ResultNoFiles {
		t.Errorf("Expected %q, got %q", ResultNoFiles, res.Content)
	}
}

func TestListFilesRespectsLimit(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	for _, p := range []string{"a", "b", "c"} {
		writeTestFile(t, filepath.Join(dir, p), "x")
	}

	res, _ := NewListFilesTool(ws, 2).Exec(context.Background(), map[string]any{})
	if got := len(strings.Split(res.Content, "\n")); got != 2 {
		t.Errorf("Expected 2 results, got %d: %q", got, res.Content)
	}
}
