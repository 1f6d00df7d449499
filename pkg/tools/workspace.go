package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"forgeloop/pkg/shell"
)

// CommandRunner runs one shell command. *shell.Session implements it.
type CommandRunner interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (shell.Result, error)
}

// TimeoutObserver is notified when a command times out.
type TimeoutObserver interface {
	IncCommandTimeout()
}

// Workspace is the filesystem root and command session shared by an agent's tools.
// It serializes command execution because the session is not reentrant.
type Workspace struct {
	root           string
	runner         CommandRunner
	defaultTimeout time.Duration
	observer       TimeoutObserver

	mu sync.Mutex
}

// NewWorkspace creates a workspace rooted at root. runner may be nil for agents without
// command tools. A relative root is made absolute against the process working directory,
// since a command session may already run inside it.
func NewWorkspace(root string, runner CommandRunner, defaultTimeout time.Duration) *Workspace {
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if defaultTimeout <= 0 {
		defaultTimeout = shell.DefaultTimeout
	}
	return &Workspace{root: root, runner: runner, defaultTimeout: defaultTimeout}
}

// WithTimeoutObserver registers o for command timeouts.
func (w *Workspace) WithTimeoutObserver(o TimeoutObserver) *Workspace {
	w.observer = o
	return w
}

// Root returns the workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a tool-supplied path onto the workspace. Absolute paths pass through.
func (w *Workspace) Resolve(path string) string {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.root, path)
}

// Run executes command in the session and maps the outcome to the tool result vocabulary.
func (w *Workspace) Run(ctx context.Context, command string, timeout time.Duration) (shell.Result, *ExecResult) {
	if w.runner == nil {
		return shell.Result{ExitCode: -1}, errorResult("no command session available")
	}
	if timeout <= 0 {
		timeout = w.defaultTimeout
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	res, err := w.runner.Execute(ctx, command, timeout)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, shell.ErrTimeout):
		if w.observer != nil {
			w.observer.IncCommandTimeout()
		}
		return res, &ExecResult{Content: ResultTimeout, IsError: true}
	default:
		return res, errorResult(err.Error())
	}
}

// shellQuote single-quotes s for bash.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
