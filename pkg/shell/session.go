// Package shell owns a persistent shell process that runs one command at a time.
//
// Each command is written to the shell's stdin followed by an echo of a per-call completion
// marker that carries the command's exit status. A background goroutine drains the merged
// stdout/stderr stream line by line; Execute collects lines until its marker appears or the
// timeout elapses.
//
// Known limitation: a timed-out command keeps running. Whatever it prints afterwards, and
// whatever was read before the timeout, is delivered as leading output of the next Execute.
// The marker of the abandoned command is dropped when it finally arrives.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"forgeloop/pkg/logx"
)

const (
	// DefaultShell is used when Options.Shell is empty.
	DefaultShell = "/bin/bash"
	// DefaultTimeout bounds Execute when the caller passes a non-positive timeout.
	DefaultTimeout = 10 * time.Second

	markerPrefix = "__FORGELOOP_DONE_"
	lineBuffer   = 4096
	closeGrace   = 2 * time.Second
)

var (
	// ErrTimeout is returned when the completion marker does not arrive in time.
	ErrTimeout = errors.New("command timed out")
	// ErrSessionClosed is returned once the shell process has exited or was closed.
	ErrSessionClosed = errors.New("shell session closed")

	staleMarker = regexp.MustCompile(`__FORGELOOP_DONE_[0-9a-f]{32}__:-?\d+$`)
)

// Result is the outcome of one command.
type Result struct {
	Output   string // merged stdout/stderr with the marker removed
	ExitCode int    // -1 when the command did not complete
	Duration time.Duration
}

// Options configures a Session.
type Options struct {
	Shell          string
	Dir            string
	Env            []string // appended to the current environment
	DefaultTimeout time.Duration
	Logger         *logx.Logger
}

// Session is one live shell process. It is not reentrant: callers must serialize Execute.
type Session struct {
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	lines          chan string
	exited         chan struct{}
	defaultTimeout time.Duration
	logger         *logx.Logger

	// leftover holds lines read by a call that timed out.
	leftover []string

	closeOnce sync.Once
}

// Start launches the shell and its output reader.
func Start(opts Options) (*Session, error) {
	shellPath := opts.Shell
	if shellPath == "" {
		shellPath = DefaultShell
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger("shell")
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if opts.Dir != "" {
		if _, err := os.Stat(opts.Dir); err != nil {
			return nil, fmt.Errorf("working directory %s: %w", opts.Dir, err)
		}
	}

	// One pipe for both streams keeps their interleaving.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(shellPath)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("failed to open shell stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", shellPath, err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	s := &Session{
		cmd:            cmd,
		stdin:          stdin,
		lines:          make(chan string, lineBuffer),
		exited:         make(chan struct{}),
		defaultTimeout: timeout,
		logger:         logger,
	}

	go s.pump(pr)
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	logger.Info("Started %s (pid %d)", shellPath, cmd.Process.Pid)
	return s, nil
}

// pump forwards output lines until the pipe reaches EOF.
func (s *Session) pump(r io.ReadCloser) {
	defer func() {
		_ = r.Close()
		close(s.lines)
	}()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			s.lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			return
		}
	}
}

// Alive reports whether the shell process is still running.
func (s *Session) Alive() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Execute runs command in the shell and waits up to timeout for it to finish.
// A non-positive timeout uses the session default. On ErrTimeout or context cancellation
// the partial output is returned and replayed at the start of the next call.
func (s *Session) Execute(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if !s.Alive() {
		return Result{ExitCode: -1}, ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if strings.TrimSpace(command) == "" {
		command = ":"
	}

	marker := markerPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
	// The group reads stdin from /dev/null so interactive programs cannot swallow the marker.
	script := fmt.Sprintf("{\n%s\n} < /dev/null\necho \"%s:$?\"\n", command, marker)

	start := time.Now()
	if _, err := io.WriteString(s.stdin, script); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	logx.Debug(ctx, "shell", "exec (timeout %s): %s", timeout, command)

	output := s.leftover
	s.leftover = nil

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return Result{Output: strings.Join(output, "\n"), ExitCode: -1, Duration: time.Since(start)}, ErrSessionClosed
			}

			if idx := strings.Index(line, marker); idx >= 0 {
				if prefix := line[:idx]; prefix != "" {
					output = append(output, prefix)
				}
				return Result{
					Output:   strings.Join(output, "\n"),
					ExitCode: parseExitCode(line[idx+len(marker):]),
					Duration: time.Since(start),
				}, nil
			}

			if loc := staleMarker.FindStringIndex(line); loc != nil {
				if prefix := line[:loc[0]]; prefix != "" {
					output = append(output, prefix)
				}
				logx.Debug(ctx, "shell", "dropped stale completion marker")
				continue
			}

			output = append(output, line)

		case <-timer.C:
			s.leftover = output
			s.logger.Warn("Command timed out after %s: %s", timeout, command)
			return Result{Output: strings.Join(output, "\n"), ExitCode: -1, Duration: time.Since(start)}, ErrTimeout

		case <-ctx.Done():
			s.leftover = output
			return Result{Output: strings.Join(output, "\n"), ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
		}
	}
}

// parseExitCode reads the ":<status>" suffix of a marker line.
func parseExitCode(suffix string) int {
	code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(suffix, ":")))
	if err != nil {
		return -1
	}
	return code
}

// Close ends the shell, killing it if it does not exit promptly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		select {
		case <-s.exited:
		case <-time.After(closeGrace):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			<-s.exited
		}
		s.logger.Info("Shell session closed")
	})
	return nil
}
