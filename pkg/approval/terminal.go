package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/tools"
)

// Prompts shown by the terminal source.
const (
	PromptApprovePlan = "Do you approve this plan?"
	PromptInstead     = "What should the agent do instead?"
	defaultDenyReason = "The user did not approve. Revise the plan and ask again."
	defaultWrapWidth  = 100
)

// ErrInputClosed is returned when the terminal input ends while a decision is pending.
var ErrInputClosed = errors.New("input closed before a decision was made")

type lineResult struct {
	line string
	err  error
}

// TerminalSource asks a human on a terminal. The plan summary is rendered as markdown.
type TerminalSource struct {
	in       io.Reader
	out      io.Writer
	renderer *glamour.TermRenderer
	logger   *logx.Logger

	headerStyle lipgloss.Style
	promptStyle lipgloss.Style
	dimStyle    lipgloss.Style

	once  sync.Once
	lines chan lineResult
	mu    sync.Mutex
}

// NewTerminalSource creates a source reading answers from in and writing prompts to out.
func NewTerminalSource(in io.Reader, out io.Writer, logger *logx.Logger) *TerminalSource {
	if logger == nil {
		logger = logx.NewLogger("approval")
	}

	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("notty"), glamour.WithWordWrap(defaultWrapWidth)}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		width := defaultWrapWidth
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 && w < width {
			width = w - 2
		}
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle(), glamour.WithWordWrap(width)}
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		logger.Warn("Markdown rendering unavailable, printing plain text: %v", err)
		renderer = nil
	}

	return &TerminalSource{
		in:       in,
		out:      out,
		renderer: renderer,
		logger:   logger,
		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"}).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}),
		promptStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}).
			Bold(true),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
}

// Resolve prompts for one pending call.
func (s *TerminalSource) Resolve(ctx context.Context, call deferred.PendingCall) (deferred.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := callArgs(call, s.logger)
	switch call.ToolName {
	case tools.ToolApprove:
		return s.resolveApprove(ctx, args)
	case tools.ToolAskFollowup:
		return s.resolveFollowup(ctx, args)
	default:
		return s.resolveGeneric(ctx, call.ToolName, args)
	}
}

func (s *TerminalSource) resolveApprove(ctx context.Context, args map[string]any) (deferred.Resolution, error) {
	s.header("Proposed plan")
	s.markdown(tools.Summary(args))

	ok, err := s.confirm(ctx, PromptApprovePlan)
	if err != nil {
		return deferred.Resolution{}, err
	}
	if ok {
		return deferred.Approve(), nil
	}
	return s.deny(ctx)
}

func (s *TerminalSource) resolveFollowup(ctx context.Context, args map[string]any) (deferred.Resolution, error) {
	questions := tools.Questions(args)
	s.header("The agent has questions")

	answers := make([]tools.FollowupAnswer, 0, len(questions))
	for i, q := range questions {
		fmt.Fprintf(s.out, "%s %s\n", s.dimStyle.Render(fmt.Sprintf("%d/%d", i+1, len(questions))), q)
		answer, err := s.ask(ctx, ">")
		if err != nil {
			return deferred.Resolution{}, err
		}
		answers = append(answers, tools.FollowupAnswer{Question: q, Answers: answer})
	}
	return deferred.ApproveWithArgs(tools.FollowupResults(answers)), nil
}

func (s *TerminalSource) resolveGeneric(ctx context.Context, toolName string, args map[string]any) (deferred.Resolution, error) {
	s.header("Approval needed: " + toolName)
	if payload, err := json.MarshalIndent(args, "", "  "); err == nil {
		s.markdown("```json\n" + string(payload) + "\n```")
	}

	ok, err := s.confirm(ctx, fmt.Sprintf("Allow %s?", toolName))
	if err != nil {
		return deferred.Resolution{}, err
	}
	if ok {
		return deferred.Approve(), nil
	}
	return s.deny(ctx)
}

func (s *TerminalSource) deny(ctx context.Context) (deferred.Resolution, error) {
	reason, err := s.ask(ctx, PromptInstead)
	if err != nil {
		return deferred.Resolution{}, err
	}
	if reason == "" {
		reason = defaultDenyReason
	}
	return deferred.Deny(reason), nil
}

// Prompt asks a free-form question outside of any pending call.
func (s *TerminalSource) Prompt(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ask(ctx, question)
}

// confirm asks a Yes/No question until it gets a recognizable answer.
func (s *TerminalSource) confirm(ctx context.Context, question string) (bool, error) {
	for {
		answer, err := s.ask(ctx, question+" [Yes/No]")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(s.out, s.dimStyle.Render("Please answer Yes or No."))
	}
}

// ask prints prompt and reads one trimmed line.
func (s *TerminalSource) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprintf(s.out, "%s ", s.promptStyle.Render(prompt))

	s.once.Do(s.startReader)
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("prompt cancelled: %w", ctx.Err())
	case res, ok := <-s.lines:
		if !ok {
			return "", ErrInputClosed
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.line), nil
	}
}

// startReader feeds input lines to ask so a cancelled context does not wait on a blocked read.
func (s *TerminalSource) startReader() {
	s.lines = make(chan lineResult)
	go func() {
		reader := bufio.NewReader(s.in)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				if errors.Is(err, io.EOF) {
					err = ErrInputClosed
				}
				s.lines <- lineResult{err: err}
				close(s.lines)
				return
			}
			s.lines <- lineResult{line: line}
		}
	}()
}

func (s *TerminalSource) header(title string) {
	fmt.Fprintf(s.out, "\n%s\n", s.headerStyle.Render(title))
}

func (s *TerminalSource) markdown(md string) {
	if s.renderer == nil {
		fmt.Fprintln(s.out, md)
		return
	}
	rendered, err := s.renderer.Render(md)
	if err != nil {
		fmt.Fprintln(s.out, md)
		return
	}
	fmt.Fprint(s.out, rendered)
}
