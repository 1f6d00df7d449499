// Package toolloop runs the model/tool iteration shared by every agent.
//
// One iteration sends the conversation to the model, records its reply, and executes the tool
// calls it made. Gated calls are not executed: the loop returns OutcomeDeferred with the calls
// and continues through Resume once each one has a resolution.
package toolloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/contextmgr"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/tools"
)

// DefaultMaxIterations bounds model turns per Run or Resume when the config leaves it unset.
const DefaultMaxIterations = 50

// Tool outcomes reported to the Observer.
const (
	ToolOutcomeOK       = "ok"
	ToolOutcomeError    = "error"
	ToolOutcomeTimeout  = "timeout"
	ToolOutcomeDeferred = "deferred"
	ToolOutcomeDenied   = "denied"
)

// TerminalTool ends a run: once it executes without error, ExtractResult produces the run's value.
type TerminalTool[T any] interface {
	tools.Tool
	ExtractResult(args map[string]any) (T, error)
}

// Observer receives one event per tool call.
type Observer interface {
	ToolCall(tool, outcome string)
}

// ToolLoop drives one model client.
type ToolLoop struct {
	llmClient llm.LLMClient
	logger    *logx.Logger
}

// New creates a new ToolLoop instance.
func New(llmClient llm.LLMClient, logger *logx.Logger) *ToolLoop {
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	return &ToolLoop{
		llmClient: llmClient,
		logger:    logger,
	}
}

// Config defines how the tool loop behaves.
//
//nolint:govet // fieldalignment: struct fields ordered for clarity over memory alignment
type Config[T any] struct {
	// ContextManager holds the conversation. The agent owns it; the loop only appends.
	ContextManager *contextmgr.ContextManager

	// GeneralTools may be called any number of times. Gated tools among them are deferred.
	GeneralTools []tools.Tool

	// TerminalTool ends the run.
	TerminalTool TerminalTool[T]

	// InitialPrompt is appended as a user message by Run when non-empty.
	InitialPrompt string

	MaxIterations     int
	MaxTokens         int
	Temperature       float32
	ToolChoice        string
	ParallelToolCalls bool

	// AgentID tags the context passed to tools and domain debug logs.
	AgentID string

	Observer Observer
}

func (c *Config[T]) validate() error {
	if c.ContextManager == nil {
		return fmt.Errorf("%w: ContextManager is required", ErrInvalidConfig)
	}
	if c.TerminalTool == nil {
		return fmt.Errorf("%w: TerminalTool is required", ErrInvalidConfig)
	}
	return nil
}

// Run appends the initial prompt and iterates until the terminal tool succeeds, the turn defers,
// or a limit is reached.
func Run[T any](tl *ToolLoop, ctx context.Context, cfg *Config[T]) Outcome[T] {
	if err := cfg.validate(); err != nil {
		return Outcome[T]{Kind: OutcomeConfigError, Err: err}
	}
	if cfg.InitialPrompt != "" {
		cfg.ContextManager.AddUserMessage(cfg.InitialPrompt)
	}
	return iterate(tl, ctx, cfg)
}

// Resume applies one resolution per pending call, appends the continuation instruction, and
// iterates again. Resolutions are checked before anything is executed or sent to the model.
func Resume[T any](tl *ToolLoop, ctx context.Context, cfg *Config[T], pending []deferred.PendingCall,
	results deferred.Results, continuation string,
) Outcome[T] {
	if err := cfg.validate(); err != nil {
		return Outcome[T]{Kind: OutcomeConfigError, Err: err}
	}
	if err := results.Validate(pending); err != nil {
		return Outcome[T]{Kind: OutcomeResolutionError, Err: err}
	}

	byName := toolIndex(cfg)
	toolCtx := logx.WithAgentID(ctx, cfg.AgentID)
	for _, call := range pending {
		res := results[call.ID]
		tool, ok := byName[call.ToolName]
		switch {
		case !ok:
			addResult(tl, cfg, call.ID, call.ToolName, errorResult("unknown tool: "+call.ToolName), ToolOutcomeError)
		case !res.Approved():
			tl.logger.Info("Call %s (%s) denied", call.ID, call.ToolName)
			addResult(tl, cfg, call.ID, call.ToolName, &tools.ExecResult{Content: deniedMessage(res.Reason), IsError: true}, ToolOutcomeDenied)
		default:
			args := res.OverrideArgs
			if args == nil {
				args = tl.decodeArgs(call.ID, call.ToolName, call.Args)
			}
			execute(tl, toolCtx, cfg, tool, call.ID, args)
		}
	}

	if strings.TrimSpace(continuation) != "" {
		cfg.ContextManager.AddUserMessage(continuation)
	} else {
		cfg.ContextManager.FlushToolResults()
	}
	return iterate(tl, ctx, cfg)
}

func iterate[T any](tl *ToolLoop, ctx context.Context, cfg *Config[T]) Outcome[T] {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	toolChoice := cfg.ToolChoice
	if toolChoice == "" {
		toolChoice = llm.ToolChoiceAuto
	}

	byName := toolIndex(cfg)
	defs := make([]tools.ToolDefinition, 0, len(cfg.GeneralTools)+1)
	for _, t := range cfg.GeneralTools {
		defs = append(defs, t.Definition())
	}
	defs = append(defs, cfg.TerminalTool.Definition())

	toolCtx := logx.WithAgentID(ctx, cfg.AgentID)
	noToolTurns := 0

	for iteration := 1; iteration <= maxIterations; iteration++ {
		cfg.ContextManager.FlushToolResults()
		req := llm.CompletionRequest{
			Messages:          cfg.ContextManager.Messages(),
			Tools:             defs,
			ToolChoice:        toolChoice,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
			ParallelToolCalls: cfg.ParallelToolCalls,
		}

		logx.Debug(toolCtx, "toolloop", "iteration %d: %d messages, %d tools", iteration, len(req.Messages), len(defs))
		start := time.Now()
		resp, err := tl.llmClient.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome[T]{Kind: OutcomeLLMError, Err: fmt.Errorf("%w: %w", ErrGracefulShutdown, ctx.Err()), Iteration: iteration}
			}
			tl.logger.Error("LLM call failed after %.3gs: %v", time.Since(start).Seconds(), err)
			return Outcome[T]{Kind: OutcomeLLMError, Err: fmt.Errorf("LLM completion failed: %w", err), Iteration: iteration}
		}
		cfg.ContextManager.AddUsage(resp.Usage)
		cfg.ContextManager.AddAssistantMessage(resp.Content, resp.ToolCalls)
		tl.logger.Info("LLM call completed in %.3gs, tool calls: %d, tokens: %d",
			time.Since(start).Seconds(), len(resp.ToolCalls), resp.Usage.Total())

		if len(resp.ToolCalls) == 0 {
			noToolTurns++
			if noToolTurns >= 2 {
				return Outcome[T]{
					Kind:      OutcomeNoToolTwice,
					Err:       fmt.Errorf("%w: model answered without tools twice", ErrNoTerminalTool),
					Iteration: iteration,
				}
			}
			cfg.ContextManager.AddUserMessage(fmt.Sprintf(
				"You must use the available tools. Call %s when the task is complete.", cfg.TerminalTool.Name()))
			continue
		}
		noToolTurns = 0

		out, finished := processTurn(tl, toolCtx, cfg, byName, resp.ToolCalls)
		if finished {
			out.Iteration = iteration
			return out
		}
	}

	tl.logger.Warn("Maximum tool iterations (%d) reached", maxIterations)
	return Outcome[T]{
		Kind:      OutcomeMaxIterations,
		Err:       fmt.Errorf("maximum tool iterations (%d) exceeded", maxIterations),
		Iteration: maxIterations,
	}
}

// processTurn executes one model turn's calls in order. When the turn holds valid gated calls
// the terminal tool is held back, so a turn that defers never also completes.
func processTurn[T any](tl *ToolLoop, ctx context.Context, cfg *Config[T], byName map[string]tools.Tool,
	calls []llm.ToolCall,
) (Outcome[T], bool) {
	type gatedCall struct {
		args    map[string]any
		invalid error
	}
	gated := make(map[string]gatedCall)
	var pending []deferred.PendingCall
	for _, call := range calls {
		tool, ok := byName[call.Name]
		if !ok || !tools.RequiresApproval(tool) {
			continue
		}
		args := tl.decodeArgs(call.ID, call.Name, call.Args)
		var invalid error
		if v, ok := tool.(tools.ArgValidator); ok {
			invalid = v.ValidateArgs(args)
		}
		gated[call.ID] = gatedCall{args: args, invalid: invalid}
		if invalid == nil {
			pending = append(pending, deferred.PendingCall{ID: call.ID, ToolName: call.Name, Args: call.Args})
		}
	}

	terminalName := cfg.TerminalTool.Name()
	var (
		value    T
		finished bool
	)
	for _, call := range calls {
		tool, ok := byName[call.Name]
		if !ok {
			addResult(tl, cfg, call.ID, call.Name, errorResult(fmt.Sprintf("unknown tool: %s", call.Name)), ToolOutcomeError)
			continue
		}

		if g, isGated := gated[call.ID]; isGated {
			if g.invalid != nil {
				addResult(tl, cfg, call.ID, call.Name, errorResult(fmt.Sprintf("invalid arguments: %v", g.invalid)), ToolOutcomeError)
			} else if cfg.Observer != nil {
				cfg.Observer.ToolCall(call.Name, ToolOutcomeDeferred)
			}
			continue
		}

		args := tl.decodeArgs(call.ID, call.Name, call.Args)
		if call.Name != terminalName {
			execute(tl, ctx, cfg, tool, call.ID, args)
			continue
		}

		if len(pending) > 0 || finished {
			addResult(tl, cfg, call.ID, call.Name, errorResult(fmt.Sprintf(
				"%s was not run because other calls in this turn are waiting for the user. Call it again once they are resolved.",
				call.Name)), ToolOutcomeError)
			continue
		}
		res := execute(tl, ctx, cfg, tool, call.ID, args)
		if res.IsError {
			continue
		}
		extracted, err := cfg.TerminalTool.ExtractResult(args)
		if err != nil {
			tl.logger.Warn("Terminal tool %s returned an unusable result: %v", call.Name, err)
			continue
		}
		value = extracted
		finished = true
	}

	if len(pending) > 0 {
		tl.logger.Info("Turn deferred on %d gated call(s)", len(pending))
		return Outcome[T]{Kind: OutcomeDeferred, Pending: pending}, true
	}
	if finished {
		cfg.ContextManager.FlushToolResults()
		return Outcome[T]{Kind: OutcomeSuccess, Signal: terminalName, Value: value}, true
	}
	return Outcome[T]{}, false
}

// execute runs a tool and records its result. Go errors from a tool become ERROR results.
func execute[T any](tl *ToolLoop, ctx context.Context, cfg *Config[T], tool tools.Tool, callID string, args map[string]any) *tools.ExecResult {
	start := time.Now()
	res, err := tool.Exec(ctx, args)
	switch {
	case err != nil:
		tl.logger.Error("Tool %s failed after %.3fs: %v", tool.Name(), time.Since(start).Seconds(), err)
		res = errorResult(err.Error())
	case res == nil:
		res = &tools.ExecResult{}
	}
	logx.Debug(ctx, "toolloop", "tool %s finished in %.3fs (error=%v)", tool.Name(), time.Since(start).Seconds(), res.IsError)

	outcome := ToolOutcomeOK
	switch {
	case res.Content == tools.ResultTimeout:
		outcome = ToolOutcomeTimeout
	case res.IsError:
		outcome = ToolOutcomeError
	}
	addResult(tl, cfg, callID, tool.Name(), res, outcome)
	return res
}

// addResult buffers a tool result, prefixed with the run's cumulative token usage for models that need it.
func addResult[T any](tl *ToolLoop, cfg *Config[T], callID, toolName string, res *tools.ExecResult, outcome string) {
	content := res.Content
	if tools.ShouldIncludeUsage(tl.llmClient.GetModelName()) {
		content = tools.UsageWarning(cfg.ContextManager.Usage().Total()) + content
	}
	cfg.ContextManager.AddToolResult(callID, content, res.IsError)
	if cfg.Observer != nil {
		cfg.Observer.ToolCall(toolName, outcome)
	}
}

// decodeArgs normalizes a payload. An undecodable payload becomes an empty mapping with a warning.
func (tl *ToolLoop) decodeArgs(callID, toolName string, a deferred.Args) map[string]any {
	args, err := deferred.DecodeArgs(a)
	if err != nil {
		tl.logger.Warn("Call %s (%s): %v; treating arguments as empty", callID, toolName, err)
		return map[string]any{}
	}
	return args
}

func toolIndex[T any](cfg *Config[T]) map[string]tools.Tool {
	byName := make(map[string]tools.Tool, len(cfg.GeneralTools)+1)
	for _, t := range cfg.GeneralTools {
		byName[t.Name()] = t
	}
	byName[cfg.TerminalTool.Name()] = cfg.TerminalTool
	return byName
}

func errorResult(msg string) *tools.ExecResult {
	return &tools.ExecResult{Content: tools.ErrorPrefix + msg, IsError: true}
}

// deniedMessage is the tool result for a denied call; the reason is passed on as guidance.
func deniedMessage(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "The user declined this request."
	}
	return "The user declined this request. Instead: " + reason
}

// IsShutdown reports whether err came from context cancellation.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrGracefulShutdown)
}
