package agent

import (
	"context"
	"fmt"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/toolloop"
	"forgeloop/pkg/contextmgr"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/plan"
	"forgeloop/pkg/templates"
	"forgeloop/pkg/tools"
	"forgeloop/pkg/utils"
)

// Options tunes one agent.
//
//nolint:govet // fieldalignment: grouped by concern
type Options struct {
	// ID tags logs and tool contexts. Defaults to the role name.
	ID string

	// SystemPrompt overrides the rendered role template when non-empty.
	SystemPrompt string

	// PromptData fills the role template. ToolDocumentation is always set by the agent.
	PromptData templates.TemplateData

	// ConfigDir holds the optional user instructions appended to the system prompt.
	ConfigDir string

	MaxIterations     int
	MaxTokens         int
	Temperature       float32
	ParallelToolCalls bool

	Observer toolloop.Observer
	Logger   *logx.Logger
}

// Result is what one Run or Resume produced: either Output, or the gated calls in Deferred.
type Result[T any] struct {
	Output   T
	Deferred *deferred.Requests
}

// NeedsDecisions reports whether the agent paused on gated calls.
func (r Result[T]) NeedsDecisions() bool {
	return r.Deferred != nil && len(r.Deferred.Calls) > 0
}

// Agent drives one conversation to its terminal tool.
type Agent[T any] struct {
	role    Role
	loop    *toolloop.ToolLoop
	cfg     toolloop.Config[T]
	pending []deferred.PendingCall
	done    bool
	logger  *logx.Logger
}

// New assembles an agent from a client, its tools, and a terminal tool. Tools equal by name to
// the terminal tool are dropped from the general set.
func New[T any](role Role, client llm.LLMClient, general []tools.Tool, terminal toolloop.TerminalTool[T], opts Options) (*Agent[T], error) {
	if client == nil {
		return nil, fmt.Errorf("%s agent: llm client is required", role)
	}
	if terminal == nil {
		return nil, fmt.Errorf("%s agent: terminal tool is required", role)
	}
	if opts.ID == "" {
		opts.ID = role.String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger(opts.ID)
	}

	filtered := make([]tools.Tool, 0, len(general))
	for _, t := range general {
		if t.Name() != terminal.Name() {
			filtered = append(filtered, t)
		}
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		renderer, err := templates.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", role, err)
		}
		data := opts.PromptData
		data.ToolDocumentation = tools.Documentation(append(append([]tools.Tool(nil), filtered...), terminal))
		systemPrompt, err = renderer.RenderWithUserInstructions(role.SystemTemplate(), &data, opts.ConfigDir)
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", role, err)
		}
	}

	model := client.GetModelName()
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		logger.Debug("No tokenizer for %s, estimating token counts: %v", model, err)
		counter = nil
	}
	cm := contextmgr.NewContextManagerWithModel(model, counter)
	cm.SetSystemPrompt(systemPrompt)

	return &Agent[T]{
		role: role,
		loop: toolloop.New(client, logger),
		cfg: toolloop.Config[T]{
			ContextManager:    cm,
			GeneralTools:      filtered,
			TerminalTool:      terminal,
			MaxIterations:     opts.MaxIterations,
			MaxTokens:         opts.MaxTokens,
			Temperature:       opts.Temperature,
			ToolChoice:        llm.ToolChoiceAuto,
			ParallelToolCalls: opts.ParallelToolCalls,
			AgentID:           opts.ID,
			Observer:          opts.Observer,
		},
		logger: logger,
	}, nil
}

// Role returns the agent's role.
func (a *Agent[T]) Role() Role {
	return a.role
}

// ID returns the agent's identifier.
func (a *Agent[T]) ID() string {
	return a.cfg.AgentID
}

// Context returns the conversation owned by the agent.
func (a *Agent[T]) Context() *contextmgr.ContextManager {
	return a.cfg.ContextManager
}

// Pending returns the calls the agent is waiting on, in call order.
func (a *Agent[T]) Pending() []deferred.PendingCall {
	return append([]deferred.PendingCall(nil), a.pending...)
}

// Run sends prompt as a user message and drives the loop until the terminal tool or a deferral.
func (a *Agent[T]) Run(ctx context.Context, prompt string) (Result[T], error) {
	if a.done {
		return Result[T]{}, ErrAgentFinished
	}
	cfg := a.cfg
	cfg.InitialPrompt = prompt
	return a.settle(toolloop.Run(a.loop, ctx, &cfg))
}

// Resume applies one resolution per pending call, appends continuation, and drives the loop again.
// Resolutions are checked before anything runs; a failed check leaves the agent waiting.
func (a *Agent[T]) Resume(ctx context.Context, results deferred.Results, continuation string) (Result[T], error) {
	if a.done {
		return Result[T]{}, ErrAgentFinished
	}
	if len(a.pending) == 0 {
		return Result[T]{}, ErrNothingPending
	}
	return a.settle(toolloop.Resume(a.loop, ctx, &a.cfg, a.pending, results, continuation))
}

func (a *Agent[T]) settle(out toolloop.Outcome[T]) (Result[T], error) {
	switch out.Kind {
	case toolloop.OutcomeSuccess:
		a.pending = nil
		a.done = true
		a.logger.Info("%s finished via %s after %d iterations", a.role, out.Signal, out.Iteration)
		return Result[T]{Output: out.Value}, nil
	case toolloop.OutcomeDeferred:
		a.pending = out.Pending
		a.logger.Info("%s waiting on %d gated calls", a.role, len(out.Pending))
		return Result[T]{Deferred: &deferred.Requests{Calls: a.Pending()}}, nil
	case toolloop.OutcomeResolutionError:
		return Result[T]{}, fmt.Errorf("%s agent: %w", a.role, out.Err)
	default:
		a.pending = nil
		return Result[T]{}, fmt.Errorf("%s agent stopped (%s) at iteration %d: %w", a.role, out.Kind, out.Iteration, out.Err)
	}
}

// NewPlanner builds the planning agent over the gated planning tools.
func NewPlanner(client llm.LLMClient, ws *tools.Workspace, opts Options) (*Agent[*plan.Plan], error) {
	general, err := roleTools(RolePlanner, ws)
	if err != nil {
		return nil, err
	}
	return New[*plan.Plan](RolePlanner, client, general, tools.NewSubmitPlanTool(), opts)
}

// NewBuilder builds the initializer or coding agent; both finish with the done tool.
func NewBuilder(role Role, client llm.LLMClient, ws *tools.Workspace, opts Options) (*Agent[string], error) {
	if role != RoleInitializer && role != RoleCoder {
		return nil, fmt.Errorf("NewBuilder: %s is not a build role", role)
	}
	general, err := roleTools(role, ws)
	if err != nil {
		return nil, err
	}
	return New[string](role, client, general, tools.NewDoneTool(), opts)
}

func roleTools(role Role, ws *tools.Workspace) ([]tools.Tool, error) {
	list, err := tools.NewProvider(ws, role.ToolNames()).Tools()
	if err != nil {
		return nil, fmt.Errorf("%s tools: %w", role, err)
	}
	return list, nil
}
