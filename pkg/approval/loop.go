// Package approval drives an agent through its deferred-tool cycle.
//
// The loop runs the agent, and whenever a turn pauses on gated calls it asks a DecisionSource for
// one Resolution per call, in call order, before resuming the agent:
//
//	Running --terminal tool--> Complete
//	Running --gated calls--> AwaitingResolution --all resolved--> Running
//
// Rounds are unbounded. A denial is forwarded to the agent as guidance and never ends the run.
// Model failures and decision-source failures end the run with an error.
package approval

import (
	"context"
	"fmt"

	"forgeloop/pkg/agent"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
)

// ContinuePrompt is the user message sent with every set of resolutions.
const ContinuePrompt = "Continue with the next step after receiving the answers to the previous questions."

// State is the loop's position in the approval cycle.
type State int

const (
	// StateRunning means the agent is working.
	StateRunning State = iota
	// StateAwaitingResolution means the agent paused on gated calls.
	StateAwaitingResolution
	// StateComplete means the agent produced its final result.
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateAwaitingResolution:
		return "AWAITING_RESOLUTION"
	case StateComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DecisionSource resolves one pending call. It may block on a human.
type DecisionSource interface {
	Resolve(ctx context.Context, call deferred.PendingCall) (deferred.Resolution, error)
}

// SourceFunc adapts a function to DecisionSource.
type SourceFunc func(ctx context.Context, call deferred.PendingCall) (deferred.Resolution, error)

// Resolve calls f.
func (f SourceFunc) Resolve(ctx context.Context, call deferred.PendingCall) (deferred.Resolution, error) {
	return f(ctx, call)
}

// Driver is the agent surface the loop needs. *agent.Agent[T] implements it.
type Driver[T any] interface {
	Run(ctx context.Context, prompt string) (agent.Result[T], error)
	Resume(ctx context.Context, results deferred.Results, continuation string) (agent.Result[T], error)
}

// Observer counts rounds and resolutions.
type Observer interface {
	IncApprovalRound()
	IncResolution(tool, verdict string)
}

// DecisionRecorder keeps an audit trail of resolutions.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, call deferred.PendingCall, res deferred.Resolution) error
}

// Options configures a Loop. Every field is optional.
type Options struct {
	Logger   *logx.Logger
	Observer Observer
	Recorder DecisionRecorder

	// Continuation replaces ContinuePrompt.
	Continuation string
}

// Loop runs one agent through the approval cycle.
type Loop[T any] struct {
	driver Driver[T]
	source DecisionSource
	opts   Options
	logger *logx.Logger

	state  State
	rounds int
}

// NewLoop creates a loop over driver, resolving gated calls with source.
func NewLoop[T any](driver Driver[T], source DecisionSource, opts Options) *Loop[T] {
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger("approval")
	}
	if opts.Continuation == "" {
		opts.Continuation = ContinuePrompt
	}
	return &Loop[T]{driver: driver, source: source, opts: opts, logger: logger}
}

// State returns the current state.
func (l *Loop[T]) State() State {
	return l.state
}

// Rounds returns how many times the loop resumed the agent.
func (l *Loop[T]) Rounds() int {
	return l.rounds
}

// Run drives the agent from request to its final result.
func (l *Loop[T]) Run(ctx context.Context, request string) (T, error) {
	var zero T
	if l.driver == nil || l.source == nil {
		return zero, fmt.Errorf("approval loop needs a driver and a decision source")
	}

	l.state = StateRunning
	res, err := l.driver.Run(ctx, request)
	for {
		if err != nil {
			return zero, err
		}
		if !res.NeedsDecisions() {
			l.state = StateComplete
			l.logger.Info("Agent complete after %d approval rounds", l.rounds)
			return res.Output, nil
		}

		l.state = StateAwaitingResolution
		var results deferred.Results
		results, err = l.resolve(ctx, res.Deferred.Calls)
		if err != nil {
			return zero, err
		}

		l.rounds++
		if l.opts.Observer != nil {
			l.opts.Observer.IncApprovalRound()
		}
		l.state = StateRunning
		res, err = l.driver.Resume(ctx, results, l.opts.Continuation)
	}
}

// resolve asks the source for each call in order. Any failure is fatal to the run.
func (l *Loop[T]) resolve(ctx context.Context, calls []deferred.PendingCall) (deferred.Results, error) {
	results := make(deferred.Results, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("approval cancelled: %w", err)
		}

		res, err := l.source.Resolve(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s call %s: %w", call.ToolName, call.ID, err)
		}
		results[call.ID] = res

		l.logger.Info("Resolved %s call %s: %s", call.ToolName, call.ID, res.Verdict)
		if l.opts.Observer != nil {
			l.opts.Observer.IncResolution(call.ToolName, string(res.Verdict))
		}
		if l.opts.Recorder != nil {
			if err := l.opts.Recorder.RecordDecision(ctx, call, res); err != nil {
				l.logger.Warn("Failed to record decision for %s: %v", call.ID, err)
			}
		}
	}
	return results, nil
}
