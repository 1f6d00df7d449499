// Package workflow runs the forgeloop stages: planning with a human in the loop, project
// initialization, and one coding session per implementation task.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"forgeloop/pkg/agent"
	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/toolloop"
	"forgeloop/pkg/approval"
	"forgeloop/pkg/config"
	"forgeloop/pkg/contextmgr"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/persistence"
	"forgeloop/pkg/shell"
	"forgeloop/pkg/templates"
	"forgeloop/pkg/tools"
)

// ErrNoSpec is returned when a later stage runs before a plan was written.
var ErrNoSpec = errors.New("project specification not found, run the plan stage first")

// Metrics is the observer set the stages report to. *metrics.PrometheusRecorder implements it.
type Metrics interface {
	toolloop.Observer
	approval.Observer
	tools.TimeoutObserver
}

// Session is a command session bound to the project directory.
type Session interface {
	tools.CommandRunner
	Close() error
}

// SessionFactory opens a command session in dir.
type SessionFactory func(dir string) (Session, error)

// Dependencies wires a Runner. Config, Client and Source are required.
type Dependencies struct {
	Config *config.Config
	Client llm.LLMClient
	Source approval.DecisionSource
	Store  *persistence.Store
	Logger *logx.Logger

	// Metrics may be nil.
	Metrics Metrics

	// ConfigDir holds user instructions appended to every system prompt.
	ConfigDir string

	// OpenSession defaults to a persistent shell from cfg.Session.
	OpenSession SessionFactory
}

// Runner executes workflow stages against one project directory.
type Runner struct {
	cfg         *config.Config
	client      llm.LLMClient
	source      approval.DecisionSource
	store       *persistence.Store
	logger      *logx.Logger
	metrics     Metrics
	configDir   string
	openSession SessionFactory
}

// New validates deps and creates a Runner.
func New(deps Dependencies) (*Runner, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("workflow: config is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("workflow: llm client is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("workflow: decision source is required")
	}

	r := &Runner{
		cfg:         deps.Config,
		client:      deps.Client,
		source:      deps.Source,
		store:       deps.Store,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		configDir:   deps.ConfigDir,
		openSession: deps.OpenSession,
	}
	if r.logger == nil {
		r.logger = logx.NewLogger("workflow")
	}
	if r.store == nil {
		r.store, _ = persistence.Open(false, "", r.logger)
	}
	if r.configDir == "" {
		r.configDir = config.ProjectConfigDir
	}
	if r.openSession == nil {
		r.openSession = r.shellSession
	}
	return r, nil
}

func (r *Runner) shellSession(dir string) (Session, error) {
	sess, err := shell.Start(shell.Options{
		Shell:          r.cfg.Session.Shell,
		Dir:            dir,
		DefaultTimeout: r.cfg.CommandTimeout(),
		Logger:         r.logger.WithAgentID("shell"),
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// RunAll runs plan, init and build in order under one "run" record.
func (r *Runner) RunAll(ctx context.Context, description string) (err error) {
	runID, err := r.store.BeginRun(persistence.StageRun)
	if err != nil {
		return err
	}
	defer func() { r.finish(runID, err) }()

	if _, err = r.Plan(ctx, description); err != nil {
		return err
	}
	if _, err = r.Init(ctx); err != nil {
		return err
	}
	_, err = r.Build(ctx)
	return err
}

// agentOptions returns the options shared by every agent of a stage.
func (r *Runner) agentOptions(id string, data templates.TemplateData) agent.Options {
	var observer toolloop.Observer
	if r.metrics != nil {
		observer = r.metrics
	}
	return agent.Options{
		ID:                id,
		PromptData:        data,
		ConfigDir:         r.configDir,
		MaxIterations:     r.cfg.Agents.MaxIterations,
		MaxTokens:         r.cfg.Model.MaxTokens,
		Temperature:       float32(r.cfg.Model.Temperature),
		ParallelToolCalls: r.cfg.Agents.ParallelToolCalls,
		Observer:          observer,
		Logger:            r.logger.WithAgentID(id),
	}
}

// workspace binds the project directory to runner. runner may be nil for the planner.
func (r *Runner) workspace(runner tools.CommandRunner) *tools.Workspace {
	ws := tools.NewWorkspace(r.cfg.Project.Dir, runner, r.cfg.CommandTimeout())
	if r.metrics != nil {
		ws = ws.WithTimeoutObserver(r.metrics)
	}
	return ws
}

func (r *Runner) requireSpec() error {
	if _, err := os.Stat(r.cfg.SpecPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", r.cfg.SpecPath(), ErrNoSpec)
		}
		return fmt.Errorf("failed to stat specification: %w", err)
	}
	return nil
}

func (r *Runner) finish(runID string, err error) {
	if recErr := r.store.EndRun(runID, err); recErr != nil {
		r.logger.Warn("Failed to record end of run %s: %v", runID, recErr)
	}
}

func (r *Runner) saveConversation(runID, agentID string, a interface{ Context() *contextmgr.ContextManager }) {
	if err := r.store.SaveConversation(runID, agentID, a.Context()); err != nil {
		r.logger.Warn("Failed to save conversation of %s: %v", agentID, err)
	}
}
