package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"forgeloop/pkg/agent"
	"forgeloop/pkg/approval"
	"forgeloop/pkg/persistence"
	"forgeloop/pkg/plan"
	"forgeloop/pkg/specrender"
	"forgeloop/pkg/templates"
)

// InitPrompt starts the initializer agent.
const InitPrompt = "Initialize the project described in the specification. Call done when the skeleton builds."

// Plan converses with the decision source until the planner submits an approved plan, then
// writes the rendered specification with its JSON and YAML forms.
func (r *Runner) Plan(ctx context.Context, description string) (result *plan.Plan, err error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("project description is required")
	}

	runID, err := r.store.BeginRun(persistence.StagePlan)
	if err != nil {
		return nil, err
	}
	defer func() { r.finish(runID, err) }()
	r.logger.Info("Planning run %s started", runID)

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}
	data := templates.TemplateData{
		ProjectDir: r.cfg.Project.Dir,
		SpecFile:   r.cfg.Project.SpecFile,
	}
	request, err := renderer.Render(templates.PlanningRequestTemplate, &templates.TemplateData{TaskContent: description})
	if err != nil {
		return nil, err
	}

	planner, err := agent.NewPlanner(r.client, r.workspace(nil), r.agentOptions("planner", data))
	if err != nil {
		return nil, err
	}
	var observer approval.Observer
	if r.metrics != nil {
		observer = r.metrics
	}
	loop := approval.NewLoop[*plan.Plan](planner, r.source, approval.Options{
		Logger:   r.logger,
		Observer: observer,
		Recorder: r.store.DecisionRecorder(runID),
	})

	p, err := loop.Run(ctx, request)
	r.saveConversation(runID, planner.ID(), planner)
	if err != nil {
		return nil, fmt.Errorf("planning failed after %d approval rounds: %w", loop.Rounds(), err)
	}
	if p == nil {
		return nil, fmt.Errorf("planning finished without a plan after %d approval rounds", loop.Rounds())
	}

	if err := r.writePlan(runID, p); err != nil {
		return nil, err
	}
	r.logger.Info("Plan written to %s after %d approval rounds", r.cfg.SpecPath(), loop.Rounds())
	return p, nil
}

// writePlan stores the specification document, its structured forms, and the audit copy.
func (r *Runner) writePlan(runID string, p *plan.Plan) error {
	if err := specrender.WriteFile(r.cfg.SpecPath(), p); err != nil {
		return err
	}
	if err := p.Save(r.cfg.PlanJSONPath()); err != nil {
		return err
	}
	data, err := p.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.cfg.PlanYAMLPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write plan yaml: %w", err)
	}
	if err := r.store.SavePlan(runID, p, specrender.Render(p)); err != nil {
		r.logger.Warn("Failed to store plan of run %s: %v", runID, err)
	}
	return nil
}

// Init runs the initializer agent in a fresh command session and returns its summary.
func (r *Runner) Init(ctx context.Context) (summary string, err error) {
	if err := r.requireSpec(); err != nil {
		return "", err
	}

	runID, err := r.store.BeginRun(persistence.StageInit)
	if err != nil {
		return "", err
	}
	defer func() { r.finish(runID, err) }()

	sess, err := r.openSession(r.cfg.Project.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to open command session: %w", err)
	}
	defer r.closeSession(sess)

	initializer, err := agent.NewBuilder(agent.RoleInitializer, r.client, r.workspace(sess),
		r.agentOptions("initializer", r.buildData()))
	if err != nil {
		return "", err
	}

	res, err := initializer.Run(ctx, InitPrompt)
	r.saveConversation(runID, initializer.ID(), initializer)
	if err != nil {
		return "", err
	}
	r.logger.Info("Initializer finished: %s", res.Output)
	return res.Output, nil
}

// Build runs one coding session per implementation task of the specification, in order, and
// returns the session summaries. A failed session ends the stage.
func (r *Runner) Build(ctx context.Context) (summaries []string, err error) {
	if err := r.requireSpec(); err != nil {
		return nil, err
	}
	tasks, err := r.tasks()
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no implementation tasks found in %s", r.cfg.SpecPath())
	}
	if limit := r.cfg.Agents.CodingSessions; limit > 0 && limit < len(tasks) {
		r.logger.Info("Limiting build to the first %d of %d tasks", limit, len(tasks))
		tasks = tasks[:limit]
	}

	runID, err := r.store.BeginRun(persistence.StageBuild)
	if err != nil {
		return nil, err
	}
	defer func() { r.finish(runID, err) }()

	sess, err := r.openSession(r.cfg.Project.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open command session: %w", err)
	}
	defer r.closeSession(sess)

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}

		data := r.buildData()
		data.TaskName = task.Name
		data.TaskSteps = task.Steps
		data.TaskNumber = i + 1
		data.TaskTotal = len(tasks)
		prompt, err := renderer.Render(templates.CodingTaskTemplate, &data)
		if err != nil {
			return summaries, err
		}

		id := fmt.Sprintf("coder-%d", i+1)
		coder, err := agent.NewBuilder(agent.RoleCoder, r.client, r.workspace(sess), r.agentOptions(id, r.buildData()))
		if err != nil {
			return summaries, err
		}

		r.logger.Info("Coding session %d/%d: %s", i+1, len(tasks), task.Name)
		res, err := coder.Run(ctx, prompt)
		r.saveConversation(runID, id, coder)
		if err != nil {
			return summaries, fmt.Errorf("task %d (%s): %w", i+1, task.Name, err)
		}
		summaries = append(summaries, res.Output)
	}
	return summaries, nil
}

// tasks reads the implementation tasks from the stored plan JSON, which keeps every step
// verbatim, and falls back to the specification document when there is none.
func (r *Runner) tasks() ([]plan.Task, error) {
	p, err := plan.Load(r.cfg.PlanJSONPath())
	if err == nil && len(p.ImplementationSteps) > 0 {
		return p.ImplementationSteps, nil
	}
	if err != nil {
		r.logger.Debug("No plan JSON, reading tasks from %s: %v", r.cfg.SpecPath(), err)
	}
	return specrender.ParseTasksFile(r.cfg.SpecPath())
}

func (r *Runner) buildData() templates.TemplateData {
	return templates.TemplateData{
		WorkDir:  r.cfg.Project.Dir,
		SpecFile: filepath.Base(r.cfg.SpecPath()),
	}
}

func (r *Runner) closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		r.logger.Warn("Failed to close command session: %v", err)
	}
}

// Render re-renders the stored plan JSON into the specification document.
func Render(jsonPath, specPath string) (*plan.Plan, error) {
	p, err := plan.Load(jsonPath)
	if err != nil {
		return nil, err
	}
	if err := specrender.WriteFile(specPath, p); err != nil {
		return nil, err
	}
	return p, nil
}
