package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// InsertRun records the start of a run.
func (ops *DatabaseOperations) InsertRun(run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := ops.db.Exec(
		`INSERT INTO runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Stage), run.Status, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun sets the final status of a run.
func (ops *DatabaseOperations) FinishRun(runID, status, errMsg string, finishedAt time.Time) error {
	if !IsValidStatus(status) {
		return fmt.Errorf("invalid run status: %s", status)
	}
	res, err := ops.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, nullString(errMsg), formatTime(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (ops *DatabaseOperations) GetRun(runID string) (*Run, error) {
	row := ops.db.QueryRow(
		`SELECT id, stage, status, error, started_at, finished_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (ops *DatabaseOperations) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ops.db.Query(
		`SELECT id, stage, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		stage     string
		errMsg    sql.NullString
		startedAt string
		finished  sql.NullString
	)
	if err := row.Scan(&run.ID, &stage, &run.Status, &errMsg, &startedAt, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err //nolint:wrapcheck // sentinel checked by caller
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Stage = Stage(stage)
	run.Error = errMsg.String
	run.StartedAt = parseTime(startedAt)
	if finished.Valid {
		t := parseTime(finished.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// InsertDecision appends a decision record.
func (ops *DatabaseOperations) InsertDecision(d *Decision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	res, err := ops.db.Exec(
		`INSERT INTO decisions (run_id, call_id, tool_name, args_json, verdict, reason, override_json, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.CallID, d.ToolName, d.ArgsJSON, d.Verdict,
		nullString(d.Reason), nullString(d.OverrideJSON), formatTime(d.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision for call %s: %w", d.CallID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		d.ID = id
	}
	return nil
}

// GetDecisionsByRun returns a run's decisions in the order they were made.
func (ops *DatabaseOperations) GetDecisionsByRun(runID string) ([]*Decision, error) {
	rows, err := ops.db.Query(
		`SELECT id, run_id, call_id, tool_name, args_json, verdict, reason, override_json, decided_at
		 FROM decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*Decision
	for rows.Next() {
		var (
			d         Decision
			args      sql.NullString
			reason    sql.NullString
			override  sql.NullString
			decidedAt string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.CallID, &d.ToolName, &args, &d.Verdict, &reason, &override, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.ArgsJSON = args.String
		d.Reason = reason.String
		d.OverrideJSON = override.String
		d.DecidedAt = parseTime(decidedAt)
		decisions = append(decisions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}

// UpsertPlan stores the plan of a run.
func (ops *DatabaseOperations) UpsertPlan(p *PlanRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := ops.db.Exec(
		`INSERT INTO plans (run_id, plan_json, rendered_md, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			plan_json = excluded.plan_json,
			rendered_md = excluded.rendered_md,
			created_at = excluded.created_at`,
		p.RunID, p.PlanJSON, p.RenderedMD, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan for run %s: %w", p.RunID, err)
	}
	return nil
}

// GetPlanByRun retrieves the plan of a run.
func (ops *DatabaseOperations) GetPlanByRun(runID string) (*PlanRecord, error) {
	return ops.queryPlan(`SELECT run_id, plan_json, rendered_md, created_at FROM plans WHERE run_id = ?`, runID)
}

// LatestPlan retrieves the most recently stored plan.
func (ops *DatabaseOperations) LatestPlan() (*PlanRecord, error) {
	return ops.queryPlan(`SELECT run_id, plan_json, rendered_md, created_at FROM plans ORDER BY created_at DESC LIMIT 1`)
}

func (ops *DatabaseOperations) queryPlan(query string, args ...any) (*PlanRecord, error) {
	var (
		p         PlanRecord
		createdAt string
	)
	err := ops.db.QueryRow(query, args...).Scan(&p.RunID, &p.PlanJSON, &p.RenderedMD, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// SaveConversation stores the latest snapshot of an agent's conversation.
func (ops *DatabaseOperations) SaveConversation(c *Conversation) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	_, err := ops.db.Exec(
		`INSERT INTO conversations (run_id, agent_id, data, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, agent_id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		c.RunID, c.AgentID, c.Data, formatTime(c.SavedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s/%s: %w", c.RunID, c.AgentID, err)
	}
	return nil
}

// GetConversation retrieves an agent's conversation snapshot.
func (ops *DatabaseOperations) GetConversation(runID, agentID string) (*Conversation, error) {
	var (
		c       Conversation
		savedAt string
	)
	err := ops.db.QueryRow(
		`SELECT run_id, agent_id, data, saved_at FROM conversations WHERE run_id = ? AND agent_id = ?`,
		runID, agentID,
	).Scan(&c.RunID, &c.AgentID, &c.Data, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s/%s: %w", runID, agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	c.SavedAt = parseTime(savedAt)
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
