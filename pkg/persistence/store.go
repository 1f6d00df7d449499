package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"forgeloop/pkg/contextmgr"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/plan"
)

// Store is the audit store used by the workflow. A store opened with persistence disabled
// accepts every call and writes nothing.
type Store struct {
	db     *sql.DB
	ops    *DatabaseOperations
	logger *logx.Logger
}

// Open opens the database at dbPath. When enabled is false a no-op store is returned.
func Open(enabled bool, dbPath string, logger *logx.Logger) (*Store, error) {
	if logger == nil {
		logger = logx.NewLogger("persistence")
	}
	if !enabled {
		return &Store{logger: logger}, nil
	}

	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Database initialized: %s", dbPath)
	return &Store{db: db, ops: NewDatabaseOperations(db), logger: logger}, nil
}

// Enabled reports whether the store writes to a database.
func (s *Store) Enabled() bool {
	return s != nil && s.ops != nil
}

// Ops exposes the underlying operations. Nil for a disabled store.
func (s *Store) Ops() *DatabaseOperations {
	if s == nil {
		return nil
	}
	return s.ops
}

// Close closes the database connection.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// BeginRun records the start of a stage and returns its run ID. The ID is generated even
// when the store is disabled so callers can log it.
func (s *Store) BeginRun(stage Stage) (string, error) {
	id := GenerateRunID()
	if !s.Enabled() {
		return id, nil
	}
	if err := s.ops.InsertRun(&Run{ID: id, Stage: stage}); err != nil {
		return "", err
	}
	return id, nil
}

// EndRun records how a run finished. Context cancellation is recorded as cancelled.
func (s *Store) EndRun(runID string, runErr error) error {
	if !s.Enabled() {
		return nil
	}
	status, msg := RunStatusCompleted, ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status, msg = RunStatusCancelled, runErr.Error()
	default:
		status, msg = RunStatusFailed, runErr.Error()
	}
	return s.ops.FinishRun(runID, status, msg, time.Now())
}

// SavePlan stores the plan produced by a run alongside its rendered document.
func (s *Store) SavePlan(runID string, p *plan.Plan, rendered string) error {
	if !s.Enabled() {
		return nil
	}
	data, err := p.JSON()
	if err != nil {
		return err
	}
	return s.ops.UpsertPlan(&PlanRecord{RunID: runID, PlanJSON: string(data), RenderedMD: rendered})
}

// LatestPlan returns the most recent stored plan.
func (s *Store) LatestPlan() (*plan.Plan, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("persistence disabled: %w", ErrNotFound)
	}
	rec, err := s.ops.LatestPlan()
	if err != nil {
		return nil, err
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(rec.PlanJSON), &p); err != nil {
		return nil, fmt.Errorf("stored plan of run %s is corrupt: %w", rec.RunID, err)
	}
	return &p, nil
}

// SaveConversation snapshots an agent's conversation.
func (s *Store) SaveConversation(runID, agentID string, cm *contextmgr.ContextManager) error {
	if !s.Enabled() || cm == nil {
		return nil
	}
	data, err := cm.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize conversation: %w", err)
	}
	return s.ops.SaveConversation(&Conversation{RunID: runID, AgentID: agentID, Data: string(data)})
}

// LoadConversation restores a snapshot into a fresh context manager.
func (s *Store) LoadConversation(runID, agentID string) (*contextmgr.ContextManager, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("persistence disabled: %w", ErrNotFound)
	}
	c, err := s.ops.GetConversation(runID, agentID)
	if err != nil {
		return nil, err
	}
	cm := contextmgr.NewContextManager()
	if err := cm.Deserialize([]byte(c.Data)); err != nil {
		return nil, fmt.Errorf("failed to restore conversation %s/%s: %w", runID, agentID, err)
	}
	return cm, nil
}

// DecisionRecorder returns a recorder that files decisions under runID.
func (s *Store) DecisionRecorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

// RunRecorder records the resolutions of one run.
type RunRecorder struct {
	store *Store
	runID string
}

// RecordDecision stores one resolution with the call's payload.
func (r *RunRecorder) RecordDecision(_ context.Context, call deferred.PendingCall, res deferred.Resolution) error {
	if !r.store.Enabled() {
		return nil
	}

	d := &Decision{
		RunID:    r.runID,
		CallID:   call.ID,
		ToolName: call.ToolName,
		ArgsJSON: deferred.EncodeArgs(call.Args),
		Verdict:  string(res.Verdict),
		Reason:   res.Reason,
	}
	if res.OverrideArgs != nil {
		data, err := json.Marshal(res.OverrideArgs)
		if err != nil {
			return fmt.Errorf("failed to encode override args: %w", err)
		}
		d.OverrideJSON = string(data)
	}
	return r.store.ops.InsertDecision(d)
}
