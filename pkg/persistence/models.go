package persistence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a workflow stage recorded as a run.
type Stage string

// Workflow stages.
const (
	StagePlan  Stage = "plan"
	StageInit  Stage = "init"
	StageBuild Stage = "build"
	StageRun   Stage = "run"
)

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Run is one invocation of a workflow stage.
type Run struct {
	ID         string     `json:"id"`
	Stage      Stage      `json:"stage"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Decision is the audit record of one resolved pending call.
//
//nolint:govet // struct alignment optimization not critical for this type.
type Decision struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	CallID       string    `json:"call_id"`
	ToolName     string    `json:"tool_name"`
	ArgsJSON     string    `json:"args_json"`
	Verdict      string    `json:"verdict"`
	Reason       string    `json:"reason,omitempty"`
	OverrideJSON string    `json:"override_json,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

// PlanRecord is the plan produced by a planning run.
type PlanRecord struct {
	RunID      string    `json:"run_id"`
	PlanJSON   string    `json:"plan_json"`
	RenderedMD string    `json:"rendered_md"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation is a serialized agent conversation.
type Conversation struct {
	RunID   string    `json:"run_id"`
	AgentID string    `json:"agent_id"`
	Data    string    `json:"data"`
	SavedAt time.Time `json:"saved_at"`
}

// GenerateRunID returns a new run identifier.
func GenerateRunID() string {
	return fmt.Sprintf("run-%s", uuid.New().String()[:8])
}

// ValidStatuses returns all valid run status values.
func ValidStatuses() []string {
	return []string{RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled}
}

// IsValidStatus checks if a status is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by SQLite defaults use strftime('%Y-%m-%dT%H:%M:%fZ').
		t, _ = time.Parse("2006-01-02T15:04:05.000Z", s)
	}
	return t
}
