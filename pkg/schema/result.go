package schema

import "time"

// RunStatus is the lifecycle state of one (workflow, profile) run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ExecutionResult is the outcome of running one workflow against one profile.
// Batch operations return one result per input profile; failed profiles are
// marked failed in place, never dropped.
type ExecutionResult struct {
	ExecutionID  string         `json:"execution_id"`
	WorkflowID   string         `json:"workflow_id"`
	ProfileID    string         `json:"profile_id"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
	ReturnValue  any            `json:"return_value,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// LaunchResult is the outcome of launching one profile without a workflow.
type LaunchResult struct {
	ProfileID string `json:"profile_id"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Err       error  `json:"-"`
}
