package store

import (
	"encoding/json"
	"time"

	"github.com/soteldo/umbra/pkg/schema"
)

// ProfileStatus is the lifecycle state of a browser profile.
type ProfileStatus string

const (
	ProfileStatusIdle    ProfileStatus = "idle"
	ProfileStatusRunning ProfileStatus = "running"
)

// Profile is a persistent browser identity. Each profile owns a dedicated
// user data directory so cookies, local storage, and sessions survive
// restarts.
type Profile struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	OwnerUserID    string          `json:"owner_user_id,omitempty"`
	DataDir        string          `json:"data_dir,omitempty"`
	ChromiumPath   string          `json:"chromium_path,omitempty"`
	ProxyID        string          `json:"proxy_id,omitempty"`
	GroupID        string          `json:"group_id,omitempty"`
	Status         ProfileStatus   `json:"status"`
	Fingerprint    json.RawMessage `json:"fingerprint,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastLaunchedAt *time.Time      `json:"last_launched_at,omitempty"`
}

// Proxy is an upstream proxy assignable to profiles.
type Proxy struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Server    string    `json:"server"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileGroup is a named set of profiles used for batch operations.
type ProfileGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowRecord is a persisted workflow graph.
type WorkflowRecord struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Graph     schema.WorkflowGraph `json:"graph"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Execution is the persisted record of one (workflow, profile) run.
type Execution struct {
	ID           string           `json:"id"`
	WorkflowID   string           `json:"workflow_id"`
	ProfileID    string           `json:"profile_id"`
	Status       schema.RunStatus `json:"status"`
	Variables    json.RawMessage  `json:"variables,omitempty"`
	ReturnValue  json.RawMessage  `json:"return_value,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// RunEvent is an immutable entry in the per-execution event log.
type RunEvent struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id,omitempty"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// Run event types.
const (
	EventRunStarted    = "run.started"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
	EventNodeStarted   = "node.started"
	EventNodeCompleted = "node.completed"
	EventNodeFailed    = "node.failed"
	EventNodeRetrying  = "node.retrying"
)

// ScheduledRun is a cron-triggered workflow run against a profile or group.
type ScheduledRun struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	TargetKind     string     `json:"target_kind"` // profile or group
	TargetID       string     `json:"target_id"`
	CronExpression string     `json:"cron_expression"`
	Concurrency    int        `json:"concurrency,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Scheduled run target kinds.
const (
	TargetProfile = "profile"
	TargetGroup   = "group"
)

// --- Filter and update types ---

// ProfileFilter specifies criteria for listing profiles.
type ProfileFilter struct {
	GroupID string         `json:"group_id,omitempty"`
	Status  *ProfileStatus `json:"status,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
}

// ProfileUpdate specifies mutable fields of a profile.
type ProfileUpdate struct {
	Name         *string         `json:"name,omitempty"`
	ChromiumPath *string         `json:"chromium_path,omitempty"`
	ProxyID      *string         `json:"proxy_id,omitempty"`
	GroupID      *string         `json:"group_id,omitempty"`
	Fingerprint  json.RawMessage `json:"fingerprint,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowID string            `json:"workflow_id,omitempty"`
	ProfileID  string            `json:"profile_id,omitempty"`
	Status     *schema.RunStatus `json:"status,omitempty"`
	Since      *time.Time        `json:"since,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status       *schema.RunStatus `json:"status,omitempty"`
	Variables    json.RawMessage   `json:"variables,omitempty"`
	ReturnValue  json.RawMessage   `json:"return_value,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// RunEventFilter specifies criteria for listing run events.
type RunEventFilter struct {
	ExecutionID string     `json:"execution_id,omitempty"`
	NodeID      string     `json:"node_id,omitempty"`
	EventType   string     `json:"event_type,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// ScheduledRunUpdate specifies mutable fields of a scheduled run.
type ScheduledRunUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledRunFilter specifies criteria for listing scheduled runs.
type ScheduledRunFilter struct {
	WorkflowID string `json:"workflow_id,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}
