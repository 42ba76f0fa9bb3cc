package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Profiles
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error
	SetProfileStatus(ctx context.Context, id string, status ProfileStatus) error
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]*Profile, error)
	DeleteProfile(ctx context.Context, id string) error

	// Profile groups
	CreateGroup(ctx context.Context, g *ProfileGroup) error
	GetGroup(ctx context.Context, id string) (*ProfileGroup, error)
	ListGroups(ctx context.Context) ([]*ProfileGroup, error)
	DeleteGroup(ctx context.Context, id string) error

	// Proxies
	CreateProxy(ctx context.Context, p *Proxy) error
	GetProxy(ctx context.Context, id string) (*Proxy, error)
	ListProxies(ctx context.Context) ([]*Proxy, error)
	DeleteProxy(ctx context.Context, id string) error

	// Workflows
	CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	UpdateWorkflow(ctx context.Context, wf *WorkflowRecord) error
	ListWorkflows(ctx context.Context) ([]*WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Executions
	CreateExecution(ctx context.Context, e *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Run events (append-only)
	AppendRunEvent(ctx context.Context, event *RunEvent) error
	GetRunEvents(ctx context.Context, executionID string, since int64) ([]*RunEvent, error)

	// Scheduled runs
	CreateScheduledRun(ctx context.Context, sr *ScheduledRun) error
	GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error)
	UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error
	ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error)
	DeleteScheduledRun(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
