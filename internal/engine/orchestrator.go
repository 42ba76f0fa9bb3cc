package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soteldo/umbra/internal/browser"
	"github.com/soteldo/umbra/internal/expressions"
	"github.com/soteldo/umbra/internal/logging"
	"github.com/soteldo/umbra/internal/secrets"
	"github.com/soteldo/umbra/internal/store"
	"github.com/soteldo/umbra/internal/streaming"
	"github.com/soteldo/umbra/internal/validation"
	"github.com/soteldo/umbra/pkg/schema"
)

// DefaultBatchConcurrency bounds batch runs when the caller passes 0.
const DefaultBatchConcurrency = 3

// Orchestrator ties profiles, sessions, workflows and persistence together.
// It owns the lifecycle of sessions it opens; pre-existing sessions are
// reused and left open.
type Orchestrator struct {
	store    store.Store
	launcher *browser.Launcher
	registry *browser.SessionRegistry
	interp   *Interpreter
	expr      *expressions.ExprEngine
	jq        *expressions.GoJQEngine
	validator validation.Validator
	logger    *slog.Logger

	// hub, when set, receives a copy of every run event for live
	// subscribers. Nil means persistence only.
	hub streaming.EventHub

	// vault, when set, encrypts proxy passwords before they reach the
	// store and decrypts them at launch. Nil means plaintext pass-through.
	vault *secrets.Cipher

	// batchConcurrency is the fallback bound for batch runs when the caller
	// passes 0. Defaults to DefaultBatchConcurrency.
	batchConcurrency int

	// launchLocks serializes session opening per profile so two concurrent
	// launches of the same profile cannot both get past the registry check
	// and spawn two browsers.
	launchMu    sync.Mutex
	launchLocks map[string]*sync.Mutex

	// runOne and openOne are swappable in tests to exercise batch and launch
	// semantics without a real browser. runOne's error is non-nil only when
	// the run could not start.
	runOne  func(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error)
	openOne func(ctx context.Context, userID, profileID string) (*browser.Session, error)
}

// NewOrchestrator assembles the execution front door.
func NewOrchestrator(st store.Store, launcher *browser.Launcher, registry *browser.SessionRegistry, interp *Interpreter, expr *expressions.ExprEngine, jq *expressions.GoJQEngine, validator validation.Validator, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		store:            st,
		launcher:         launcher,
		registry:         registry,
		interp:           interp,
		expr:             expr,
		jq:               jq,
		validator:        validator,
		logger:           logger,
		batchConcurrency: DefaultBatchConcurrency,
	}
	o.runOne = o.runOnProfile
	o.openOne = o.openSession
	// The orchestrator backs executeWorkflow lookups unless a resolver was
	// injected on the interpreter already.
	if interp != nil && interp.workflows == nil {
		interp.workflows = o
	}
	return o
}

// SetDefaultConcurrency overrides the fallback bound used by batch runs and
// launches when the caller passes 0.
func (o *Orchestrator) SetDefaultConcurrency(n int) {
	if n > 0 {
		o.batchConcurrency = n
	}
}

// SetEventHub attaches a live event hub. Every run event appended to the
// store is also published to the hub for streaming subscribers.
func (o *Orchestrator) SetEventHub(hub streaming.EventHub) {
	o.hub = hub
}

// SetVault attaches a credential cipher for proxy passwords at rest.
func (o *Orchestrator) SetVault(vault *secrets.Cipher) {
	o.vault = vault
}

// SaveProxy persists an upstream proxy. With a vault attached the password
// is encrypted before it reaches the store.
func (o *Orchestrator) SaveProxy(ctx context.Context, p *store.Proxy) error {
	if p == nil {
		return schema.NewError(schema.ErrCodeValidation, "proxy is nil")
	}
	if p.Server == "" {
		return schema.NewError(schema.ErrCodeValidation, "proxy server is required")
	}
	if o.vault != nil && p.Password != "" {
		encrypted, err := o.vault.EncryptString(p.Password)
		if err != nil {
			return err
		}
		p.Password = encrypted
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return o.store.CreateProxy(ctx, p)
}

func (o *Orchestrator) defaultConcurrency() int {
	if o.batchConcurrency > 0 {
		return o.batchConcurrency
	}
	return DefaultBatchConcurrency
}

// ResolveWorkflow satisfies WorkflowResolver for executeWorkflow nodes.
func (o *Orchestrator) ResolveWorkflow(ctx context.Context, workflowID string) (*schema.WorkflowGraph, error) {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return &wf.Graph, nil
}

// SaveWorkflow validates a graph arriving from the editor and persists it.
// Records without an ID are created; known IDs are updated in place.
func (o *Orchestrator) SaveWorkflow(ctx context.Context, wf *store.WorkflowRecord) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow record is nil")
	}
	if err := o.validator.ValidateGraph(&wf.Graph); err != nil {
		return err
	}

	if wf.ID == "" {
		wf.ID = uuid.NewString()
		return o.store.CreateWorkflow(ctx, wf)
	}
	if _, err := o.store.GetWorkflow(ctx, wf.ID); err != nil {
		var uerr *schema.UmbraError
		if errors.As(err, &uerr) && uerr.Code == schema.ErrCodeNotFound {
			return o.store.CreateWorkflow(ctx, wf)
		}
		return err
	}
	return o.store.UpdateWorkflow(ctx, wf)
}

// --- Profile lifecycle ---

// profileLock returns the per-profile mutex guarding session opening.
func (o *Orchestrator) profileLock(profileID string) *sync.Mutex {
	o.launchMu.Lock()
	defer o.launchMu.Unlock()
	if o.launchLocks == nil {
		o.launchLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := o.launchLocks[profileID]
	if !ok {
		lock = &sync.Mutex{}
		o.launchLocks[profileID] = lock
	}
	return lock
}

// LaunchProfile opens a persistent session for the profile on behalf of
// userID. Launching a profile that is already running is not an error; the
// existing session is reported instead. The per-profile lock holds the slot
// through the launch, so concurrent launches of the same profile converge
// on one session.
func (o *Orchestrator) LaunchProfile(ctx context.Context, userID, profileID string) (*schema.LaunchResult, error) {
	ctx = logging.WithProfileID(ctx, profileID)

	lock := o.profileLock(profileID)
	lock.Lock()
	defer lock.Unlock()

	if session, err := o.registry.Get(profileID); err == nil {
		return &schema.LaunchResult{
			ProfileID: profileID,
			SessionID: session.ID,
			Message:   "profile is already running",
		}, nil
	}

	session, err := o.openOne(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "profile launched", "session_id", session.ID, "user_id", userID)
	return &schema.LaunchResult{ProfileID: profileID, SessionID: session.ID}, nil
}

// CloseProfile tears down the profile's session and flips it back to idle.
func (o *Orchestrator) CloseProfile(ctx context.Context, userID, profileID string) error {
	ctx = logging.WithProfileID(ctx, profileID)
	o.logger.InfoContext(ctx, "closing profile session", "user_id", userID)
	return o.registry.CloseOne(ctx, profileID)
}

// LaunchProfiles launches the given profiles with a fixed pool of workers
// draining a shared queue. The result slice is index-aligned with the input.
func (o *Orchestrator) LaunchProfiles(ctx context.Context, userID string, profileIDs []string, workers int) []*schema.LaunchResult {
	if workers < 1 {
		workers = o.defaultConcurrency()
	}
	if workers > len(profileIDs) {
		workers = len(profileIDs)
	}

	results := make([]*schema.LaunchResult, len(profileIDs))
	queue := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				res, err := o.LaunchProfile(ctx, userID, profileIDs[i])
				if err != nil {
					res = &schema.LaunchResult{ProfileID: profileIDs[i], Err: err}
				}
				results[i] = res
			}
		}()
	}
	for i := range profileIDs {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results
}

// LaunchGroup launches every profile in the group. Membership is resolved
// up front; an unknown group or one without profiles is a precondition
// failure, mirroring RunOnGroup.
func (o *Orchestrator) LaunchGroup(ctx context.Context, userID, groupID string, workers int) ([]*schema.LaunchResult, error) {
	if _, err := o.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	profiles, err := o.store.ListProfiles(ctx, store.ProfileFilter{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeEmptyGroup, "group %q has no profiles", groupID)
	}

	profileIDs := make([]string, len(profiles))
	for i, p := range profiles {
		profileIDs[i] = p.ID
	}
	return o.LaunchProfiles(ctx, userID, profileIDs, workers), nil
}

// openSession loads the profile and its proxy, launches a persistent
// context, and registers the session owned by userID.
func (o *Orchestrator) openSession(ctx context.Context, userID, profileID string) (*browser.Session, error) {
	profile, err := o.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	var proxy *store.Proxy
	if profile.ProxyID != "" {
		proxy, err = o.store.GetProxy(ctx, profile.ProxyID)
		if err != nil {
			return nil, err
		}
		if o.vault != nil && proxy.Password != "" {
			plain, derr := o.vault.DecryptString(proxy.Password)
			if derr != nil {
				return nil, derr
			}
			proxy.Password = plain
		}
	}

	session, err := o.launcher.LaunchPersistent(ctx, profile, proxy)
	if err != nil {
		return nil, err
	}
	session.OwnerUserID = userID
	if err := o.registry.Put(session); err != nil {
		_ = session.Close()
		return nil, err
	}
	if err := o.store.SetProfileStatus(ctx, profileID, store.ProfileStatusRunning); err != nil {
		o.logger.WarnContext(ctx, "failed to mark profile running", "error", err)
	}
	return session, nil
}

// --- Workflow runs ---

// RunOnProfile executes the workflow against one profile on behalf of
// userID. A session is opened if the profile has none; sessions opened here
// are closed when the run finishes, pre-existing ones stay open.
func (o *Orchestrator) RunOnProfile(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error) {
	return o.runOne(ctx, userID, workflowID, profileID, vars)
}

func (o *Orchestrator) runOnProfile(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error) {
	startedAt := time.Now().UTC()
	result := &schema.ExecutionResult{
		WorkflowID: workflowID,
		ProfileID:  profileID,
		Status:     schema.RunStatusFailed,
		StartedAt:  startedAt,
	}

	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, err
	}

	// Preconditions fail before anything is persisted: an unknown profile
	// must not leave a failed execution record behind.
	if _, err := o.store.GetProfile(ctx, profileID); err != nil {
		result.ErrorMessage = err.Error()
		return result, err
	}

	execution := &store.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		ProfileID:  profileID,
		Status:     schema.RunStatusRunning,
		StartedAt:  startedAt,
	}
	if len(vars) > 0 {
		if raw, merr := json.Marshal(vars); merr == nil {
			execution.Variables = raw
		}
	}
	ctx = logging.WithIDs(ctx, profileID, execution.ID)

	if err := o.store.CreateExecution(ctx, execution); err != nil {
		result.ErrorMessage = err.Error()
		return result, err
	}
	result.ExecutionID = execution.ID
	o.appendEvent(ctx, execution.ID, "", store.EventRunStarted, nil)

	session, opened, err := o.sessionFor(ctx, userID, profileID)
	if err != nil {
		o.finishExecution(ctx, execution.ID, result, nil, err)
		return result, nil
	}
	if opened {
		defer func() {
			if cerr := o.registry.CloseOne(ctx, profileID); cerr != nil {
				o.logger.WarnContext(ctx, "failed to close run session", "error", cerr)
			}
		}()
	}

	rt := NewRuntime(session, NewVariableStore(vars), o.expr, o.jq)
	sink := &storeEventSink{store: o.store, hub: o.hub, executionID: execution.ID, profileID: profileID, logger: o.logger}

	runResult, err := o.interp.Execute(ctx, &wf.Graph, rt, sink)
	o.finishExecution(ctx, execution.ID, result, runResult, err)
	return result, nil
}

// sessionFor reuses the profile's live session or opens a fresh one.
// The second return reports whether this call opened it. Opening goes
// through the same per-profile lock as LaunchProfile, so a run and an
// explicit launch never race a second browser into existence.
func (o *Orchestrator) sessionFor(ctx context.Context, userID, profileID string) (*browser.Session, bool, error) {
	lock := o.profileLock(profileID)
	lock.Lock()
	defer lock.Unlock()

	if session, err := o.registry.Get(profileID); err == nil {
		return session, false, nil
	}
	session, err := o.openOne(ctx, userID, profileID)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// finishExecution persists the terminal state and emits the final run event.
func (o *Orchestrator) finishExecution(ctx context.Context, executionID string, result *schema.ExecutionResult, runResult *Result, runErr error) {
	completedAt := time.Now().UTC()
	result.CompletedAt = &completedAt

	update := store.ExecutionUpdate{CompletedAt: &completedAt}
	status := schema.RunStatusCompleted
	event := store.EventRunCompleted
	var payload map[string]any

	if runErr != nil {
		status = schema.RunStatusFailed
		event = store.EventRunFailed
		result.ErrorMessage = runErr.Error()
		update.ErrorMessage = &result.ErrorMessage
		payload = map[string]any{"error": runErr.Error()}
		o.logger.ErrorContext(ctx, "run failed", "error", runErr)
	} else {
		result.Variables = runResult.Variables
		result.ReturnValue = runResult.ReturnValue
		if raw, err := json.Marshal(runResult.Variables); err == nil {
			update.Variables = raw
		}
		if runResult.ReturnValue != nil {
			if raw, err := json.Marshal(runResult.ReturnValue); err == nil {
				update.ReturnValue = raw
			}
		}
		o.logger.InfoContext(ctx, "run completed")
	}

	result.Status = status
	update.Status = &status
	if err := o.store.UpdateExecution(ctx, executionID, update); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist execution state", "error", err)
	}
	o.appendEvent(ctx, executionID, "", event, payload)
}

func (o *Orchestrator) appendEvent(ctx context.Context, executionID, nodeID, eventType string, payload map[string]any) {
	event := &store.RunEvent{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			event.Payload = raw
		}
	}
	if err := o.store.AppendRunEvent(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to append run event", "event_type", eventType, "error", err)
	}
	if o.hub != nil {
		_ = o.hub.Publish(ctx, streaming.StreamEvent{
			ExecutionID: executionID,
			ProfileID:   logging.ProfileID(ctx),
			NodeID:      nodeID,
			EventType:   eventType,
			Payload:     payload,
		})
	}
}

// storeEventSink forwards interpreter node events into the run-event log
// and, when a hub is attached, to live subscribers.
type storeEventSink struct {
	store       store.Store
	hub         streaming.EventHub
	executionID string
	profileID   string
	logger      *slog.Logger
}

func (s *storeEventSink) NodeEvent(ctx context.Context, nodeID, eventType string, payload map[string]any) {
	event := &store.RunEvent{
		ExecutionID: s.executionID,
		NodeID:      nodeID,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			event.Payload = raw
		}
	}
	if err := s.store.AppendRunEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to append node event", "node_id", nodeID, "error", err)
	}
	if s.hub != nil {
		_ = s.hub.Publish(ctx, streaming.StreamEvent{
			ExecutionID: s.executionID,
			ProfileID:   s.profileID,
			NodeID:      nodeID,
			EventType:   eventType,
			Payload:     payload,
		})
	}
}

var _ EventSink = (*storeEventSink)(nil)

// --- Batch runs ---

// RunOnProfiles executes the workflow against every profile, at most
// concurrency at a time, admitted in input order. The result slice is
// index-aligned with the input; failed profiles are marked failed in place.
func (o *Orchestrator) RunOnProfiles(ctx context.Context, userID, workflowID string, profileIDs []string, vars map[string]any, concurrency int) ([]*schema.ExecutionResult, error) {
	if concurrency < 1 {
		concurrency = o.defaultConcurrency()
	}
	limiter, err := NewLimiter(concurrency)
	if err != nil {
		return nil, err
	}
	defer limiter.Shutdown()

	results := make([]*schema.ExecutionResult, len(profileIDs))
	for i, profileID := range profileIDs {
		i, profileID := i, profileID
		runVars := copyVars(vars)
		if err := limiter.Run(ctx, func(ctx context.Context) error {
			res, runErr := o.runOne(ctx, userID, workflowID, profileID, runVars)
			if runErr != nil && res == nil {
				res = &schema.ExecutionResult{
					WorkflowID:   workflowID,
					ProfileID:    profileID,
					Status:       schema.RunStatusFailed,
					StartedAt:    time.Now().UTC(),
					ErrorMessage: runErr.Error(),
				}
			}
			results[i] = res
			return runErr
		}); err != nil {
			results[i] = &schema.ExecutionResult{
				WorkflowID:   workflowID,
				ProfileID:    profileID,
				Status:       schema.RunStatusFailed,
				StartedAt:    time.Now().UTC(),
				ErrorMessage: err.Error(),
			}
		}
	}
	limiter.Wait()

	return results, nil
}

// RunOnGroup runs the workflow over every profile in the group.
func (o *Orchestrator) RunOnGroup(ctx context.Context, userID, workflowID, groupID string, vars map[string]any, concurrency int) ([]*schema.ExecutionResult, error) {
	if _, err := o.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	profiles, err := o.store.ListProfiles(ctx, store.ProfileFilter{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeEmptyGroup, "group %q has no profiles", groupID)
	}

	profileIDs := make([]string, len(profiles))
	for i, p := range profiles {
		profileIDs[i] = p.ID
	}
	return o.RunOnProfiles(ctx, userID, workflowID, profileIDs, vars, concurrency)
}

func copyVars(vars map[string]any) map[string]any {
	cp := make(map[string]any, len(vars))
	for k, v := range vars {
		cp[k] = v
	}
	return cp
}
