package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteldo/umbra/internal/browser"
	"github.com/soteldo/umbra/internal/secrets"
	"github.com/soteldo/umbra/internal/store"
	"github.com/soteldo/umbra/internal/validation"
	"github.com/soteldo/umbra/pkg/schema"
)

// stubbedOrchestrator returns an orchestrator whose per-profile run is
// replaced, so batch semantics can be tested without a browser or store.
func stubbedOrchestrator(runOne func(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error)) *Orchestrator {
	return &Orchestrator{logger: testLogger(), runOne: runOne}
}

func TestRunOnProfilesResultsAreIndexAligned(t *testing.T) {
	o := stubbedOrchestrator(func(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error) {
		status := schema.RunStatusCompleted
		if profileID == "p2" {
			status = schema.RunStatusFailed
		}
		return &schema.ExecutionResult{
			WorkflowID: workflowID,
			ProfileID:  profileID,
			Status:     status,
			StartedAt:  time.Now().UTC(),
		}, nil
	})

	ids := []string{"p1", "p2", "p3"}
	results, err := o.RunOnProfiles(context.Background(), "u1", "wf", ids, nil, 2)
	require.NoError(t, err)
	require.Len(t, results, len(ids))

	for i, id := range ids {
		assert.Equal(t, id, results[i].ProfileID)
	}
	assert.Equal(t, schema.RunStatusCompleted, results[0].Status)
	assert.Equal(t, schema.RunStatusFailed, results[1].Status)
	assert.Equal(t, schema.RunStatusCompleted, results[2].Status)
}

func TestRunOnProfilesFailuresDoNotAbortTheBatch(t *testing.T) {
	var runs int64
	o := stubbedOrchestrator(func(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error) {
		atomic.AddInt64(&runs, 1)
		if profileID == "bad" {
			return nil, schema.NewError(schema.ErrCodeLaunch, "no browser")
		}
		return &schema.ExecutionResult{
			ProfileID: profileID,
			Status:    schema.RunStatusCompleted,
			StartedAt: time.Now().UTC(),
		}, nil
	})

	results, err := o.RunOnProfiles(context.Background(), "u1", "wf", []string{"a", "bad", "b"}, nil, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, int64(3), runs)
	assert.Equal(t, schema.RunStatusFailed, results[1].Status)
	assert.Contains(t, results[1].ErrorMessage, "no browser")
}

func TestRunOnProfilesHonorsConcurrencyBound(t *testing.T) {
	var active, peak int64
	var mu sync.Mutex

	o := stubbedOrchestrator(func(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error) {
		n := atomic.AddInt64(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return &schema.ExecutionResult{ProfileID: profileID, Status: schema.RunStatusCompleted}, nil
	})

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	_, err := o.RunOnProfiles(context.Background(), "u1", "wf", ids, nil, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int64(3))
}

func TestRunOnProfilesVariablesAreIsolatedPerRun(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]map[string]any{}

	o := stubbedOrchestrator(func(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error) {
		vars["owner"] = profileID
		mu.Lock()
		seen[profileID] = vars
		mu.Unlock()
		return &schema.ExecutionResult{ProfileID: profileID, Status: schema.RunStatusCompleted}, nil
	})

	shared := map[string]any{"base": 1}
	_, err := o.RunOnProfiles(context.Background(), "u1", "wf", []string{"x", "y"}, shared, 2)
	require.NoError(t, err)

	assert.Equal(t, "x", seen["x"]["owner"])
	assert.Equal(t, "y", seen["y"]["owner"])
	assert.NotContains(t, shared, "owner")
}

func savingOrchestrator(t *testing.T) (*Orchestrator, *store.MemoryStore) {
	t.Helper()
	validator, err := validation.NewGraphValidator()
	require.NoError(t, err)
	st := store.NewMemoryStore()
	return &Orchestrator{store: st, validator: validator, logger: testLogger()}, st
}

func TestSaveWorkflowPersistsValidGraph(t *testing.T) {
	o, st := savingOrchestrator(t)

	wf := &store.WorkflowRecord{
		Name: "login flow",
		Graph: schema.WorkflowGraph{
			Nodes: []schema.Node{
				{ID: "start", Kind: schema.KindTrigger},
				{ID: "stop", Kind: schema.KindEnd},
			},
			Edges: []schema.Edge{{Source: "start", Target: "stop"}},
		},
	}
	require.NoError(t, o.SaveWorkflow(context.Background(), wf))
	require.NotEmpty(t, wf.ID)

	saved, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "login flow", saved.Name)
}

func TestSaveWorkflowUpdatesExistingRecord(t *testing.T) {
	o, st := savingOrchestrator(t)
	ctx := context.Background()

	wf := &store.WorkflowRecord{
		Name: "v1",
		Graph: schema.WorkflowGraph{
			Nodes: []schema.Node{
				{ID: "start", Kind: schema.KindTrigger},
				{ID: "stop", Kind: schema.KindEnd},
			},
			Edges: []schema.Edge{{Source: "start", Target: "stop"}},
		},
	}
	require.NoError(t, o.SaveWorkflow(ctx, wf))

	wf.Name = "v2"
	require.NoError(t, o.SaveWorkflow(ctx, wf))

	saved, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", saved.Name)

	all, err := st.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveWorkflowRejectsInvalidGraph(t *testing.T) {
	o, st := savingOrchestrator(t)

	wf := &store.WorkflowRecord{
		Name: "broken",
		Graph: schema.WorkflowGraph{
			Nodes: []schema.Node{{ID: "stop", Kind: schema.KindEnd}},
			Edges: []schema.Edge{{Source: "stop", Target: "ghost"}},
		},
	}
	err := o.SaveWorkflow(context.Background(), wf)
	requireCode(t, err, schema.ErrCodeValidation)

	all, lerr := st.ListWorkflows(context.Background())
	require.NoError(t, lerr)
	assert.Empty(t, all)
}

func TestSaveProxyEncryptsPasswordAtRest(t *testing.T) {
	o, st := savingOrchestrator(t)
	ctx := context.Background()

	vault, err := secrets.NewCipher(secrets.Config{
		Passphrase: "test-passphrase",
		Salt:       []byte("test-salt"),
		Iterations: 1000,
	})
	require.NoError(t, err)
	o.SetVault(vault)

	p := &store.Proxy{Server: "socks5://127.0.0.1:1080", Username: "u", Password: "hunter2"}
	require.NoError(t, o.SaveProxy(ctx, p))
	require.NotEmpty(t, p.ID)

	saved, err := st.GetProxy(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", saved.Password)

	plain, err := vault.DecryptString(saved.Password)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestSaveProxyRequiresServer(t *testing.T) {
	o, _ := savingOrchestrator(t)

	err := o.SaveProxy(context.Background(), &store.Proxy{Username: "u"})
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestSaveProxyWithoutVaultStoresPlaintext(t *testing.T) {
	o, st := savingOrchestrator(t)
	ctx := context.Background()

	p := &store.Proxy{Server: "http://proxy.local:8080", Password: "plain"}
	require.NoError(t, o.SaveProxy(ctx, p))

	saved, err := st.GetProxy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "plain", saved.Password)
}

func TestLaunchProfilesResultsAreIndexAligned(t *testing.T) {
	// LaunchProfiles goes through LaunchProfile, which needs a registry;
	// the batch convention is exercised through RunOnProfiles above. Here we
	// check only the trivial empty-input case.
	o := stubbedOrchestrator(nil)
	results := o.LaunchProfiles(context.Background(), "u1", nil, 4)
	assert.Empty(t, results)
}

func TestRunOnProfileUnknownProfileFailsBeforePersisting(t *testing.T) {
	o, st := savingOrchestrator(t)
	ctx := context.Background()

	wf := &store.WorkflowRecord{
		Name: "noop",
		Graph: schema.WorkflowGraph{
			Nodes: []schema.Node{
				{ID: "start", Kind: schema.KindTrigger},
				{ID: "stop", Kind: schema.KindEnd},
			},
			Edges: []schema.Edge{{Source: "start", Target: "stop"}},
		},
	}
	require.NoError(t, o.SaveWorkflow(ctx, wf))

	result, err := o.runOnProfile(ctx, "u1", wf.ID, "no-such-profile", nil)
	requireCode(t, err, schema.ErrCodeNotFound)
	require.NotNil(t, result)
	assert.Equal(t, schema.RunStatusFailed, result.Status)
	assert.Empty(t, result.ExecutionID)

	// The precondition failure must not leave an execution row behind.
	executions, lerr := st.ListExecutions(ctx, store.ExecutionFilter{})
	require.NoError(t, lerr)
	assert.Empty(t, executions)
}

// launchingOrchestrator wires a real registry with a stubbed session opener.
func launchingOrchestrator(t *testing.T, opens *int64, delay time.Duration) (*Orchestrator, *browser.SessionRegistry) {
	t.Helper()
	reg := browser.NewSessionRegistry(nil, testLogger())
	o := &Orchestrator{registry: reg, logger: testLogger()}
	o.openOne = func(ctx context.Context, userID, profileID string) (*browser.Session, error) {
		atomic.AddInt64(opens, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		session := &browser.Session{ProfileID: profileID, ID: "s-" + profileID, OwnerUserID: userID}
		if err := reg.Put(session); err != nil {
			return nil, err
		}
		return session, nil
	}
	return o, reg
}

func TestLaunchProfileConcurrentCallsShareOneSession(t *testing.T) {
	var opens int64
	o, reg := launchingOrchestrator(t, &opens, 10*time.Millisecond)

	const callers = 4
	results := make([]*schema.LaunchResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.LaunchProfile(context.Background(), "u1", "p1")
		}()
	}
	wg.Wait()

	alreadyRunning := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "s-p1", results[i].SessionID)
		if results[i].Message != "" {
			assert.Equal(t, "profile is already running", results[i].Message)
			alreadyRunning++
		}
	}
	assert.Equal(t, callers-1, alreadyRunning)
	assert.Equal(t, int64(1), opens)
	assert.Equal(t, 1, reg.Count())

	session, err := reg.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.OwnerUserID)
}

func TestLaunchGroupUnknownGroup(t *testing.T) {
	o, _ := savingOrchestrator(t)
	_, err := o.LaunchGroup(context.Background(), "u1", "ghost", 2)
	requireCode(t, err, schema.ErrCodeNotFound)
}

func TestLaunchGroupWithoutProfiles(t *testing.T) {
	o, st := savingOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, &store.ProfileGroup{ID: "g1", Name: "empty"}))

	_, err := o.LaunchGroup(ctx, "u1", "g1", 2)
	requireCode(t, err, schema.ErrCodeEmptyGroup)
}

func TestLaunchGroupLaunchesEveryMember(t *testing.T) {
	var opens int64
	o, reg := launchingOrchestrator(t, &opens, 0)
	st := store.NewMemoryStore()
	o.store = st

	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, &store.ProfileGroup{ID: "g1", Name: "farm"}))
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, st.CreateProfile(ctx, &store.Profile{ID: id, Name: id, GroupID: "g1", OwnerUserID: "u1"}))
	}

	results, err := o.LaunchGroup(ctx, "u1", "g1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		require.NotNil(t, res)
		require.NoError(t, res.Err)
	}
	assert.Equal(t, int64(2), opens)
	assert.Equal(t, 2, reg.Count())
}
