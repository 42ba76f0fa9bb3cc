package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soteldo/umbra/pkg/schema"
)

// MemoryStore is an in-memory Store used in tests and throwaway setups.
// All data is lost on Close.
type MemoryStore struct {
	mu sync.RWMutex

	profiles  map[string]*Profile
	groups    map[string]*ProfileGroup
	proxies   map[string]*Proxy
	workflows map[string]*WorkflowRecord
	execs     map[string]*Execution
	events    []*RunEvent
	scheduled map[string]*ScheduledRun

	nextEventID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*Profile),
		groups:    make(map[string]*ProfileGroup),
		proxies:   make(map[string]*Proxy),
		workflows: make(map[string]*WorkflowRecord),
		execs:     make(map[string]*Execution),
		scheduled: make(map[string]*ScheduledRun),
	}
}

func memDuplicate(resource, id string) error {
	return schema.NewErrorf(schema.ErrCodeConflict, "%s %q already exists", resource, id)
}

// --- Profiles ---

func (s *MemoryStore) CreateProfile(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return memDuplicate("profile", p.ID)
	}
	if p.Status == "" {
		p.Status = ProfileStatusIdle
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, storeNotFound("profile", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return storeNotFound("profile", id)
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	if update.ChromiumPath != nil {
		p.ChromiumPath = *update.ChromiumPath
	}
	if update.ProxyID != nil {
		p.ProxyID = *update.ProxyID
	}
	if update.GroupID != nil {
		p.GroupID = *update.GroupID
	}
	if update.Fingerprint != nil {
		p.Fingerprint = update.Fingerprint
	}
	if update.Notes != nil {
		p.Notes = *update.Notes
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetProfileStatus(ctx context.Context, id string, status ProfileStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return storeNotFound("profile", id)
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	if status == ProfileStatusRunning {
		now := time.Now().UTC()
		p.LastLaunchedAt = &now
	}
	return nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Profile
	for _, p := range s.profiles {
		if filter.GroupID != "" && p.GroupID != filter.GroupID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return storeNotFound("profile", id)
	}
	delete(s.profiles, id)
	return nil
}

// --- Profile groups ---

func (s *MemoryStore) CreateGroup(ctx context.Context, g *ProfileGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return memDuplicate("group", g.ID)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, id string) (*ProfileGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, storeNotFound("group", id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) ListGroups(ctx context.Context) ([]*ProfileGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ProfileGroup, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return storeNotFound("group", id)
	}
	delete(s.groups, id)
	return nil
}

// --- Proxies ---

func (s *MemoryStore) CreateProxy(ctx context.Context, p *Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proxies[p.ID]; ok {
		return memDuplicate("proxy", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.proxies[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProxy(ctx context.Context, id string) (*Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proxies[id]
	if !ok {
		return nil, storeNotFound("proxy", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProxies(ctx context.Context) ([]*Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Proxy, 0, len(s.proxies))
	for _, p := range s.proxies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteProxy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proxies[id]; !ok {
		return storeNotFound("proxy", id)
	}
	delete(s.proxies, id)
	return nil
}

// --- Workflows ---

func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; ok {
		return memDuplicate("workflow", wf.ID)
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = wf.CreatedAt
	}
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	cp := *wf
	return &cp, nil
}

func (s *MemoryStore) UpdateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workflows[wf.ID]
	if !ok {
		return storeNotFound("workflow", wf.ID)
	}
	cp := *wf
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WorkflowRecord, 0, len(s.workflows))
	for _, wf := range s.workflows {
		cp := *wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(s.workflows, id)
	return nil
}

// --- Executions ---

func (s *MemoryStore) CreateExecution(ctx context.Context, e *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.execs[e.ID]; ok {
		return memDuplicate("execution", e.ID)
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	cp := *e
	s.execs[e.ID] = &cp
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.execs[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[id]
	if !ok {
		return storeNotFound("execution", id)
	}
	if update.Status != nil {
		e.Status = *update.Status
	}
	if update.Variables != nil {
		e.Variables = update.Variables
	}
	if update.ReturnValue != nil {
		e.ReturnValue = update.ReturnValue
	}
	if update.ErrorMessage != nil {
		e.ErrorMessage = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		e.CompletedAt = update.CompletedAt
	}
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Execution
	for _, e := range s.execs {
		if filter.WorkflowID != "" && e.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.ProfileID != "" && e.ProfileID != filter.ProfileID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && e.StartedAt.Before(*filter.Since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return paginate(out, filter.Offset, filter.Limit), nil
}

// --- Run events ---

func (s *MemoryStore) AppendRunEvent(ctx context.Context, event *RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	cp := *event
	cp.ID = s.nextEventID
	cp.Sequence = s.nextEventID
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, &cp)
	event.ID = cp.ID
	event.Sequence = cp.Sequence
	return nil
}

func (s *MemoryStore) GetRunEvents(ctx context.Context, executionID string, since int64) ([]*RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RunEvent
	for _, ev := range s.events {
		if ev.ExecutionID != executionID || ev.Sequence <= since {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

// --- Scheduled runs ---

func (s *MemoryStore) CreateScheduledRun(ctx context.Context, sr *ScheduledRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduled[sr.ID]; ok {
		return memDuplicate("scheduled run", sr.ID)
	}
	if sr.CreatedAt.IsZero() {
		sr.CreatedAt = time.Now().UTC()
	}
	cp := *sr
	s.scheduled[sr.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.scheduled[id]
	if !ok {
		return nil, storeNotFound("scheduled run", id)
	}
	cp := *sr
	return &cp, nil
}

func (s *MemoryStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.scheduled[id]
	if !ok {
		return storeNotFound("scheduled run", id)
	}
	if update.Enabled != nil {
		sr.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		sr.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		sr.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		sr.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ScheduledRun
	for _, sr := range s.scheduled {
		if filter.WorkflowID != "" && sr.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Enabled != nil && sr.Enabled != *filter.Enabled {
			continue
		}
		cp := *sr
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteScheduledRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduled[id]; !ok {
		return storeNotFound("scheduled run", id)
	}
	delete(s.scheduled, id)
	return nil
}

// --- Maintenance ---

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Vacuum(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
