package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/soteldo/umbra/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Profiles ---

func (s *LibSQLStore) CreateProfile(ctx context.Context, p *Profile) error {
	if p.Status == "" {
		p.Status = ProfileStatusIdle
	}
	fingerprint, err := nullableJSON(p.Fingerprint)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, owner_user_id, data_dir, chromium_path, proxy_id, group_id, status, fingerprint, notes, created_at, updated_at, last_launched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullStr(p.OwnerUserID), nullStr(p.DataDir), nullStr(p.ChromiumPath), nullStr(p.ProxyID), nullStr(p.GroupID),
		string(p.Status), fingerprint, nullStr(p.Notes),
		timeOrNow(p.CreatedAt), timeOrNow(p.UpdatedAt), nullTime(p.LastLaunchedAt),
	)
	return err
}

func (s *LibSQLStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_user_id, data_dir, chromium_path, proxy_id, group_id, status, fingerprint, notes, created_at, updated_at, last_launched_at
		 FROM profiles WHERE id = ?`, id,
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("profile", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *LibSQLStore) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.ChromiumPath != nil {
		sets = append(sets, "chromium_path = ?")
		args = append(args, nullStr(*update.ChromiumPath))
	}
	if update.ProxyID != nil {
		sets = append(sets, "proxy_id = ?")
		args = append(args, nullStr(*update.ProxyID))
	}
	if update.GroupID != nil {
		sets = append(sets, "group_id = ?")
		args = append(args, nullStr(*update.GroupID))
	}
	if update.Fingerprint != nil {
		sets = append(sets, "fingerprint = ?")
		args = append(args, string(update.Fingerprint))
	}
	if update.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, nullStr(*update.Notes))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "profile", id)
}

func (s *LibSQLStore) SetProfileStatus(ctx context.Context, id string, status ProfileStatus) error {
	var launched string
	if status == ProfileStatusRunning {
		launched = ", last_launched_at = CURRENT_TIMESTAMP"
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE profiles SET status = ?, updated_at = CURRENT_TIMESTAMP%s WHERE id = ?`, launched),
		string(status), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "profile", id)
}

func (s *LibSQLStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]*Profile, error) {
	var where []string
	var args []any

	if filter.GroupID != "" {
		where = append(where, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, name, owner_user_id, data_dir, chromium_path, proxy_id, group_id, status, fingerprint, notes, created_at, updated_at, last_launched_at FROM profiles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *LibSQLStore) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "profile", id)
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	p := &Profile{}
	var (
		owner, dataDir, chromiumPath, proxyID, groupID, notes sql.NullString
		fingerprint                                           sql.NullString
		status                                                string
		lastLaunched                                          sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &owner, &dataDir, &chromiumPath, &proxyID, &groupID, &status,
		&fingerprint, &notes, &p.CreatedAt, &p.UpdatedAt, &lastLaunched)
	if err != nil {
		return nil, err
	}
	p.OwnerUserID = owner.String
	p.DataDir = dataDir.String
	p.ChromiumPath = chromiumPath.String
	p.ProxyID = proxyID.String
	p.GroupID = groupID.String
	p.Status = ProfileStatus(status)
	p.Fingerprint = jsonOrNil(fingerprint)
	p.Notes = notes.String
	if lastLaunched.Valid {
		p.LastLaunchedAt = &lastLaunched.Time
	}
	return p, nil
}

// --- Profile groups ---

func (s *LibSQLStore) CreateGroup(ctx context.Context, g *ProfileGroup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_groups (id, name, created_at) VALUES (?, ?, ?)`,
		g.ID, g.Name, timeOrNow(g.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetGroup(ctx context.Context, id string) (*ProfileGroup, error) {
	g := &ProfileGroup{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM profile_groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("group", id)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *LibSQLStore) ListGroups(ctx context.Context) ([]*ProfileGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM profile_groups ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*ProfileGroup
	for rows.Next() {
		g := &ProfileGroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *LibSQLStore) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profile_groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "group", id)
}

// --- Proxies ---

func (s *LibSQLStore) CreateProxy(ctx context.Context, p *Proxy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proxies (id, label, server, username, password, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, nullStr(p.Label), p.Server, nullStr(p.Username), nullStr(p.Password), timeOrNow(p.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetProxy(ctx context.Context, id string) (*Proxy, error) {
	p := &Proxy{}
	var label, username, password sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, server, username, password, created_at FROM proxies WHERE id = ?`, id,
	).Scan(&p.ID, &label, &p.Server, &username, &password, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("proxy", id)
	}
	if err != nil {
		return nil, err
	}
	p.Label = label.String
	p.Username = username.String
	p.Password = password.String
	return p, nil
}

func (s *LibSQLStore) ListProxies(ctx context.Context) ([]*Proxy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, server, username, password, created_at FROM proxies ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proxies []*Proxy
	for rows.Next() {
		p := &Proxy{}
		var label, username, password sql.NullString
		if err := rows.Scan(&p.ID, &label, &p.Server, &username, &password, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Label = label.String
		p.Username = username.String
		p.Password = password.String
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}

func (s *LibSQLStore) DeleteProxy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proxies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "proxy", id)
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	graph, err := json.Marshal(wf.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, graph, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, string(graph), timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	wf := &WorkflowRecord{}
	var graphJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, graph, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &graphJSON, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(graphJSON), &wf.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	graph, err := json.Marshal(wf.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, graph = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		wf.Name, string(graph), wf.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", wf.ID)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context) ([]*WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, graph, created_at, updated_at FROM workflows ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*WorkflowRecord
	for rows.Next() {
		wf := &WorkflowRecord{}
		var graphJSON string
		if err := rows.Scan(&wf.ID, &wf.Name, &graphJSON, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(graphJSON), &wf.Graph); err != nil {
			return nil, fmt.Errorf("unmarshal graph: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, e *Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, profile_id, status, variables, return_value, error_message, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkflowID, e.ProfileID, string(e.Status),
		nullRaw(e.Variables), nullRaw(e.ReturnValue), nullStr(e.ErrorMessage),
		timeOrNow(e.StartedAt), nullTime(e.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, profile_id, status, variables, return_value, error_message, started_at, completed_at
		 FROM executions WHERE id = ?`, id,
	)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Variables != nil {
		sets = append(sets, "variables = ?")
		args = append(args, string(update.Variables))
	}
	if update.ReturnValue != nil {
		sets = append(sets, "return_value = ?")
		args = append(args, string(update.ReturnValue))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullStr(*update.ErrorMessage))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.ProfileID != "" {
		where = append(where, "profile_id = ?")
		args = append(args, filter.ProfileID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, workflow_id, profile_id, status, variables, return_value, error_message, started_at, completed_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func scanExecution(row scanner) (*Execution, error) {
	e := &Execution{}
	var (
		status                            string
		variables, returnValue, errMsg    sql.NullString
		completedAt                       sql.NullTime
	)
	err := row.Scan(&e.ID, &e.WorkflowID, &e.ProfileID, &status,
		&variables, &returnValue, &errMsg, &e.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	e.Status = schema.RunStatus(status)
	e.Variables = rawOrNil(variables)
	e.ReturnValue = rawOrNil(returnValue)
	e.ErrorMessage = errMsg.String
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return e, nil
}

// --- Run events ---

func (s *LibSQLStore) AppendRunEvent(ctx context.Context, event *RunEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Next sequence number for this execution.
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (execution_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetRunEvents(ctx context.Context, executionID string, since int64) ([]*RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, node_id, event_type, payload, timestamp, sequence
		 FROM run_events WHERE execution_id = ? AND sequence > ? ORDER BY sequence ASC`,
		executionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*RunEvent
	for rows.Next() {
		e := &RunEvent{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Scheduled runs ---

func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, sr *ScheduledRun) error {
	concurrency := sr.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_runs (id, workflow_id, target_kind, target_id, cron_expression, concurrency, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.WorkflowID, sr.TargetKind, sr.TargetID, sr.CronExpression, concurrency,
		boolToInt(sr.Enabled), nullTime(sr.LastRunAt), nullTime(sr.NextRunAt), nullStr(sr.LastRunStatus),
		timeOrNow(sr.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, target_kind, target_id, cron_expression, concurrency, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_runs WHERE id = ?`, id,
	)
	sr, err := scanScheduledRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled run", id)
	}
	if err != nil {
		return nil, err
	}
	return sr, nil
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}

	query := `SELECT id, workflow_id, target_kind, target_id, cron_expression, concurrency, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScheduledRun
	for rows.Next() {
		sr, err := scanScheduledRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, sr)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func scanScheduledRun(row scanner) (*ScheduledRun, error) {
	sr := &ScheduledRun{}
	var (
		enabled              int
		lastRunAt, nextRunAt sql.NullTime
		lastRunStatus        sql.NullString
	)
	err := row.Scan(&sr.ID, &sr.WorkflowID, &sr.TargetKind, &sr.TargetID, &sr.CronExpression,
		&sr.Concurrency, &enabled, &lastRunAt, &nextRunAt, &lastRunStatus, &sr.CreatedAt)
	if err != nil {
		return nil, err
	}
	sr.Enabled = enabled != 0
	if lastRunAt.Valid {
		sr.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		sr.NextRunAt = &nextRunAt.Time
	}
	sr.LastRunStatus = lastRunStatus.String
	return sr, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.UmbraError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON value")
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
