package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soteldo/umbra/internal/store"
	"github.com/soteldo/umbra/pkg/schema"
)

// WorkflowRunner is the interface the scheduler uses to dispatch runs.
// Satisfied by the engine orchestrator (avoids import cycle).
type WorkflowRunner interface {
	RunOnProfile(ctx context.Context, userID, workflowID, profileID string, vars map[string]any) (*schema.ExecutionResult, error)
	RunOnGroup(ctx context.Context, userID, workflowID, groupID string, vars map[string]any, concurrency int) ([]*schema.ExecutionResult, error)
}

// schedulerUser is the caller identity stamped on runs the scheduler
// dispatches on its own behalf.
const schedulerUser = "scheduler"

// Scheduler polls the store for due scheduled runs and dispatches them.
type Scheduler struct {
	store  store.Store
	runner WorkflowRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // scheduled-run IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled scheduled runs and dispatches those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	runs, err := s.store.ListScheduledRuns(ctx, store.ScheduledRunFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled runs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sr := range runs {
		if sr.NextRunAt == nil || !sr.NextRunAt.After(now) {
			if !s.tryAcquire(sr.ID) {
				continue // already running (dedup)
			}
			if err := s.dispatch(ctx, sr, now); err != nil {
				s.logger.Error("failed to dispatch scheduled run",
					slog.String("scheduled_run_id", sr.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(sr.ID)
		}
	}
}

// dispatch runs one scheduled run against its target and updates timestamps.
func (s *Scheduler) dispatch(ctx context.Context, sr *store.ScheduledRun, now time.Time) error {
	s.logger.Info("running scheduled run",
		slog.String("scheduled_run_id", sr.ID),
		slog.String("workflow_id", sr.WorkflowID),
		slog.String("target_kind", sr.TargetKind),
		slog.String("target_id", sr.TargetID),
	)

	var err error
	switch sr.TargetKind {
	case store.TargetProfile:
		_, err = s.runner.RunOnProfile(ctx, schedulerUser, sr.WorkflowID, sr.TargetID, nil)
	case store.TargetGroup:
		_, err = s.runner.RunOnGroup(ctx, schedulerUser, sr.WorkflowID, sr.TargetID, nil, sr.Concurrency)
	default:
		err = fmt.Errorf("unknown target kind %q", sr.TargetKind)
	}

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled run failed",
			slog.String("scheduled_run_id", sr.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.updateStatus(ctx, sr, now, status)
}

func (s *Scheduler) updateStatus(ctx context.Context, sr *store.ScheduledRun, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(sr.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for scheduled run %q: %w", sr.ID, err)
	}

	return s.store.UpdateScheduledRun(ctx, sr.ID, store.ScheduledRunUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
	})
}

// tryAcquire returns true and marks the run as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the run from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next fire time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed finds enabled runs whose next_run_at is already past and
// dispatches them once at startup.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	runs, err := s.store.ListScheduledRuns(ctx, store.ScheduledRunFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed scheduled runs: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sr := range runs {
		if sr.NextRunAt != nil && sr.NextRunAt.Before(now) {
			if !s.tryAcquire(sr.ID) {
				continue
			}
			if err := s.dispatch(ctx, sr, now); err != nil {
				s.logger.Error("failed to recover missed scheduled run",
					slog.String("scheduled_run_id", sr.ID),
					slog.String("error", err.Error()),
				)
				s.release(sr.ID)
				continue
			}
			s.release(sr.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed scheduled runs", slog.Int("count", recovered))
	}
	return nil
}
