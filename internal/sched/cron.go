package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Specs holds the cron expressions for the recurring tasks. An empty
// spec leaves that task manual-only.
type Specs struct {
	Collection string
	Renewal    string
	Payment    string
}

// Scheduler drives the tasks on cron schedules and serves manual
// triggers. A task never runs concurrently with itself: overlapping
// ticks and triggers are skipped, not queued.
type Scheduler struct {
	tasks  *Tasks
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewScheduler registers the cron entries. Start must be called before
// any entry fires; manual triggers work without Start.
func NewScheduler(tasks *Tasks, specs Specs, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		tasks:   tasks,
		cron:    cron.New(),
		logger:  logger,
		running: make(map[string]bool),
	}

	entries := []struct{ spec, name string }{
		{specs.Collection, TaskRankCollection},
		{specs.Renewal, TaskSubscriptionRenewal},
		{specs.Payment, TaskPaymentRetry},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		name := e.name
		if _, err := s.cron.AddFunc(e.spec, func() { s.runScheduled(name) }); err != nil {
			return nil, fmt.Errorf("register %s schedule: %w", name, err)
		}
	}
	return s, nil
}

// Start begins firing cron entries.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop halts the cron loop and waits for in-flight entries to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes the named task synchronously under the same overlap
// guard as the cron entries. started is false when the task was already
// running and nothing was done.
func (s *Scheduler) RunNow(ctx context.Context, name string) (run rank.TaskRun, started bool, err error) {
	if !Known(name) {
		return rank.TaskRun{}, false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if !s.tryAcquire(name) {
		return rank.TaskRun{}, false, nil
	}
	defer s.release(name)

	run, err = s.tasks.Run(ctx, name)
	return run, true, err
}

// Launch fires the named task in the background. started is false when
// the task was already running.
func (s *Scheduler) Launch(name string) (started bool, err error) {
	if !Known(name) {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if !s.tryAcquire(name) {
		return false, nil
	}
	go func() {
		defer s.release(name)
		if _, err := s.tasks.Run(context.Background(), name); err != nil {
			s.logger.Error("task run failed", zap.String("task", name), zap.Error(err))
		}
	}()
	return true, nil
}

// Latest returns the newest audit record for the named task.
func (s *Scheduler) Latest(ctx context.Context, name string) (rank.TaskRun, error) {
	return s.tasks.Latest(ctx, name)
}

func (s *Scheduler) runScheduled(name string) {
	if !s.tryAcquire(name) {
		s.logger.Warn("skipping scheduled run, previous run still in progress",
			zap.String("task", name))
		return
	}
	defer s.release(name)

	if _, err := s.tasks.Run(context.Background(), name); err != nil {
		s.logger.Error("scheduled run failed", zap.String("task", name), zap.Error(err))
	}
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}
