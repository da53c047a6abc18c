// Package sched runs the recurring maintenance tasks: the daily rank
// collection sweep and the billing batch jobs. Every invocation is
// wrapped in a persistent audit record so operators can inspect the
// latest outcome per task.
package sched

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
)

// Task names recorded in the audit log.
const (
	TaskRankCollection      = "rank_collection"
	TaskSubscriptionRenewal = "subscription_renewal"
	TaskPaymentRetry        = "payment_retry"
)

// ErrUnknownTask means the task name matches no registered task.
var ErrUnknownTask = errors.New("unknown task")

// Known reports whether name is a registered task.
func Known(name string) bool {
	switch name {
	case TaskRankCollection, TaskSubscriptionRenewal, TaskPaymentRetry:
		return true
	}
	return false
}

// TaskNames lists the registered task names.
func TaskNames() []string {
	return []string{TaskRankCollection, TaskSubscriptionRenewal, TaskPaymentRetry}
}

// Item is one unit of work inside a batch run.
type Item struct {
	Label string
	Do    func(ctx context.Context) error
}

// Runner executes a batch under the audit frame: a RUNNING record up
// front, per-item fault isolation, and a single terminal update. An item
// failure never aborts the batch; a setup failure marks the run FAILED
// and is returned to the caller.
type Runner struct {
	runs   rank.TaskRunStore
	ids    rank.IDGenerator
	clock  rank.Clock
	logger *zap.Logger
}

// NewRunner builds a Runner over the given audit store.
func NewRunner(runs rank.TaskRunStore, ids rank.IDGenerator, clock rank.Clock, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{runs: runs, ids: ids, clock: clock, logger: logger}
}

// Run executes one audited batch. setup produces the work list; its
// error is recorded and re-raised. Item errors are collected into the
// run's failure detail and the run ends PARTIAL instead of COMPLETED.
func (r *Runner) Run(ctx context.Context, name string, setup func(ctx context.Context) ([]Item, error)) (rank.TaskRun, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return rank.TaskRun{}, fmt.Errorf("allocate run id: %w", err)
	}
	run := rank.TaskRun{ID: id, Name: name, Status: rank.TaskRunning, StartedAt: r.clock.Now()}

	items, err := setup(ctx)
	if err != nil {
		run.Status = rank.TaskFailed
		run.Message = err.Error()
		r.record(ctx, &run, false)
		return run, fmt.Errorf("%s setup: %w", name, err)
	}

	run.Total = len(items)
	if err := r.runs.Begin(ctx, run); err != nil {
		return run, fmt.Errorf("begin %s run: %w", name, err)
	}
	r.logger.Info("task started",
		zap.String("task", name), zap.String("run_id", run.ID), zap.Int("total", run.Total))

	for _, item := range items {
		run.Processed++
		if err := item.Do(ctx); err != nil {
			run.Failed++
			run.Failures = append(run.Failures, rank.ItemFailure{Item: item.Label, Error: err.Error()})
			r.logger.Warn("task item failed",
				zap.String("task", name), zap.String("item", item.Label), zap.Error(err))
			continue
		}
		run.Succeeded++
	}

	run.Status = rank.TaskCompleted
	if run.Failed > 0 {
		run.Status = rank.TaskPartial
	}
	r.record(ctx, &run, true)
	r.logger.Info("task finished",
		zap.String("task", name),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed))
	return run, nil
}

// record stamps the terminal fields and persists them. Setup failures
// arrive with began=false and need the insert as well as the update.
func (r *Runner) record(ctx context.Context, run *rank.TaskRun, began bool) {
	now := r.clock.Now()
	elapsed := now.Sub(run.StartedAt)
	ms := elapsed.Milliseconds()
	run.CompletedAt = &now
	run.DurationMs = &ms

	if !began {
		if err := r.runs.Begin(ctx, *run); err != nil {
			r.logger.Error("record task run", zap.String("task", run.Name), zap.Error(err))
			return
		}
	}
	if err := r.runs.Finish(ctx, *run); err != nil {
		r.logger.Error("finish task run", zap.String("task", run.Name), zap.Error(err))
	}
	metrics.ObserveTaskRun(run.Name, string(run.Status), elapsed)
}

// Latest returns the most recent audit record for the task.
func (r *Runner) Latest(ctx context.Context, name string) (rank.TaskRun, error) {
	return r.runs.Latest(ctx, name)
}
