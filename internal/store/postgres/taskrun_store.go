package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/blogboost/ranktracker/internal/rank"
)

// TaskRunStore persists the audit trail of scheduled task executions.
//
// Schema (managed by the platform's migration pipeline):
//
//	CREATE TABLE task_runs (
//	    id              UUID        PRIMARY KEY,
//	    task_name       TEXT        NOT NULL,
//	    status          TEXT        NOT NULL,
//	    total_count     INT         NOT NULL DEFAULT 0,
//	    processed_count INT         NOT NULL DEFAULT 0,
//	    success_count   INT         NOT NULL DEFAULT 0,
//	    failed_count    INT         NOT NULL DEFAULT 0,
//	    started_at      TIMESTAMPTZ NOT NULL,
//	    completed_at    TIMESTAMPTZ,
//	    duration_ms     BIGINT,
//	    detail          JSONB,
//	    message         TEXT        NOT NULL DEFAULT ''
//	);
//	CREATE INDEX task_runs_latest ON task_runs (task_name, started_at DESC);
type TaskRunStore struct {
	pool pgxPool
}

// NewTaskRunStore constructs a store over an existing pool.
func NewTaskRunStore(pool pgxPool) *TaskRunStore {
	return &TaskRunStore{pool: pool}
}

// Begin records a freshly started run in RUNNING state.
func (s *TaskRunStore) Begin(ctx context.Context, run rank.TaskRun) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO task_runs (id, task_name, status, total_count, started_at, message)
VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Name, run.Status, run.Total, run.StartedAt, run.Message)
	if err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}
	return nil
}

// Finish moves the run to its terminal state in a single update. The
// failure detail is serialized as JSON; an empty list stores NULL.
func (s *TaskRunStore) Finish(ctx context.Context, run rank.TaskRun) error {
	var detail []byte
	if len(run.Failures) > 0 {
		b, err := json.Marshal(run.Failures)
		if err != nil {
			return fmt.Errorf("marshal failure detail: %w", err)
		}
		detail = b
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE task_runs
SET status = $2, total_count = $3, processed_count = $4, success_count = $5,
    failed_count = $6, completed_at = $7, duration_ms = $8, detail = $9, message = $10
WHERE id = $1`,
		run.ID, run.Status, run.Total, run.Processed, run.Succeeded, run.Failed,
		run.CompletedAt, run.DurationMs, detail, run.Message)
	if err != nil {
		return fmt.Errorf("update task run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rank.ErrTaskRunNotFound
	}
	return nil
}

const selectTaskRunSQL = `
SELECT id, task_name, status, total_count, processed_count, success_count,
       failed_count, started_at, completed_at, duration_ms, detail, message
FROM task_runs`

// Latest returns the most recently started run of the named task, or
// rank.ErrTaskRunNotFound.
func (s *TaskRunStore) Latest(ctx context.Context, name string) (rank.TaskRun, error) {
	var (
		run    rank.TaskRun
		detail []byte
	)
	err := s.pool.QueryRow(ctx, selectTaskRunSQL+` WHERE task_name = $1 ORDER BY started_at DESC LIMIT 1`, name).
		Scan(&run.ID, &run.Name, &run.Status, &run.Total, &run.Processed,
			&run.Succeeded, &run.Failed, &run.StartedAt, &run.CompletedAt,
			&run.DurationMs, &detail, &run.Message)
	if errors.Is(err, pgx.ErrNoRows) {
		return rank.TaskRun{}, rank.ErrTaskRunNotFound
	}
	if err != nil {
		return rank.TaskRun{}, fmt.Errorf("select task run: %w", err)
	}
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &run.Failures); err != nil {
			return rank.TaskRun{}, fmt.Errorf("decode failure detail: %w", err)
		}
	}
	return run, nil
}
