package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hatchery-io/hatchery/internal/core"
)

const taskCols = `task_id, workload_id, op, status, created_at, started_at, ended_at,
	attempt, max_attempts, next_run_at, timeout_seconds, cancel_requested, params, error`

func scanTask(row interface{ Scan(dest ...any) error }) (core.Task, error) {
	var t core.Task
	var started, ended pgtype.Timestamptz
	err := row.Scan(&t.TaskID, &t.WorkloadID, &t.Op, &t.Status, &t.CreatedAt,
		&started, &ended, &t.Attempt, &t.MaxAttempts, &t.NextRunAt,
		&t.TimeoutSeconds, &t.CancelRequested, &t.Params, &t.Error)
	if err != nil {
		return t, err
	}
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if ended.Valid {
		t.EndedAt = &ended.Time
	}
	return t, nil
}

type CreateTaskParams struct {
	TaskID         string
	WorkloadID     string
	Op             core.TaskOp
	Params         json.RawMessage
	MaxAttempts    int
	TimeoutSeconds int
}

func (q *Queries) CreateTask(ctx context.Context, p CreateTaskParams) (core.Task, error) {
	if p.Params == nil {
		p.Params = json.RawMessage(`{}`)
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO hatchery.tasks (task_id, workload_id, op, params, max_attempts, timeout_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskCols,
		p.TaskID, p.WorkloadID, p.Op, p.Params, p.MaxAttempts, p.TimeoutSeconds)
	return scanTask(row)
}

func (q *Queries) GetTask(ctx context.Context, taskID string) (core.Task, error) {
	row := q.db.QueryRow(ctx, `SELECT `+taskCols+` FROM hatchery.tasks WHERE task_id = $1`, taskID)
	return scanTask(row)
}

// DequeueTask claims the oldest runnable task. SKIP LOCKED keeps
// multiple workers from claiming the same row.
func (q *Queries) DequeueTask(ctx context.Context) (core.Task, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE hatchery.tasks
		SET status = 'RUNNING', started_at = now(), attempt = attempt + 1
		WHERE task_id = (
			SELECT task_id FROM hatchery.tasks
			WHERE status IN ('PENDING', 'FAILED') AND next_run_at <= now()
			ORDER BY next_run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskCols)
	return scanTask(row)
}

type CompleteTaskParams struct {
	TaskID string
	Status core.TaskStatus
	Error  json.RawMessage
}

func (q *Queries) CompleteTask(ctx context.Context, p CompleteTaskParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.tasks SET status = $2, error = $3, ended_at = now()
		WHERE task_id = $1`,
		p.TaskID, p.Status, p.Error)
	return err
}

type FailTaskParams struct {
	TaskID  string
	Error   json.RawMessage
	Backoff time.Duration
}

// FailTask marks a task FAILED and schedules the retry.
func (q *Queries) FailTask(ctx context.Context, p FailTaskParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.tasks
		SET status = 'FAILED', error = $2, ended_at = now(),
		    next_run_at = now() + make_interval(secs => $3)
		WHERE task_id = $1`,
		p.TaskID, p.Error, p.Backoff.Seconds())
	return err
}

type MarkTaskDeadParams struct {
	TaskID string
	Error  json.RawMessage
}

func (q *Queries) MarkTaskDead(ctx context.Context, p MarkTaskDeadParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.tasks SET status = 'DEAD', error = $2, ended_at = now()
		WHERE task_id = $1`,
		p.TaskID, p.Error)
	return err
}

func (q *Queries) CancelTask(ctx context.Context, taskID string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.tasks SET cancel_requested = true WHERE task_id = $1`, taskID)
	return err
}

func (q *Queries) GetQueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM hatchery.tasks
		WHERE status = 'PENDING' OR (status = 'FAILED' AND attempt < max_attempts)`).Scan(&n)
	return n, err
}

func (q *Queries) CountActiveTasks(ctx context.Context, workloadID string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM hatchery.tasks
		WHERE workload_id = $1 AND status IN ('PENDING', 'RUNNING')`, workloadID).Scan(&n)
	return n, err
}

type ListTasksParams struct {
	WorkloadID string
	Limit      int32
}

func (q *Queries) ListTasks(ctx context.Context, p ListTasksParams) ([]core.Task, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+taskCols+` FROM hatchery.tasks
		WHERE ($1 = '' OR workload_id = $1)
		ORDER BY created_at DESC LIMIT $2`, p.WorkloadID, p.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
