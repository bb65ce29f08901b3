package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hatchery-io/hatchery/internal/core"
)

const executionCols = `id, workload_id, session_id, command, kind, exit_code, started_at, finished_at`

func scanExecution(row interface{ Scan(dest ...any) error }) (core.CommandExecution, error) {
	var e core.CommandExecution
	var sessionID pgtype.Text
	var exitCode pgtype.Int4
	var finished pgtype.Timestamptz
	err := row.Scan(&e.ID, &e.WorkloadID, &sessionID, &e.Command, &e.Kind,
		&exitCode, &e.StartedAt, &finished)
	if err != nil {
		return e, err
	}
	e.SessionID = textOrNil(sessionID)
	if exitCode.Valid {
		code := int(exitCode.Int32)
		e.ExitCode = &code
	}
	if finished.Valid {
		e.FinishedAt = &finished.Time
	}
	return e, nil
}

type CreateExecutionParams struct {
	ID         string
	WorkloadID string
	SessionID  *string
	Command    string
	Kind       core.ExecutionKind
}

func (q *Queries) CreateExecution(ctx context.Context, p CreateExecutionParams) (core.CommandExecution, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO hatchery.command_executions (id, workload_id, session_id, command, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+executionCols,
		p.ID, p.WorkloadID, textFrom(p.SessionID), p.Command, p.Kind)
	return scanExecution(row)
}

func (q *Queries) GetExecution(ctx context.Context, id string) (core.CommandExecution, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+executionCols+` FROM hatchery.command_executions WHERE id = $1`, id)
	return scanExecution(row)
}

type FinishExecutionParams struct {
	ID       string
	ExitCode int
}

// FinishExecution records the terminal exit code. Every execution ends
// here, including killed or timed-out processes, so none is left
// open-ended.
func (q *Queries) FinishExecution(ctx context.Context, p FinishExecutionParams) (core.CommandExecution, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE hatchery.command_executions
		SET exit_code = $2, finished_at = now()
		WHERE id = $1
		RETURNING `+executionCols,
		p.ID, p.ExitCode)
	return scanExecution(row)
}

type AppendLogParams struct {
	ExecutionID string
	LineNumber  int
	Stream      core.LogStream
	Content     string
}

// AppendLog persists one ordered line. The (execution_id, line_number)
// primary key enforces the no-duplicates half of the ordering contract;
// the engine is the single writer that assigns numbers.
func (q *Queries) AppendLog(ctx context.Context, p AppendLogParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO hatchery.command_logs (execution_id, line_number, stream, content)
		VALUES ($1, $2, $3, $4)`,
		p.ExecutionID, p.LineNumber, p.Stream, p.Content)
	return err
}

func (q *Queries) ListLogs(ctx context.Context, executionID string) ([]core.CommandLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT execution_id, line_number, stream, content
		FROM hatchery.command_logs
		WHERE execution_id = $1
		ORDER BY line_number`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CommandLog
	for rows.Next() {
		var l core.CommandLog
		if err := rows.Scan(&l.ExecutionID, &l.LineNumber, &l.Stream, &l.Content); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type ListExecutionsParams struct {
	WorkloadID string
	Limit      int32
}

func (q *Queries) ListExecutions(ctx context.Context, p ListExecutionsParams) ([]core.CommandExecution, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+executionCols+` FROM hatchery.command_executions
		WHERE workload_id = $1
		ORDER BY started_at DESC LIMIT $2`, p.WorkloadID, p.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CommandExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSessionSuccesses returns how many agent turns of a session
// finished with exit code 0. Auxiliary executions linked to the
// session, like diff captures, do not count. A session is resumable
// iff this is > 0.
func (q *Queries) CountSessionSuccesses(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM hatchery.command_executions
		WHERE session_id = $1 AND kind = $2 AND exit_code = 0`,
		sessionID, core.ExecKindClaude).Scan(&n)
	return n, err
}
