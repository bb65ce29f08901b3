package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hatchery-io/hatchery/internal/core"
)

const sessionCols = `id, workload_id, session_uuid, diff, created_at, updated_at`

func scanSession(row interface{ Scan(dest ...any) error }) (core.Session, error) {
	var s core.Session
	var diff pgtype.Text
	err := row.Scan(&s.ID, &s.WorkloadID, &s.SessionUUID, &diff, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.Diff = textOrNil(diff)
	return s, nil
}

type CreateSessionParams struct {
	ID          string
	WorkloadID  string
	SessionUUID string
}

func (q *Queries) CreateSession(ctx context.Context, p CreateSessionParams) (core.Session, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO hatchery.ai_sessions (id, workload_id, session_uuid)
		VALUES ($1, $2, $3)
		RETURNING `+sessionCols,
		p.ID, p.WorkloadID, p.SessionUUID)
	return scanSession(row)
}

func (q *Queries) GetSession(ctx context.Context, id string) (core.Session, error) {
	row := q.db.QueryRow(ctx, `SELECT `+sessionCols+` FROM hatchery.ai_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (q *Queries) ListSessions(ctx context.Context, workloadID string) ([]core.Session, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+sessionCols+` FROM hatchery.ai_sessions
		WHERE workload_id = $1 ORDER BY created_at DESC`, workloadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetSessionDiff overwrites the session's captured diff. nil clears it;
// an empty diff is stored as absent, not as an empty string.
func (q *Queries) SetSessionDiff(ctx context.Context, id string, diff *string) error {
	if diff != nil && *diff == "" {
		diff = nil
	}
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.ai_sessions SET diff = $2, updated_at = now() WHERE id = $1`,
		id, textFrom(diff))
	return err
}
