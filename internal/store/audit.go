package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
)

type InsertAuditParams struct {
	WorkloadID pgtype.Text
	Actor      json.RawMessage
	Action     string
	RequestID  pgtype.Text
	TaskID     pgtype.Text
	Payload    json.RawMessage
}

func (q *Queries) InsertAudit(ctx context.Context, p InsertAuditParams) (int64, error) {
	if p.Payload == nil {
		p.Payload = json.RawMessage(`{}`)
	}
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO hatchery.audit_events (workload_id, actor, action, request_id, task_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING event_id`,
		p.WorkloadID, p.Actor, p.Action, p.RequestID, p.TaskID, p.Payload).Scan(&id)
	return id, err
}
