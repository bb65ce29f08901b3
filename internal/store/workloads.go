package store

import (
	"context"

	"github.com/hatchery-io/hatchery/internal/core"
)

const workloadCols = `id, slug, kind, state, exposed, provider, repo_url, branch,
	server_ip, ssh_public_key, ssh_private_key, created_at, updated_at`

func scanWorkload(row interface{ Scan(dest ...any) error }) (core.Workload, error) {
	var w core.Workload
	err := row.Scan(&w.ID, &w.Slug, &w.Kind, &w.State, &w.Exposed, &w.Provider,
		&w.RepoURL, &w.Branch, &w.ServerIP, &w.SSHPublicKey, &w.SSHPrivateKey,
		&w.CreatedAt, &w.UpdatedAt)
	return w, err
}

type CreateWorkloadParams struct {
	ID       string
	Slug     string
	Kind     core.WorkloadKind
	Provider string
	RepoURL  string
	Branch   string
}

func (q *Queries) CreateWorkload(ctx context.Context, p CreateWorkloadParams) (core.Workload, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO hatchery.workloads (id, slug, kind, provider, repo_url, branch)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+workloadCols,
		p.ID, p.Slug, p.Kind, p.Provider, p.RepoURL, p.Branch)
	return scanWorkload(row)
}

func (q *Queries) GetWorkload(ctx context.Context, id string) (core.Workload, error) {
	row := q.db.QueryRow(ctx, `SELECT `+workloadCols+` FROM hatchery.workloads WHERE id = $1`, id)
	return scanWorkload(row)
}

func (q *Queries) GetWorkloadBySlug(ctx context.Context, slug string) (core.Workload, error) {
	row := q.db.QueryRow(ctx, `SELECT `+workloadCols+` FROM hatchery.workloads WHERE slug = $1`, slug)
	return scanWorkload(row)
}

type ListWorkloadsParams struct {
	Limit int32
}

func (q *Queries) ListWorkloads(ctx context.Context, p ListWorkloadsParams) ([]core.Workload, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+workloadCols+` FROM hatchery.workloads
		ORDER BY created_at DESC LIMIT $1`, p.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Workload
	for rows.Next() {
		w, err := scanWorkload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type UpdateWorkloadStateParams struct {
	ID    string
	State core.WorkloadState
}

func (q *Queries) UpdateWorkloadState(ctx context.Context, p UpdateWorkloadStateParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.workloads SET state = $2, updated_at = now() WHERE id = $1`,
		p.ID, p.State)
	return err
}

type SetWorkloadKeysParams struct {
	ID         string
	PublicKey  string
	PrivateKey string
}

// SetWorkloadKeys writes the generated keypair, but only if no keys are
// present yet. Keys are never regenerated while present.
func (q *Queries) SetWorkloadKeys(ctx context.Context, p SetWorkloadKeysParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.workloads
		SET ssh_public_key = $2, ssh_private_key = $3, updated_at = now()
		WHERE id = $1 AND ssh_public_key = ''`,
		p.ID, p.PublicKey, p.PrivateKey)
	return err
}

func (q *Queries) SetWorkloadServerIP(ctx context.Context, id, ip string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.workloads SET server_ip = $2, updated_at = now() WHERE id = $1`,
		id, ip)
	return err
}

func (q *Queries) SetWorkloadExposed(ctx context.Context, id string, exposed bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE hatchery.workloads SET exposed = $2, updated_at = now() WHERE id = $1`,
		id, exposed)
	return err
}
