package orchestrator

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
)

// Orphan is a provider resource named by our scheme whose workload row
// is gone or already destroyed. Orphans are reported, never deleted
// automatically: the sweep has no way to know whether a human is mid
// investigation on the host.
type Orphan struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Reason   string `json:"reason"`
}

// DetectOrphans lists every server under each configured provider and
// reports the ones that carry our naming scheme but no live workload.
// Foreign servers are ignored entirely.
func (p *Provisioner) DetectOrphans(ctx context.Context) ([]Orphan, error) {
	var orphans []Orphan
	for _, key := range p.providers.Keys() {
		prov, err := p.providers.Get(key)
		if err != nil {
			return nil, err
		}
		if err := prov.Validate(); err != nil {
			// Unconfigured providers have no servers to sweep.
			continue
		}
		if !prov.VMBased() {
			// No server inventory to enumerate.
			continue
		}
		client, err := prov.Client()
		if err != nil {
			return nil, err
		}
		servers, err := client.ListServers(ctx)
		if err != nil {
			return nil, err
		}

		for _, srv := range servers {
			if !p.scheme.Owns(srv.Name) {
				continue
			}
			slug, err := p.scheme.ExtractSlug(srv.Name)
			if err != nil {
				continue
			}
			w, err := p.store.GetWorkloadBySlug(ctx, slug)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				orphans = append(orphans, Orphan{
					Provider: key, Name: srv.Name, Slug: slug, Reason: "no workload row",
				})
			case err != nil:
				return nil, err
			case w.State == core.WorkloadDestroyed:
				orphans = append(orphans, Orphan{
					Provider: key, Name: srv.Name, Slug: slug, Reason: "workload destroyed",
				})
			}
		}
	}
	if len(orphans) > 0 {
		p.log.Warn("orphaned servers detected", zap.Int("count", len(orphans)))
	}
	return orphans, nil
}
