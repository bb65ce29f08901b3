package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
)

// SetExposed toggles public exposure. Without tunnel credentials the
// call fails and the stored flag is untouched. For a workload that is
// not up yet, only the desired-state flag is recorded; provisioning
// applies it when the workload comes up.
func (p *Provisioner) SetExposed(ctx context.Context, workloadID string, desired bool) (core.Workload, error) {
	w, err := p.store.GetWorkload(ctx, workloadID)
	if err != nil {
		return w, fmt.Errorf("load workload: %w", err)
	}
	if w.Exposed == desired {
		return w, nil
	}
	if p.exposer == nil {
		return w, core.NewAppError(core.ErrConfiguration,
			"exposure requires tunnel credentials, which are not configured")
	}

	if !w.State.IsUp() {
		if err := p.store.SetWorkloadExposed(ctx, w.ID, desired); err != nil {
			return w, fmt.Errorf("persist exposed flag: %w", err)
		}
		w.Exposed = desired
		p.log.Info("exposure recorded for later",
			zap.String("slug", w.Slug), zap.Bool("desired", desired))
		return w, nil
	}

	if err := p.applyExposure(ctx, p.target(w), w, desired); err != nil {
		return w, err
	}
	if err := p.store.SetWorkloadExposed(ctx, w.ID, desired); err != nil {
		return w, fmt.Errorf("persist exposed flag: %w", err)
	}
	w.Exposed = desired
	p.audit(ctx, w, "workload.exposure_changed", nil)
	return w, nil
}

// applyExposure makes the edge match the desired flag for an up
// workload: tunnel plus connector when exposing, teardown when hiding.
func (p *Provisioner) applyExposure(ctx context.Context, target remoteexec.Target, w core.Workload, desired bool) error {
	if p.exposer == nil {
		return core.NewAppError(core.ErrConfiguration, "tunnel credentials are not configured")
	}
	connector, err := p.scheme.Container(w.Slug, "cloudflared")
	if err != nil {
		return err
	}
	if !desired {
		if err := p.exposer.Teardown(ctx, w.Slug); err != nil {
			return err
		}
		_, err := p.engine.Exec(ctx, target,
			fmt.Sprintf("docker rm -f %s 2>/dev/null || true", remoteexec.SingleQuote(connector)),
			remoteexec.ExecOpts{WorkloadID: w.ID})
		return err
	}

	exp, err := p.exposer.Setup(ctx, w.Slug, p.cfg.OriginService)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(
		"docker rm -f %[1]s 2>/dev/null; "+
			"docker run -d --name %[1]s --network host --restart unless-stopped "+
			"cloudflare/cloudflared:latest tunnel run --token %[2]s",
		remoteexec.SingleQuote(connector), remoteexec.SingleQuote(exp.Token))
	exec, err := p.engine.Exec(ctx, target, cmd, remoteexec.ExecOpts{WorkloadID: w.ID})
	if err != nil {
		return err
	}
	if exec.Failed() {
		return core.NewAppError(core.ErrInternal,
			fmt.Sprintf("tunnel connector exited %d on %s", *exec.ExitCode, w.Slug))
	}
	p.log.Info("workload exposed", zap.String("slug", w.Slug), zap.String("hostname", exp.Hostname))
	return nil
}
