// Package orchestrator drives workloads through their lifecycle:
// provisioning cloud infrastructure, deploying the workload's repo,
// exposing it at the edge and tearing everything back down.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/naming"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/provider"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
	"github.com/hatchery-io/hatchery/internal/tunnel"
)

// Store is the database surface the orchestrator drives.
type Store interface {
	GetWorkload(ctx context.Context, id string) (core.Workload, error)
	GetWorkloadBySlug(ctx context.Context, slug string) (core.Workload, error)
	UpdateWorkloadState(ctx context.Context, p store.UpdateWorkloadStateParams) error
	SetWorkloadKeys(ctx context.Context, p store.SetWorkloadKeysParams) error
	SetWorkloadServerIP(ctx context.Context, id, ip string) error
	SetWorkloadExposed(ctx context.Context, id string, exposed bool) error
	InsertAudit(ctx context.Context, p store.InsertAuditParams) (int64, error)
}

// Executor runs ordered remote commands; *remoteexec.Engine satisfies it.
type Executor interface {
	Exec(ctx context.Context, target remoteexec.Target, command string, opts remoteexec.ExecOpts) (*core.CommandExecution, error)
	WaitForSSH(ctx context.Context, target remoteexec.Target, timeout time.Duration) error
}

// Exposer manages edge exposure; *tunnel.Manager satisfies it. nil
// means exposure is not configured for this deployment.
type Exposer interface {
	Setup(ctx context.Context, slug, originService string) (*tunnel.Exposure, error)
	Teardown(ctx context.Context, slug string) error
}

// Providers resolves provider keys; *provider.Registry satisfies it.
type Providers interface {
	Get(key string) (provider.Provider, error)
	Keys() []string
}

type Provisioner struct {
	store     Store
	providers Providers
	engine    Executor
	exposer   Exposer
	scheme    *naming.Scheme
	cfg       Config
	log       *zap.Logger
}

func NewProvisioner(st Store, providers Providers, engine Executor, exposer Exposer, scheme *naming.Scheme, cfg Config, log *zap.Logger) *Provisioner {
	return &Provisioner{
		store:     st,
		providers: providers,
		engine:    engine,
		exposer:   exposer,
		scheme:    scheme,
		cfg:       cfg,
		log:       log,
	}
}

// SupportsSelfHostedDatabase reports whether the named provider's
// workloads can run their own database container. Unknown keys report
// false.
func (p *Provisioner) SupportsSelfHostedDatabase(key string) bool {
	prov, err := p.providers.Get(key)
	return err == nil && prov.SupportsSelfHostedDatabase()
}

// Provision takes a workload from PENDING to RUNNING (sandbox) or
// DEPLOYED (release). It is idempotent: a workload already up returns
// immediately, and every infrastructure step reuses an existing
// resource before creating one. On failure the workload stays in
// PROVISIONING; retry is an explicit caller decision, not an automatic
// sweep.
func (p *Provisioner) Provision(ctx context.Context, workloadID string) error {
	w, err := p.store.GetWorkload(ctx, workloadID)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}
	if w.State.IsUp() {
		p.log.Info("workload already up", zap.String("slug", w.Slug), zap.String("state", string(w.State)))
		return nil
	}
	if w.State.IsTerminal() {
		return core.NewAppError(core.ErrInvalidState,
			fmt.Sprintf("workload %s is destroyed and cannot be provisioned", w.Slug))
	}

	if err := p.transition(ctx, &w, core.WorkloadProvisioning); err != nil {
		return err
	}

	if !w.HasKeys() {
		kp, err := generateKeypair("hatchery-" + w.Slug)
		if err != nil {
			return err
		}
		if err := p.store.SetWorkloadKeys(ctx, store.SetWorkloadKeysParams{
			ID: w.ID, PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey,
		}); err != nil {
			return fmt.Errorf("persist keys: %w", err)
		}
		// Reload: a concurrent duplicate delivery may have won the
		// conditional write, and its keys are the ones on the row.
		if w, err = p.store.GetWorkload(ctx, w.ID); err != nil {
			return fmt.Errorf("reload workload: %w", err)
		}
	}

	prov, err := p.providers.Get(w.Provider)
	if err != nil {
		return err
	}
	if err := prov.Validate(); err != nil {
		return err
	}
	client, err := prov.Client()
	if err != nil {
		return err
	}

	srv, err := p.ensureInfra(ctx, client, w)
	if err != nil {
		return err
	}
	if srv.PublicIP != w.ServerIP {
		if err := p.store.SetWorkloadServerIP(ctx, w.ID, srv.PublicIP); err != nil {
			return fmt.Errorf("persist server ip: %w", err)
		}
		w.ServerIP = srv.PublicIP
	}

	target := p.target(w)
	step := time.Now()
	if err := p.engine.WaitForSSH(ctx, target, p.cfg.SSHWaitTimeout); err != nil {
		return err
	}
	observability.ProvisionStepDuration.WithLabelValues("ssh_wait").Observe(time.Since(step).Seconds())

	if err := p.syncRepo(ctx, target, w); err != nil {
		return err
	}
	if err := p.deploy(ctx, target, w); err != nil {
		return err
	}

	final := core.WorkloadRunning
	if w.Kind == core.KindRelease {
		final = core.WorkloadDeployed
	}
	if err := p.transition(ctx, &w, final); err != nil {
		return err
	}

	if w.Exposed {
		if err := p.applyExposure(ctx, target, w, true); err != nil {
			// Exposure is reconciled on the next toggle; the workload
			// itself is up.
			p.log.Warn("exposure setup failed after provision",
				zap.String("slug", w.Slug), zap.Error(err))
		}
	}

	p.audit(ctx, w, "workload.provisioned", nil)
	return nil
}

// ensureInfra creates or reuses every provider resource the workload
// needs and returns the booted server.
func (p *Provisioner) ensureInfra(ctx context.Context, client provider.Client, w core.Workload) (*provider.Server, error) {
	name, err := p.scheme.Resource(w.Slug)
	if err != nil {
		return nil, err
	}

	step := time.Now()
	key, err := client.GetSSHKeyByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if key == nil {
		if _, err := client.CreateSSHKey(ctx, name, w.SSHPublicKey); err != nil {
			return nil, err
		}
	}
	observability.ProvisionStepDuration.WithLabelValues("ssh_key").Observe(time.Since(step).Seconds())

	step = time.Now()
	fw, err := client.GetFirewallByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if fw == nil {
		if _, err := client.CreateFirewall(ctx, name, openPorts); err != nil {
			return nil, err
		}
	}
	observability.ProvisionStepDuration.WithLabelValues("firewall").Observe(time.Since(step).Seconds())

	step = time.Now()
	net, err := client.GetNetworkByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if net == nil {
		if net, err = client.CreateNetwork(ctx, name, p.cfg.NetworkRange); err != nil {
			return nil, err
		}
	}
	observability.ProvisionStepDuration.WithLabelValues("network").Observe(time.Since(step).Seconds())

	step = time.Now()
	srv, err := client.GetServerByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		userData, err := UserData(remoteexec.DefaultUser, w.SSHPublicKey)
		if err != nil {
			return nil, err
		}
		srv, err = client.CreateServer(ctx, provider.CreateServerOpts{
			Name:        name,
			ServerType:  p.cfg.ServerType,
			Image:       p.cfg.Image,
			Location:    p.cfg.Location,
			SSHKeyNames: []string{name},
			NetworkID:   net.ID,
			UserData:    userData,
			Labels:      map[string]string{"hatchery-slug": w.Slug, "hatchery-kind": string(w.Kind)},
		})
		if err != nil {
			return nil, err
		}
		p.log.Info("server created", zap.String("slug", w.Slug), zap.String("server_id", srv.ID))
	}
	srv, err = p.waitForServer(ctx, client, name)
	if err != nil {
		return nil, err
	}
	observability.ProvisionStepDuration.WithLabelValues("server").Observe(time.Since(step).Seconds())

	if p.cfg.VolumeSizeGB > 0 {
		step = time.Now()
		vol, err := client.GetVolumeByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if vol == nil {
			if _, err := client.CreateVolume(ctx, name, p.cfg.VolumeSizeGB, srv.ID); err != nil {
				return nil, err
			}
		}
		observability.ProvisionStepDuration.WithLabelValues("volume").Observe(time.Since(step).Seconds())
	}
	return srv, nil
}

// waitForServer polls until the server reports running with a public
// address.
func (p *Provisioner) waitForServer(ctx context.Context, client provider.Client, name string) (*provider.Server, error) {
	deadline := time.Now().Add(p.cfg.SSHWaitTimeout)
	for {
		srv, err := client.GetServerByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if srv == nil {
			return nil, core.NewAppError(core.ErrInternal, fmt.Sprintf("server %s vanished while booting", name))
		}
		if srv.Status == provider.ServerRunning && srv.PublicIP != "" {
			return srv, nil
		}
		if time.Now().After(deadline) {
			return nil, core.NewAppError(core.ErrConnectivity,
				fmt.Sprintf("server %s not running after %s (status %s)", name, p.cfg.SSHWaitTimeout, srv.Status))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (p *Provisioner) syncRepo(ctx context.Context, target remoteexec.Target, w core.Workload) error {
	branch := w.Branch
	if branch == "" {
		var err error
		if branch, err = p.scheme.Branch(w.Slug); err != nil {
			return err
		}
	}
	step := time.Now()
	check, err := p.engine.Exec(ctx, target, WorkspaceExistsCommand(p.cfg.Workdir),
		remoteexec.ExecOpts{WorkloadID: w.ID})
	if err != nil {
		return err
	}
	exec, err := p.engine.Exec(ctx, target, RepoSyncCommand(w.RepoURL, branch, p.cfg.Workdir, check.Success()),
		remoteexec.ExecOpts{WorkloadID: w.ID})
	if err != nil {
		return err
	}
	observability.ProvisionStepDuration.WithLabelValues("repo_sync").Observe(time.Since(step).Seconds())
	if exec.Failed() {
		return core.NewAppError(core.ErrInternal,
			fmt.Sprintf("repo sync exited %d on %s", *exec.ExitCode, w.Slug))
	}
	return nil
}

func (p *Provisioner) deploy(ctx context.Context, target remoteexec.Target, w core.Workload) error {
	step := time.Now()
	defer func() {
		observability.ProvisionStepDuration.WithLabelValues("deploy").Observe(time.Since(step).Seconds())
	}()

	switch w.Kind {
	case core.KindSandbox:
		override, err := ComposeOverrideYAML(w, nil)
		if err != nil {
			return err
		}
		overridePath := p.cfg.Workdir + "/docker-compose.hatchery.yml"
		for _, cmd := range []string{
			WriteFileCommand(overridePath, override),
			ComposeUpCommand(p.cfg.Workdir),
		} {
			exec, err := p.engine.Exec(ctx, target, cmd, remoteexec.ExecOpts{WorkloadID: w.ID})
			if err != nil {
				return err
			}
			if exec.Failed() {
				return core.NewAppError(core.ErrInternal,
					fmt.Sprintf("deploy step exited %d on %s", *exec.ExitCode, w.Slug))
			}
		}
		return nil

	case core.KindRelease:
		return p.runReleaseRollout(ctx, target, w)

	default:
		return core.NewAppError(core.ErrBadRequest, fmt.Sprintf("unknown workload kind %q", w.Kind))
	}
}

func (p *Provisioner) runReleaseRollout(ctx context.Context, target remoteexec.Target, w core.Workload) error {
	deployment, err := p.scheme.Resource(w.Slug)
	if err != nil {
		return err
	}
	for _, cmd := range ReleaseDeployCommands(w, p.cfg.Workdir, p.cfg.Registry, deployment) {
		exec, err := p.engine.Exec(ctx, target, cmd, remoteexec.ExecOpts{WorkloadID: w.ID})
		if err != nil {
			return err
		}
		if exec.Failed() {
			return core.NewAppError(core.ErrInternal,
				fmt.Sprintf("rollout step exited %d on %s: %s", *exec.ExitCode, w.Slug, cmd))
		}
	}
	return nil
}

// Redeploy rebuilds and rolls out a release that is already deployed.
// Sandboxes and never-deployed releases are rejected.
func (p *Provisioner) Redeploy(ctx context.Context, workloadID string) error {
	w, err := p.store.GetWorkload(ctx, workloadID)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}
	if w.Kind != core.KindRelease {
		return core.NewAppError(core.ErrInvalidState,
			fmt.Sprintf("workload %s is a %s; only releases redeploy", w.Slug, w.Kind))
	}
	if w.State != core.WorkloadDeployed {
		return core.NewAppError(core.ErrInvalidState,
			fmt.Sprintf("workload %s has never been deployed", w.Slug))
	}

	target := p.target(w)
	if err := p.syncRepo(ctx, target, w); err != nil {
		return err
	}
	if err := p.runReleaseRollout(ctx, target, w); err != nil {
		return err
	}
	p.audit(ctx, w, "workload.redeployed", nil)
	return nil
}

// Deprovision tears a workload down to DESTROYED. Only settled
// workloads can be destroyed; one mid-provision must finish or be
// retried first so infrastructure is never deleted under a writer.
func (p *Provisioner) Deprovision(ctx context.Context, workloadID string) error {
	w, err := p.store.GetWorkload(ctx, workloadID)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}
	if w.State.IsTerminal() {
		return nil
	}
	switch w.State {
	case core.WorkloadRunning, core.WorkloadDeployed, core.WorkloadStopped, core.WorkloadStopping:
	default:
		return core.NewAppError(core.ErrInvalidState,
			fmt.Sprintf("workload %s in state %s cannot be destroyed", w.Slug, w.State))
	}

	if err := p.transition(ctx, &w, core.WorkloadStopping); err != nil {
		return err
	}

	if w.Exposed && p.exposer != nil {
		if err := p.exposer.Teardown(ctx, w.Slug); err != nil {
			p.log.Warn("tunnel teardown failed", zap.String("slug", w.Slug), zap.Error(err))
		}
	}

	prov, err := p.providers.Get(w.Provider)
	if err != nil {
		return err
	}
	client, err := prov.Client()
	if err != nil {
		return err
	}
	name, err := p.scheme.Resource(w.Slug)
	if err != nil {
		return err
	}

	// Server first so nothing holds the volume or network.
	if err := client.DeleteServer(ctx, name); err != nil {
		return fmt.Errorf("delete server %s: %w", name, err)
	}
	if err := client.DeleteVolume(ctx, name); err != nil {
		p.log.Warn("volume delete failed", zap.String("name", name), zap.Error(err))
	}
	if err := client.DeleteFirewall(ctx, name); err != nil {
		p.log.Warn("firewall delete failed", zap.String("name", name), zap.Error(err))
	}
	if err := client.DeleteNetwork(ctx, name); err != nil {
		p.log.Warn("network delete failed", zap.String("name", name), zap.Error(err))
	}
	if err := client.DeleteSSHKey(ctx, name); err != nil {
		p.log.Warn("ssh key delete failed", zap.String("name", name), zap.Error(err))
	}

	if err := p.transition(ctx, &w, core.WorkloadDestroyed); err != nil {
		return err
	}
	p.audit(ctx, w, "workload.destroyed", nil)
	return nil
}

func (p *Provisioner) target(w core.Workload) remoteexec.Target {
	return remoteexec.Target{
		Host:          w.ServerIP,
		User:          remoteexec.DefaultUser,
		PrivateKeyPEM: w.SSHPrivateKey,
	}
}

func (p *Provisioner) transition(ctx context.Context, w *core.Workload, to core.WorkloadState) error {
	if err := p.store.UpdateWorkloadState(ctx, store.UpdateWorkloadStateParams{ID: w.ID, State: to}); err != nil {
		return fmt.Errorf("transition %s to %s: %w", w.Slug, to, err)
	}
	observability.WorkloadStateTransitions.WithLabelValues(string(w.State), string(to)).Inc()
	w.State = to
	return nil
}

func (p *Provisioner) audit(ctx context.Context, w core.Workload, action string, payload json.RawMessage) {
	_, err := p.store.InsertAudit(ctx, store.InsertAuditParams{
		WorkloadID: pgtype.Text{String: w.ID, Valid: true},
		Actor:      json.RawMessage(`{"type":"system","id":"orchestrator"}`),
		Action:     action,
		Payload:    payload,
	})
	if err != nil {
		p.log.Warn("audit insert failed", zap.String("action", action), zap.Error(err))
	}
}
