// Package tunnel exposes a workload to the public internet through a
// named Cloudflare tunnel, a DNS record and an edge worker that guards
// and decorates the proxied page.
package tunnel

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/naming"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/provider"
)

// edgeAPI is the slice of the Cloudflare client the manager calls.
// *cloudflare.API satisfies it; name the methods, not the SDK, so
// tests can run without an account.
type edgeAPI interface {
	CreateTunnel(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.TunnelCreateParams) (cloudflare.Tunnel, error)
	ListTunnels(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.TunnelListParams) ([]cloudflare.Tunnel, *cloudflare.ResultInfo, error)
	DeleteTunnel(ctx context.Context, rc *cloudflare.ResourceContainer, tunnelID string) error
	CleanupTunnelConnections(ctx context.Context, rc *cloudflare.ResourceContainer, tunnelID string) error
	GetTunnelToken(ctx context.Context, rc *cloudflare.ResourceContainer, tunnelID string) (string, error)
	UpdateTunnelConfiguration(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.TunnelConfigurationParams) (cloudflare.TunnelConfigurationResult, error)

	CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error)
	DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, recordID string) error

	UploadWorker(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateWorkerParams) (cloudflare.WorkerScriptResponse, error)
	DeleteWorker(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.DeleteWorkerParams) error
	CreateWorkerRoute(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateWorkerRouteParams) (cloudflare.WorkerRouteResponse, error)
	ListWorkerRoutes(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListWorkerRoutesParams) (cloudflare.WorkerRoutesResponse, error)
	DeleteWorkerRoute(ctx context.Context, rc *cloudflare.ResourceContainer, routeID string) (cloudflare.WorkerRouteResponse, error)
}

type Manager struct {
	api    edgeAPI
	cfg    provider.TunnelConfig
	scheme *naming.Scheme
	log    *zap.Logger
}

// Exposure is what the provisioner needs to finish wiring a tunnel on
// the workload host.
type Exposure struct {
	TunnelID string
	Token    string
	Hostname string
}

func NewManager(cfg provider.TunnelConfig, scheme *naming.Scheme, log *zap.Logger) (*Manager, error) {
	if !cfg.Configured() {
		return nil, core.NewAppError(core.ErrConfiguration, "tunnel credentials are not configured")
	}
	api, err := cloudflare.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, core.NewAppError(core.ErrConfiguration, fmt.Sprintf("cloudflare client: %v", err))
	}
	return &Manager{api: api, cfg: cfg, scheme: scheme, log: log}, nil
}

func (m *Manager) account() *cloudflare.ResourceContainer {
	return cloudflare.AccountIdentifier(m.cfg.AccountID)
}

func (m *Manager) zone() *cloudflare.ResourceContainer {
	return cloudflare.ZoneIdentifier(m.cfg.ZoneID)
}

// Setup makes the workload reachable at its derived hostname. It is
// idempotent: an existing tunnel with the derived name is reused, and
// DNS and worker artifacts are replaced rather than duplicated.
func (m *Manager) Setup(ctx context.Context, slug, originService string) (*Exposure, error) {
	exp, err := m.setup(ctx, slug, originService)
	if err != nil {
		observability.TunnelOpTotal.WithLabelValues("setup", "error").Inc()
		return nil, err
	}
	observability.TunnelOpTotal.WithLabelValues("setup", "ok").Inc()
	return exp, nil
}

func (m *Manager) setup(ctx context.Context, slug, originService string) (*Exposure, error) {
	name, err := m.scheme.Resource(slug)
	if err != nil {
		return nil, err
	}
	hostname, err := m.scheme.Hostname(slug)
	if err != nil {
		return nil, err
	}
	workerName, err := m.scheme.Worker(slug)
	if err != nil {
		return nil, err
	}
	if originService == "" {
		originService = "http://localhost:8080"
	}

	tun, err := m.findTunnel(ctx, name)
	if err != nil {
		return nil, edgeErr("list tunnels", err)
	}
	if tun == nil {
		secret, err := tunnelSecret()
		if err != nil {
			return nil, err
		}
		created, err := m.api.CreateTunnel(ctx, m.account(), cloudflare.TunnelCreateParams{
			Name:      name,
			Secret:    secret,
			ConfigSrc: "cloudflare",
		})
		if err != nil {
			return nil, edgeErr("create tunnel", err)
		}
		tun = &created
		m.log.Info("tunnel created", zap.String("slug", slug), zap.String("tunnel_id", tun.ID))
	}

	_, err = m.api.UpdateTunnelConfiguration(ctx, m.account(), cloudflare.TunnelConfigurationParams{
		TunnelID: tun.ID,
		Config: cloudflare.TunnelConfiguration{
			Ingress: []cloudflare.UnvalidatedIngressRule{
				{Hostname: hostname, Service: originService},
				{Service: "http_status:404"},
			},
		},
	})
	if err != nil {
		return nil, edgeErr("configure tunnel", err)
	}

	if err := m.ensureDNS(ctx, hostname, tun.ID); err != nil {
		return nil, err
	}

	script := WidgetScript(hostname, slug)
	if _, err := m.api.UploadWorker(ctx, m.account(), cloudflare.CreateWorkerParams{
		ScriptName: workerName,
		Script:     script,
		Module:     true,
	}); err != nil {
		return nil, edgeErr("upload worker", err)
	}
	if err := m.ensureRoute(ctx, hostname, workerName); err != nil {
		return nil, err
	}

	token, err := m.api.GetTunnelToken(ctx, m.account(), tun.ID)
	if err != nil {
		return nil, edgeErr("tunnel token", err)
	}

	return &Exposure{TunnelID: tun.ID, Token: token, Hostname: hostname}, nil
}

// Teardown removes the tunnel, DNS record, worker and route for the
// slug. The workload itself is untouched. Missing artifacts are
// skipped, so teardown is safe to repeat.
func (m *Manager) Teardown(ctx context.Context, slug string) error {
	if err := m.teardown(ctx, slug); err != nil {
		observability.TunnelOpTotal.WithLabelValues("teardown", "error").Inc()
		return err
	}
	observability.TunnelOpTotal.WithLabelValues("teardown", "ok").Inc()
	return nil
}

func (m *Manager) teardown(ctx context.Context, slug string) error {
	name, err := m.scheme.Resource(slug)
	if err != nil {
		return err
	}
	hostname, err := m.scheme.Hostname(slug)
	if err != nil {
		return err
	}
	workerName, err := m.scheme.Worker(slug)
	if err != nil {
		return err
	}

	routes, err := m.api.ListWorkerRoutes(ctx, m.zone(), cloudflare.ListWorkerRoutesParams{})
	if err != nil {
		return edgeErr("list worker routes", err)
	}
	pattern := hostname + "/*"
	for _, rt := range routes.Routes {
		if rt.Pattern == pattern {
			if _, err := m.api.DeleteWorkerRoute(ctx, m.zone(), rt.ID); err != nil {
				return edgeErr("delete worker route", err)
			}
		}
	}

	if err := m.api.DeleteWorker(ctx, m.account(), cloudflare.DeleteWorkerParams{ScriptName: workerName}); err != nil {
		m.log.Warn("worker delete failed", zap.String("worker", workerName), zap.Error(err))
	}

	records, _, err := m.api.ListDNSRecords(ctx, m.zone(), cloudflare.ListDNSRecordsParams{Name: hostname})
	if err != nil {
		return edgeErr("list dns records", err)
	}
	for _, rec := range records {
		if err := m.api.DeleteDNSRecord(ctx, m.zone(), rec.ID); err != nil {
			return edgeErr("delete dns record", err)
		}
	}

	tun, err := m.findTunnel(ctx, name)
	if err != nil {
		return edgeErr("list tunnels", err)
	}
	if tun != nil {
		if err := m.api.CleanupTunnelConnections(ctx, m.account(), tun.ID); err != nil {
			m.log.Warn("tunnel connection cleanup failed", zap.String("tunnel_id", tun.ID), zap.Error(err))
		}
		if err := m.api.DeleteTunnel(ctx, m.account(), tun.ID); err != nil {
			return edgeErr("delete tunnel", err)
		}
	}
	return nil
}

func (m *Manager) findTunnel(ctx context.Context, name string) (*cloudflare.Tunnel, error) {
	tunnels, _, err := m.api.ListTunnels(ctx, m.account(), cloudflare.TunnelListParams{
		Name:      name,
		IsDeleted: cloudflare.BoolPtr(false),
	})
	if err != nil {
		return nil, err
	}
	for i := range tunnels {
		if tunnels[i].Name == name {
			return &tunnels[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) ensureDNS(ctx context.Context, hostname, tunnelID string) error {
	target := tunnelID + ".cfargotunnel.com"
	records, _, err := m.api.ListDNSRecords(ctx, m.zone(), cloudflare.ListDNSRecordsParams{Name: hostname})
	if err != nil {
		return edgeErr("list dns records", err)
	}
	for _, rec := range records {
		if rec.Type == "CNAME" && rec.Content == target {
			return nil
		}
		if err := m.api.DeleteDNSRecord(ctx, m.zone(), rec.ID); err != nil {
			return edgeErr("replace dns record", err)
		}
	}
	_, err = m.api.CreateDNSRecord(ctx, m.zone(), cloudflare.CreateDNSRecordParams{
		Type:    "CNAME",
		Name:    hostname,
		Content: target,
		Proxied: cloudflare.BoolPtr(true),
		TTL:     1,
	})
	if err != nil {
		return edgeErr("create dns record", err)
	}
	return nil
}

func (m *Manager) ensureRoute(ctx context.Context, hostname, workerName string) error {
	pattern := hostname + "/*"
	routes, err := m.api.ListWorkerRoutes(ctx, m.zone(), cloudflare.ListWorkerRoutesParams{})
	if err != nil {
		return edgeErr("list worker routes", err)
	}
	for _, rt := range routes.Routes {
		if rt.Pattern == pattern {
			return nil
		}
	}
	_, err = m.api.CreateWorkerRoute(ctx, m.zone(), cloudflare.CreateWorkerRouteParams{
		Pattern: pattern,
		Script:  workerName,
	})
	if err != nil {
		return edgeErr("create worker route", err)
	}
	return nil
}

func tunnelSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tunnel secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func edgeErr(op string, err error) error {
	return core.NewAppError(core.ErrConnectivity, fmt.Sprintf("cloudflare %s: %v", op, err))
}
