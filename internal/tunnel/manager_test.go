package tunnel

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/naming"
	"github.com/hatchery-io/hatchery/internal/provider"
)

type fakeEdge struct {
	tunnels  []cloudflare.Tunnel
	records  []cloudflare.DNSRecord
	routes   []cloudflare.WorkerRoute
	workers  map[string]string
	created  int
	tokenFor map[string]string
}

func newFakeEdge() *fakeEdge {
	return &fakeEdge{workers: map[string]string{}, tokenFor: map[string]string{}}
}

func (f *fakeEdge) CreateTunnel(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.TunnelCreateParams) (cloudflare.Tunnel, error) {
	f.created++
	t := cloudflare.Tunnel{ID: "tun-" + p.Name, Name: p.Name}
	f.tunnels = append(f.tunnels, t)
	f.tokenFor[t.ID] = "token-" + t.ID
	return t, nil
}

func (f *fakeEdge) ListTunnels(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.TunnelListParams) ([]cloudflare.Tunnel, *cloudflare.ResultInfo, error) {
	var out []cloudflare.Tunnel
	for _, t := range f.tunnels {
		if p.Name == "" || t.Name == p.Name {
			out = append(out, t)
		}
	}
	return out, &cloudflare.ResultInfo{}, nil
}

func (f *fakeEdge) DeleteTunnel(_ context.Context, _ *cloudflare.ResourceContainer, id string) error {
	var keep []cloudflare.Tunnel
	for _, t := range f.tunnels {
		if t.ID != id {
			keep = append(keep, t)
		}
	}
	f.tunnels = keep
	return nil
}

func (f *fakeEdge) CleanupTunnelConnections(context.Context, *cloudflare.ResourceContainer, string) error {
	return nil
}

func (f *fakeEdge) GetTunnelToken(_ context.Context, _ *cloudflare.ResourceContainer, id string) (string, error) {
	return f.tokenFor[id], nil
}

func (f *fakeEdge) UpdateTunnelConfiguration(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.TunnelConfigurationParams) (cloudflare.TunnelConfigurationResult, error) {
	return cloudflare.TunnelConfigurationResult{TunnelID: p.TunnelID}, nil
}

func (f *fakeEdge) CreateDNSRecord(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error) {
	rec := cloudflare.DNSRecord{ID: "rec-" + p.Name, Type: p.Type, Name: p.Name, Content: p.Content}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeEdge) ListDNSRecords(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error) {
	var out []cloudflare.DNSRecord
	for _, r := range f.records {
		if p.Name == "" || r.Name == p.Name {
			out = append(out, r)
		}
	}
	return out, &cloudflare.ResultInfo{}, nil
}

func (f *fakeEdge) DeleteDNSRecord(_ context.Context, _ *cloudflare.ResourceContainer, id string) error {
	var keep []cloudflare.DNSRecord
	for _, r := range f.records {
		if r.ID != id {
			keep = append(keep, r)
		}
	}
	f.records = keep
	return nil
}

func (f *fakeEdge) UploadWorker(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.CreateWorkerParams) (cloudflare.WorkerScriptResponse, error) {
	f.workers[p.ScriptName] = p.Script
	return cloudflare.WorkerScriptResponse{}, nil
}

func (f *fakeEdge) DeleteWorker(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.DeleteWorkerParams) error {
	delete(f.workers, p.ScriptName)
	return nil
}

func (f *fakeEdge) CreateWorkerRoute(_ context.Context, _ *cloudflare.ResourceContainer, p cloudflare.CreateWorkerRouteParams) (cloudflare.WorkerRouteResponse, error) {
	rt := cloudflare.WorkerRoute{ID: "rt-" + p.Script, Pattern: p.Pattern, ScriptName: p.Script}
	f.routes = append(f.routes, rt)
	return cloudflare.WorkerRouteResponse{WorkerRoute: rt}, nil
}

func (f *fakeEdge) ListWorkerRoutes(context.Context, *cloudflare.ResourceContainer, cloudflare.ListWorkerRoutesParams) (cloudflare.WorkerRoutesResponse, error) {
	return cloudflare.WorkerRoutesResponse{Routes: f.routes}, nil
}

func (f *fakeEdge) DeleteWorkerRoute(_ context.Context, _ *cloudflare.ResourceContainer, id string) (cloudflare.WorkerRouteResponse, error) {
	var keep []cloudflare.WorkerRoute
	for _, r := range f.routes {
		if r.ID != id {
			keep = append(keep, r)
		}
	}
	f.routes = keep
	return cloudflare.WorkerRouteResponse{}, nil
}

func testManager(t *testing.T, edge edgeAPI) *Manager {
	t.Helper()
	scheme, err := naming.NewScheme("hatch", "preview.example.com")
	if err != nil {
		t.Fatal(err)
	}
	cfg := provider.TunnelConfig{APIToken: "t", AccountID: "a", ZoneID: "z", Domain: "preview.example.com"}
	return &Manager{api: edge, cfg: cfg, scheme: scheme, log: zap.NewNop()}
}

func TestSetupCreatesFullExposure(t *testing.T) {
	edge := newFakeEdge()
	m := testManager(t, edge)

	exp, err := m.Setup(context.Background(), "ab12cd", "")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Hostname != "hatch-ab12cd.preview.example.com" {
		t.Errorf("hostname = %q", exp.Hostname)
	}
	if exp.Token == "" || exp.TunnelID == "" {
		t.Errorf("exposure incomplete: %+v", exp)
	}
	if len(edge.records) != 1 || edge.records[0].Type != "CNAME" {
		t.Fatalf("dns records = %+v", edge.records)
	}
	if want := exp.TunnelID + ".cfargotunnel.com"; edge.records[0].Content != want {
		t.Errorf("cname target = %q, want %q", edge.records[0].Content, want)
	}
	if _, ok := edge.workers["hatch-widget-ab12cd"]; !ok {
		t.Errorf("worker not uploaded under derived name: %v", edge.workers)
	}
	if len(edge.routes) != 1 || edge.routes[0].Pattern != "hatch-ab12cd.preview.example.com/*" {
		t.Errorf("routes = %+v", edge.routes)
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	edge := newFakeEdge()
	m := testManager(t, edge)

	first, err := m.Setup(context.Background(), "ab12cd", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Setup(context.Background(), "ab12cd", "")
	if err != nil {
		t.Fatal(err)
	}
	if edge.created != 1 {
		t.Errorf("tunnel created %d times", edge.created)
	}
	if first.TunnelID != second.TunnelID {
		t.Errorf("tunnel id changed across setups")
	}
	if len(edge.records) != 1 || len(edge.routes) != 1 {
		t.Errorf("duplicated artifacts: %d records, %d routes", len(edge.records), len(edge.routes))
	}
}

func TestTeardownRemovesArtifacts(t *testing.T) {
	edge := newFakeEdge()
	m := testManager(t, edge)

	if _, err := m.Setup(context.Background(), "ab12cd", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Teardown(context.Background(), "ab12cd"); err != nil {
		t.Fatal(err)
	}
	if len(edge.tunnels) != 0 || len(edge.records) != 0 || len(edge.routes) != 0 || len(edge.workers) != 0 {
		t.Errorf("artifacts left: tunnels=%d records=%d routes=%d workers=%d",
			len(edge.tunnels), len(edge.records), len(edge.routes), len(edge.workers))
	}

	// Repeat teardown on a clean slate.
	if err := m.Teardown(context.Background(), "ab12cd"); err != nil {
		t.Fatalf("teardown not repeatable: %v", err)
	}
}

func TestTeardownLeavesOtherSlugs(t *testing.T) {
	edge := newFakeEdge()
	m := testManager(t, edge)

	if _, err := m.Setup(context.Background(), "ab12cd", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Setup(context.Background(), "ff00aa", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Teardown(context.Background(), "ab12cd"); err != nil {
		t.Fatal(err)
	}
	if len(edge.tunnels) != 1 || edge.tunnels[0].Name != "hatch-ff00aa" {
		t.Errorf("unrelated tunnel touched: %+v", edge.tunnels)
	}
	if len(edge.records) != 1 || !strings.HasPrefix(edge.records[0].Name, "hatch-ff00aa.") {
		t.Errorf("unrelated dns touched: %+v", edge.records)
	}
}

func TestNewManagerRequiresCredentials(t *testing.T) {
	scheme, _ := naming.NewScheme("hatch", "preview.example.com")
	_, err := NewManager(provider.TunnelConfig{}, scheme, zap.NewNop())
	if core.CodeOf(err) != core.ErrConfiguration {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestWidgetScriptContents(t *testing.T) {
	script := WidgetScript("hatch-ab12cd.preview.example.com", "ab12cd")
	for _, want := range []string{authCookieName, `slug:"ab12cd"`, "403", "HTMLRewriter"} {
		if !strings.Contains(script, want) {
			t.Errorf("widget script missing %q", want)
		}
	}
}
