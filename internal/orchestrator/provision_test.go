package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/naming"
	"github.com/hatchery-io/hatchery/internal/provider"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
	"github.com/hatchery-io/hatchery/internal/tunnel"
)

// --- fakes -----------------------------------------------------------

type memStore struct {
	workloads map[string]core.Workload
	audits    []string
}

func newMemStore() *memStore { return &memStore{workloads: map[string]core.Workload{}} }

func (m *memStore) GetWorkload(_ context.Context, id string) (core.Workload, error) {
	w, ok := m.workloads[id]
	if !ok {
		return w, pgx.ErrNoRows
	}
	return w, nil
}

func (m *memStore) GetWorkloadBySlug(_ context.Context, slug string) (core.Workload, error) {
	for _, w := range m.workloads {
		if w.Slug == slug {
			return w, nil
		}
	}
	return core.Workload{}, pgx.ErrNoRows
}

func (m *memStore) UpdateWorkloadState(_ context.Context, p store.UpdateWorkloadStateParams) error {
	w := m.workloads[p.ID]
	w.State = p.State
	m.workloads[p.ID] = w
	return nil
}

func (m *memStore) SetWorkloadKeys(_ context.Context, p store.SetWorkloadKeysParams) error {
	w := m.workloads[p.ID]
	if w.SSHPublicKey != "" {
		return nil
	}
	w.SSHPublicKey = p.PublicKey
	w.SSHPrivateKey = p.PrivateKey
	m.workloads[p.ID] = w
	return nil
}

func (m *memStore) SetWorkloadServerIP(_ context.Context, id, ip string) error {
	w := m.workloads[id]
	w.ServerIP = ip
	m.workloads[id] = w
	return nil
}

func (m *memStore) SetWorkloadExposed(_ context.Context, id string, exposed bool) error {
	w := m.workloads[id]
	w.Exposed = exposed
	m.workloads[id] = w
	return nil
}

func (m *memStore) InsertAudit(_ context.Context, p store.InsertAuditParams) (int64, error) {
	m.audits = append(m.audits, p.Action)
	return int64(len(m.audits)), nil
}

type fakeClient struct {
	servers map[string]*provider.Server
	keys    map[string]string
	fws     map[string]bool
	nets    map[string]bool
	vols    map[string]bool
	created []string
	deleted []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		servers: map[string]*provider.Server{},
		keys:    map[string]string{},
		fws:     map[string]bool{},
		nets:    map[string]bool{},
		vols:    map[string]bool{},
	}
}

func (c *fakeClient) CreateServer(_ context.Context, opts provider.CreateServerOpts) (*provider.Server, error) {
	s := &provider.Server{ID: "srv-" + opts.Name, Name: opts.Name, PublicIP: "192.0.2.10", Status: provider.ServerRunning}
	c.servers[opts.Name] = s
	c.created = append(c.created, "server:"+opts.Name)
	return s, nil
}

func (c *fakeClient) GetServerByName(_ context.Context, name string) (*provider.Server, error) {
	return c.servers[name], nil
}

func (c *fakeClient) ListServers(_ context.Context) ([]provider.Server, error) {
	var out []provider.Server
	for _, s := range c.servers {
		out = append(out, *s)
	}
	return out, nil
}

func (c *fakeClient) DeleteServer(_ context.Context, name string) error {
	delete(c.servers, name)
	c.deleted = append(c.deleted, "server:"+name)
	return nil
}

func (c *fakeClient) CreateSSHKey(_ context.Context, name, pub string) (*provider.SSHKey, error) {
	c.keys[name] = pub
	c.created = append(c.created, "key:"+name)
	return &provider.SSHKey{ID: "key-" + name, Name: name}, nil
}

func (c *fakeClient) GetSSHKeyByName(_ context.Context, name string) (*provider.SSHKey, error) {
	if _, ok := c.keys[name]; !ok {
		return nil, nil
	}
	return &provider.SSHKey{ID: "key-" + name, Name: name}, nil
}

func (c *fakeClient) DeleteSSHKey(_ context.Context, name string) error {
	delete(c.keys, name)
	c.deleted = append(c.deleted, "key:"+name)
	return nil
}

func (c *fakeClient) CreateFirewall(_ context.Context, name string, _ []int) (*provider.Firewall, error) {
	c.fws[name] = true
	c.created = append(c.created, "firewall:"+name)
	return &provider.Firewall{ID: "fw-" + name, Name: name}, nil
}

func (c *fakeClient) GetFirewallByName(_ context.Context, name string) (*provider.Firewall, error) {
	if !c.fws[name] {
		return nil, nil
	}
	return &provider.Firewall{ID: "fw-" + name, Name: name}, nil
}

func (c *fakeClient) DeleteFirewall(_ context.Context, name string) error {
	delete(c.fws, name)
	c.deleted = append(c.deleted, "firewall:"+name)
	return nil
}

func (c *fakeClient) CreateNetwork(_ context.Context, name, ipRange string) (*provider.Network, error) {
	c.nets[name] = true
	c.created = append(c.created, "network:"+name)
	return &provider.Network{ID: "net-" + name, Name: name, IPRange: ipRange}, nil
}

func (c *fakeClient) GetNetworkByName(_ context.Context, name string) (*provider.Network, error) {
	if !c.nets[name] {
		return nil, nil
	}
	return &provider.Network{ID: "net-" + name, Name: name}, nil
}

func (c *fakeClient) DeleteNetwork(_ context.Context, name string) error {
	delete(c.nets, name)
	c.deleted = append(c.deleted, "network:"+name)
	return nil
}

func (c *fakeClient) CreateVolume(_ context.Context, name string, _ int, _ string) (*provider.Volume, error) {
	c.vols[name] = true
	c.created = append(c.created, "volume:"+name)
	return &provider.Volume{ID: "vol-" + name, Name: name}, nil
}

func (c *fakeClient) GetVolumeByName(_ context.Context, name string) (*provider.Volume, error) {
	if !c.vols[name] {
		return nil, nil
	}
	return &provider.Volume{ID: "vol-" + name, Name: name}, nil
}

func (c *fakeClient) DeleteVolume(_ context.Context, name string) error {
	delete(c.vols, name)
	c.deleted = append(c.deleted, "volume:"+name)
	return nil
}

type fakeProvider struct {
	key    string
	client *fakeClient
}

func (p *fakeProvider) Key() string                      { return p.key }
func (p *fakeProvider) Validate() error                  { return nil }
func (p *fakeProvider) Client() (provider.Client, error) { return p.client, nil }
func (p *fakeProvider) SupportsSelfHostedDatabase() bool { return true }
func (p *fakeProvider) VMBased() bool                    { return true }

type fakeProviders struct {
	byKey map[string]provider.Provider
}

func (f *fakeProviders) Get(key string) (provider.Provider, error) {
	p, ok := f.byKey[key]
	if !ok {
		return nil, core.NewAppError(core.ErrUnknownProvider, "unknown provider "+key)
	}
	return p, nil
}

func (f *fakeProviders) Keys() []string {
	var out []string
	for k := range f.byKey {
		out = append(out, k)
	}
	return out
}

type fakeEngine struct {
	commands  []string
	exitCodes map[string]int // substring match
	waited    []string
}

func (e *fakeEngine) Exec(_ context.Context, _ remoteexec.Target, command string, opts remoteexec.ExecOpts) (*core.CommandExecution, error) {
	e.commands = append(e.commands, command)
	code := 0
	for frag, c := range e.exitCodes {
		if strings.Contains(command, frag) {
			code = c
		}
	}
	return &core.CommandExecution{ID: "e", WorkloadID: opts.WorkloadID, ExitCode: &code}, nil
}

func (e *fakeEngine) WaitForSSH(_ context.Context, target remoteexec.Target, _ time.Duration) error {
	e.waited = append(e.waited, target.Host)
	return nil
}

type fakeExposer struct {
	setups    []string
	teardowns []string
}

func (f *fakeExposer) Setup(_ context.Context, slug, _ string) (*tunnel.Exposure, error) {
	f.setups = append(f.setups, slug)
	return &tunnel.Exposure{TunnelID: "tun", Token: "tok", Hostname: slug + ".example.com"}, nil
}

func (f *fakeExposer) Teardown(_ context.Context, slug string) error {
	f.teardowns = append(f.teardowns, slug)
	return nil
}

// --- helpers ---------------------------------------------------------

func testProvisioner(t *testing.T, st *memStore, client *fakeClient, exposer Exposer) (*Provisioner, *fakeEngine) {
	t.Helper()
	scheme, err := naming.NewScheme("hatch", "preview.example.com")
	if err != nil {
		t.Fatal(err)
	}
	engine := &fakeEngine{exitCodes: map[string]int{}}
	providers := &fakeProviders{byKey: map[string]provider.Provider{
		"hetzner": &fakeProvider{key: "hetzner", client: client},
	}}
	cfg := Config{
		ServerType: "cx22", Image: "ubuntu-24.04", Location: "fsn1",
		NetworkRange: "10.0.0.0/16", Workdir: "/workspace",
		SSHWaitTimeout: time.Minute, OriginService: "http://localhost:8080",
	}
	return NewProvisioner(st, providers, engine, exposer, scheme, cfg, zap.NewNop()), engine
}

func seedWorkload(st *memStore, kind core.WorkloadKind, state core.WorkloadState) core.Workload {
	w := core.Workload{
		ID: "w1", Slug: "ab12cd", Kind: kind, State: state,
		Provider: "hetzner", RepoURL: "https://example.com/repo.git", Branch: "main",
	}
	st.workloads[w.ID] = w
	return w
}

// --- tests -----------------------------------------------------------

func TestProvisionSandbox(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindSandbox, core.WorkloadPending)
	p, engine := testProvisioner(t, st, client, nil)
	// Fresh host: the workspace existence check finds nothing.
	engine.exitCodes["test -d"] = 1

	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}

	w := st.workloads["w1"]
	if w.State != core.WorkloadRunning {
		t.Errorf("state = %s, want RUNNING", w.State)
	}
	if w.ServerIP != "192.0.2.10" {
		t.Errorf("server ip = %q", w.ServerIP)
	}
	if !w.HasKeys() {
		t.Error("keypair not generated")
	}
	if _, ok := client.servers["hatch-ab12cd"]; !ok {
		t.Errorf("server not created under derived name: %v", client.created)
	}
	if len(engine.waited) != 1 {
		t.Errorf("ssh wait ran %d times", len(engine.waited))
	}

	var sawSync, sawUp bool
	for _, cmd := range engine.commands {
		if strings.Contains(cmd, "git clone") {
			sawSync = true
		}
		if strings.Contains(cmd, "git pull") {
			t.Errorf("fresh host must clone, not pull: %q", cmd)
		}
		if strings.Contains(cmd, "docker compose") && strings.Contains(cmd, "up -d") {
			sawUp = true
		}
	}
	if !sawSync || !sawUp {
		t.Errorf("deploy commands missing: %v", engine.commands)
	}
}

func TestProvisionIdempotentWhenUp(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindSandbox, core.WorkloadRunning)
	p, engine := testProvisioner(t, st, client, nil)

	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	if len(client.created) != 0 || len(engine.commands) != 0 {
		t.Errorf("up workload must be untouched: created=%v commands=%v", client.created, engine.commands)
	}
}

func TestProvisionReusesExistingInfra(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindSandbox, core.WorkloadProvisioning)
	p, _ := testProvisioner(t, st, client, nil)

	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	firstCreates := len(client.created)

	// Knock it back and provision again: every resource must be reused.
	w := st.workloads["w1"]
	w.State = core.WorkloadProvisioning
	st.workloads["w1"] = w
	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	if len(client.created) != firstCreates {
		t.Errorf("retry recreated resources: %v", client.created[firstCreates:])
	}
}

func TestProvisionKeysNeverRotate(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindSandbox, core.WorkloadPending)
	p, _ := testProvisioner(t, st, client, nil)

	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	first := st.workloads["w1"].SSHPublicKey

	w := st.workloads["w1"]
	w.State = core.WorkloadProvisioning
	st.workloads["w1"] = w
	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	if st.workloads["w1"].SSHPublicKey != first {
		t.Error("keypair rotated across provision retries")
	}
}

func TestProvisionDestroyedRejected(t *testing.T) {
	st := newMemStore()
	seedWorkload(st, core.KindSandbox, core.WorkloadDestroyed)
	p, _ := testProvisioner(t, st, newFakeClient(), nil)

	err := p.Provision(context.Background(), "w1")
	if core.CodeOf(err) != core.ErrInvalidState {
		t.Fatalf("want invalid state, got %v", err)
	}
}

func TestProvisionReleaseDeploys(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindRelease, core.WorkloadPending)
	p, engine := testProvisioner(t, st, client, nil)

	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	if st.workloads["w1"].State != core.WorkloadDeployed {
		t.Errorf("state = %s, want DEPLOYED", st.workloads["w1"].State)
	}
	var sawApply, sawRollout bool
	for _, cmd := range engine.commands {
		if strings.Contains(cmd, "kubectl apply") {
			sawApply = true
		}
		if strings.Contains(cmd, "rollout status") {
			sawRollout = true
		}
	}
	if !sawApply || !sawRollout {
		t.Errorf("release rollout commands missing: %v", engine.commands)
	}
}

func TestProvisionRepoSyncFailureLeavesProvisioning(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindSandbox, core.WorkloadPending)
	p, engine := testProvisioner(t, st, client, nil)
	engine.exitCodes["git"] = 128

	err := p.Provision(context.Background(), "w1")
	if core.CodeOf(err) != core.ErrInternal {
		t.Fatalf("want internal error, got %v", err)
	}
	if st.workloads["w1"].State != core.WorkloadProvisioning {
		t.Errorf("failed provision should stay PROVISIONING, got %s", st.workloads["w1"].State)
	}
}

func TestRedeployRequiresDeployedRelease(t *testing.T) {
	st := newMemStore()
	p, _ := testProvisioner(t, st, newFakeClient(), nil)

	seedWorkload(st, core.KindSandbox, core.WorkloadRunning)
	if err := p.Redeploy(context.Background(), "w1"); core.CodeOf(err) != core.ErrInvalidState {
		t.Errorf("sandbox redeploy: want invalid state, got %v", err)
	}

	seedWorkload(st, core.KindRelease, core.WorkloadProvisioning)
	if err := p.Redeploy(context.Background(), "w1"); core.CodeOf(err) != core.ErrInvalidState {
		t.Errorf("undeployed release redeploy: want invalid state, got %v", err)
	}
}

func TestRedeploySyncsAndRollsOut(t *testing.T) {
	st := newMemStore()
	w := seedWorkload(st, core.KindRelease, core.WorkloadDeployed)
	w.ServerIP = "192.0.2.10"
	st.workloads[w.ID] = w
	p, engine := testProvisioner(t, st, newFakeClient(), nil)

	if err := p.Redeploy(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(engine.commands, "\n")
	for _, want := range []string{"git fetch", "docker build", "docker push", "kubectl apply", "rollout status"} {
		if !strings.Contains(joined, want) {
			t.Errorf("redeploy missing %q in commands", want)
		}
	}
	// The workspace already exists, so it is updated in place, never
	// recloned.
	if strings.Contains(joined, "git clone") {
		t.Errorf("redeploy recloned an existing workspace: %v", engine.commands)
	}
}

func TestDeprovisionTearsDownAndTerminates(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	seedWorkload(st, core.KindSandbox, core.WorkloadPending)
	p, _ := testProvisioner(t, st, client, nil)
	if err := p.Provision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}

	if err := p.Deprovision(context.Background(), "w1"); err != nil {
		t.Fatal(err)
	}
	if st.workloads["w1"].State != core.WorkloadDestroyed {
		t.Errorf("state = %s, want DESTROYED", st.workloads["w1"].State)
	}
	if len(client.servers) != 0 || len(client.keys) != 0 || len(client.fws) != 0 || len(client.nets) != 0 {
		t.Errorf("resources left behind: %+v", client)
	}

	// Destroyed is terminal and deprovision is repeatable.
	if err := p.Deprovision(context.Background(), "w1"); err != nil {
		t.Fatalf("repeat deprovision: %v", err)
	}
}

func TestDeprovisionRejectsMidProvision(t *testing.T) {
	st := newMemStore()
	seedWorkload(st, core.KindSandbox, core.WorkloadProvisioning)
	p, _ := testProvisioner(t, st, newFakeClient(), nil)

	if err := p.Deprovision(context.Background(), "w1"); core.CodeOf(err) != core.ErrInvalidState {
		t.Fatalf("want invalid state, got %v", err)
	}
}

func TestSetExposedRequiresTunnelCredentials(t *testing.T) {
	st := newMemStore()
	seedWorkload(st, core.KindSandbox, core.WorkloadRunning)
	p, _ := testProvisioner(t, st, newFakeClient(), nil)

	_, err := p.SetExposed(context.Background(), "w1", true)
	if core.CodeOf(err) != core.ErrConfiguration {
		t.Fatalf("want configuration error, got %v", err)
	}
	if st.workloads["w1"].Exposed {
		t.Error("exposed flag changed despite missing credentials")
	}
}

func TestSetExposedDeferredWhileDown(t *testing.T) {
	st := newMemStore()
	seedWorkload(st, core.KindSandbox, core.WorkloadPending)
	exposer := &fakeExposer{}
	p, engine := testProvisioner(t, st, newFakeClient(), exposer)

	w, err := p.SetExposed(context.Background(), "w1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Exposed {
		t.Error("desired flag not recorded")
	}
	if len(exposer.setups) != 0 || len(engine.commands) != 0 {
		t.Error("exposure applied to a workload that is not up")
	}
}

func TestSetExposedAppliesWhenUp(t *testing.T) {
	st := newMemStore()
	w := seedWorkload(st, core.KindSandbox, core.WorkloadRunning)
	w.ServerIP = "192.0.2.10"
	st.workloads[w.ID] = w
	exposer := &fakeExposer{}
	p, engine := testProvisioner(t, st, newFakeClient(), exposer)

	if _, err := p.SetExposed(context.Background(), "w1", true); err != nil {
		t.Fatal(err)
	}
	if len(exposer.setups) != 1 || exposer.setups[0] != "ab12cd" {
		t.Errorf("setups = %v", exposer.setups)
	}
	if !st.workloads["w1"].Exposed {
		t.Error("exposed flag not persisted")
	}
	if !strings.Contains(strings.Join(engine.commands, "\n"), "cloudflared") {
		t.Errorf("connector not started: %v", engine.commands)
	}

	if _, err := p.SetExposed(context.Background(), "w1", false); err != nil {
		t.Fatal(err)
	}
	if len(exposer.teardowns) != 1 {
		t.Errorf("teardowns = %v", exposer.teardowns)
	}
	if st.workloads["w1"].Exposed {
		t.Error("exposed flag not cleared")
	}
}

func TestDetectOrphans(t *testing.T) {
	st := newMemStore()
	client := newFakeClient()
	client.servers["hatch-ab12cd"] = &provider.Server{Name: "hatch-ab12cd", Status: provider.ServerRunning}
	client.servers["hatch-dead00"] = &provider.Server{Name: "hatch-dead00", Status: provider.ServerRunning}
	client.servers["unrelated-vm"] = &provider.Server{Name: "unrelated-vm", Status: provider.ServerRunning}

	seedWorkload(st, core.KindSandbox, core.WorkloadRunning) // slug ab12cd
	dead := core.Workload{ID: "w2", Slug: "dead00", Kind: core.KindSandbox, State: core.WorkloadDestroyed, Provider: "hetzner"}
	st.workloads[dead.ID] = dead

	p, _ := testProvisioner(t, st, client, nil)
	orphans, err := p.DetectOrphans(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 1 {
		t.Fatalf("orphans = %+v", orphans)
	}
	if orphans[0].Slug != "dead00" || orphans[0].Reason != "workload destroyed" {
		t.Errorf("orphan = %+v", orphans[0])
	}
}
