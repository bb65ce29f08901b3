package provider

import (
	"context"
	"fmt"
	"net"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/hatchery-io/hatchery/internal/core"
)

const KeyHetzner = "hetzner"

type hetznerProvider struct {
	cfg HetznerConfig
}

func newHetzner(cfg HetznerConfig) *hetznerProvider {
	return &hetznerProvider{cfg: cfg}
}

func (p *hetznerProvider) Key() string { return KeyHetzner }

func (p *hetznerProvider) Validate() error {
	if p.cfg.Token == "" {
		return core.NewAppError(core.ErrConfiguration, "hetzner: HETZNER_TOKEN is not set")
	}
	return nil
}

func (p *hetznerProvider) Client() (Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &hetznerClient{
		api:      hcloud.NewClient(hcloud.WithToken(p.cfg.Token)),
		location: p.cfg.Location,
	}, nil
}

func (p *hetznerProvider) SupportsSelfHostedDatabase() bool { return true }
func (p *hetznerProvider) VMBased() bool                    { return true }

type hetznerClient struct {
	api      *hcloud.Client
	location string
}

func hetznerServerStatus(s hcloud.ServerStatus) ServerStatus {
	switch s {
	case hcloud.ServerStatusRunning:
		return ServerRunning
	case hcloud.ServerStatusOff, hcloud.ServerStatusStopping:
		return ServerOff
	case hcloud.ServerStatusInitializing, hcloud.ServerStatusStarting:
		return ServerInitializing
	default:
		return ServerUnknown
	}
}

func normalizeHetznerServer(s *hcloud.Server) *Server {
	ip := ""
	if !s.PublicNet.IPv4.IsUnspecified() {
		ip = s.PublicNet.IPv4.IP.String()
	}
	return &Server{
		ID:       fmt.Sprintf("%d", s.ID),
		Name:     s.Name,
		PublicIP: ip,
		Status:   hetznerServerStatus(s.Status),
	}
}

func (c *hetznerClient) CreateServer(ctx context.Context, opts CreateServerOpts) (*Server, error) {
	keys := make([]*hcloud.SSHKey, 0, len(opts.SSHKeyNames))
	for _, name := range opts.SSHKeyNames {
		key, _, err := c.api.SSHKey.GetByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("hetzner: resolve ssh key %s: %w", name, err)
		}
		if key == nil {
			return nil, fmt.Errorf("hetzner: ssh key %s not found", name)
		}
		keys = append(keys, key)
	}

	createOpts := hcloud.ServerCreateOpts{
		Name:       opts.Name,
		ServerType: &hcloud.ServerType{Name: opts.ServerType},
		Image:      &hcloud.Image{Name: opts.Image},
		Location:   &hcloud.Location{Name: c.location},
		SSHKeys:    keys,
		UserData:   opts.UserData,
		Labels:     opts.Labels,
	}
	if opts.NetworkID != "" {
		var id int64
		fmt.Sscanf(opts.NetworkID, "%d", &id)
		createOpts.Networks = []*hcloud.Network{{ID: id}}
	}

	result, _, err := c.api.Server.Create(ctx, createOpts)
	if err != nil {
		return nil, fmt.Errorf("hetzner: create server %s: %w", opts.Name, err)
	}
	return normalizeHetznerServer(result.Server), nil
}

func (c *hetznerClient) GetServerByName(ctx context.Context, name string) (*Server, error) {
	s, _, err := c.api.Server.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("hetzner: get server %s: %w", name, err)
	}
	if s == nil {
		return nil, nil
	}
	return normalizeHetznerServer(s), nil
}

func (c *hetznerClient) ListServers(ctx context.Context) ([]Server, error) {
	servers, err := c.api.Server.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("hetzner: list servers: %w", err)
	}
	out := make([]Server, 0, len(servers))
	for _, s := range servers {
		out = append(out, *normalizeHetznerServer(s))
	}
	return out, nil
}

func (c *hetznerClient) DeleteServer(ctx context.Context, name string) error {
	s, _, err := c.api.Server.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("hetzner: get server %s: %w", name, err)
	}
	if s == nil {
		return nil
	}
	if _, _, err := c.api.Server.DeleteWithResult(ctx, s); err != nil {
		return fmt.Errorf("hetzner: delete server %s: %w", name, err)
	}
	return nil
}

func (c *hetznerClient) CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	key, _, err := c.api.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{
		Name:      name,
		PublicKey: publicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("hetzner: create ssh key %s: %w", name, err)
	}
	return &SSHKey{ID: fmt.Sprintf("%d", key.ID), Name: key.Name, Fingerprint: key.Fingerprint}, nil
}

func (c *hetznerClient) GetSSHKeyByName(ctx context.Context, name string) (*SSHKey, error) {
	key, _, err := c.api.SSHKey.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("hetzner: get ssh key %s: %w", name, err)
	}
	if key == nil {
		return nil, nil
	}
	return &SSHKey{ID: fmt.Sprintf("%d", key.ID), Name: key.Name, Fingerprint: key.Fingerprint}, nil
}

func (c *hetznerClient) DeleteSSHKey(ctx context.Context, name string) error {
	key, _, err := c.api.SSHKey.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("hetzner: get ssh key %s: %w", name, err)
	}
	if key == nil {
		return nil
	}
	if _, err := c.api.SSHKey.Delete(ctx, key); err != nil {
		return fmt.Errorf("hetzner: delete ssh key %s: %w", name, err)
	}
	return nil
}

func (c *hetznerClient) CreateFirewall(ctx context.Context, name string, ports []int) (*Firewall, error) {
	rules := make([]hcloud.FirewallRule, 0, len(ports))
	anyIPv4 := net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}
	anyIPv6 := net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
	for _, port := range ports {
		p := fmt.Sprintf("%d", port)
		rules = append(rules, hcloud.FirewallRule{
			Direction: hcloud.FirewallRuleDirectionIn,
			Protocol:  hcloud.FirewallRuleProtocolTCP,
			Port:      &p,
			SourceIPs: []net.IPNet{anyIPv4, anyIPv6},
		})
	}
	result, _, err := c.api.Firewall.Create(ctx, hcloud.FirewallCreateOpts{
		Name:  name,
		Rules: rules,
	})
	if err != nil {
		return nil, fmt.Errorf("hetzner: create firewall %s: %w", name, err)
	}
	return &Firewall{ID: fmt.Sprintf("%d", result.Firewall.ID), Name: result.Firewall.Name}, nil
}

func (c *hetznerClient) GetFirewallByName(ctx context.Context, name string) (*Firewall, error) {
	fw, _, err := c.api.Firewall.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("hetzner: get firewall %s: %w", name, err)
	}
	if fw == nil {
		return nil, nil
	}
	return &Firewall{ID: fmt.Sprintf("%d", fw.ID), Name: fw.Name}, nil
}

func (c *hetznerClient) DeleteFirewall(ctx context.Context, name string) error {
	fw, _, err := c.api.Firewall.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("hetzner: get firewall %s: %w", name, err)
	}
	if fw == nil {
		return nil
	}
	if _, err := c.api.Firewall.Delete(ctx, fw); err != nil {
		return fmt.Errorf("hetzner: delete firewall %s: %w", name, err)
	}
	return nil
}

func (c *hetznerClient) CreateNetwork(ctx context.Context, name, ipRange string) (*Network, error) {
	_, ipNet, err := net.ParseCIDR(ipRange)
	if err != nil {
		return nil, fmt.Errorf("hetzner: parse ip range %s: %w", ipRange, err)
	}
	nw, _, err := c.api.Network.Create(ctx, hcloud.NetworkCreateOpts{
		Name:    name,
		IPRange: ipNet,
		Subnets: []hcloud.NetworkSubnet{{
			Type:        hcloud.NetworkSubnetTypeCloud,
			IPRange:     ipNet,
			NetworkZone: hcloud.NetworkZoneEUCentral,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("hetzner: create network %s: %w", name, err)
	}
	return &Network{ID: fmt.Sprintf("%d", nw.ID), Name: nw.Name, IPRange: nw.IPRange.String()}, nil
}

func (c *hetznerClient) GetNetworkByName(ctx context.Context, name string) (*Network, error) {
	nw, _, err := c.api.Network.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("hetzner: get network %s: %w", name, err)
	}
	if nw == nil {
		return nil, nil
	}
	return &Network{ID: fmt.Sprintf("%d", nw.ID), Name: nw.Name, IPRange: nw.IPRange.String()}, nil
}

func (c *hetznerClient) DeleteNetwork(ctx context.Context, name string) error {
	nw, _, err := c.api.Network.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("hetzner: get network %s: %w", name, err)
	}
	if nw == nil {
		return nil
	}
	if _, err := c.api.Network.Delete(ctx, nw); err != nil {
		return fmt.Errorf("hetzner: delete network %s: %w", name, err)
	}
	return nil
}

func (c *hetznerClient) CreateVolume(ctx context.Context, name string, sizeGB int, serverID string) (*Volume, error) {
	opts := hcloud.VolumeCreateOpts{
		Name:   name,
		Size:   sizeGB,
		Format: hcloud.Ptr("ext4"),
	}
	if serverID != "" {
		var id int64
		fmt.Sscanf(serverID, "%d", &id)
		opts.Server = &hcloud.Server{ID: id}
	} else {
		opts.Location = &hcloud.Location{Name: c.location}
	}
	result, _, err := c.api.Volume.Create(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("hetzner: create volume %s: %w", name, err)
	}
	return &Volume{ID: fmt.Sprintf("%d", result.Volume.ID), Name: result.Volume.Name, SizeGB: result.Volume.Size}, nil
}

func (c *hetznerClient) GetVolumeByName(ctx context.Context, name string) (*Volume, error) {
	v, _, err := c.api.Volume.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("hetzner: get volume %s: %w", name, err)
	}
	if v == nil {
		return nil, nil
	}
	return &Volume{ID: fmt.Sprintf("%d", v.ID), Name: v.Name, SizeGB: v.Size}, nil
}

func (c *hetznerClient) DeleteVolume(ctx context.Context, name string) error {
	v, _, err := c.api.Volume.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("hetzner: get volume %s: %w", name, err)
	}
	if v == nil {
		return nil
	}
	if _, err := c.api.Volume.Delete(ctx, v); err != nil {
		return fmt.Errorf("hetzner: delete volume %s: %w", name, err)
	}
	return nil
}
