package provider

import (
	"context"
	"fmt"
	"net"
	"strings"

	iam "github.com/scaleway/scaleway-sdk-go/api/iam/v1alpha1"
	instance "github.com/scaleway/scaleway-sdk-go/api/instance/v1"
	vpc "github.com/scaleway/scaleway-sdk-go/api/vpc/v2"
	"github.com/scaleway/scaleway-sdk-go/scw"

	"github.com/hatchery-io/hatchery/internal/core"
)

const KeyScaleway = "scaleway"

type scalewayProvider struct {
	cfg ScalewayConfig
}

func newScaleway(cfg ScalewayConfig) *scalewayProvider {
	return &scalewayProvider{cfg: cfg}
}

func (p *scalewayProvider) Key() string { return KeyScaleway }

func (p *scalewayProvider) Validate() error {
	switch {
	case p.cfg.AccessKey == "":
		return core.NewAppError(core.ErrConfiguration, "scaleway: SCW_ACCESS_KEY is not set")
	case p.cfg.SecretKey == "":
		return core.NewAppError(core.ErrConfiguration, "scaleway: SCW_SECRET_KEY is not set")
	case p.cfg.ProjectID == "":
		return core.NewAppError(core.ErrConfiguration, "scaleway: SCW_PROJECT_ID is not set")
	}
	return nil
}

func (p *scalewayProvider) Client() (Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	zone, err := scw.ParseZone(p.cfg.Zone)
	if err != nil {
		return nil, core.NewAppError(core.ErrConfiguration, fmt.Sprintf("scaleway: invalid zone %q", p.cfg.Zone))
	}
	region, err := zone.Region()
	if err != nil {
		return nil, core.NewAppError(core.ErrConfiguration, fmt.Sprintf("scaleway: no region for zone %q", p.cfg.Zone))
	}
	client, err := scw.NewClient(
		scw.WithAuth(p.cfg.AccessKey, p.cfg.SecretKey),
		scw.WithDefaultProjectID(p.cfg.ProjectID),
		scw.WithDefaultZone(zone),
		scw.WithDefaultRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("scaleway: new client: %w", err)
	}
	return &scalewayClient{
		instance:  instance.NewAPI(client),
		iam:       iam.NewAPI(client),
		vpc:       vpc.NewAPI(client),
		zone:      zone,
		region:    region,
		projectID: p.cfg.ProjectID,
	}, nil
}

// Scaleway managed database is preferred over self-hosting on the VM.
func (p *scalewayProvider) SupportsSelfHostedDatabase() bool { return false }
func (p *scalewayProvider) VMBased() bool                    { return true }

type scalewayClient struct {
	instance  *instance.API
	iam       *iam.API
	vpc       *vpc.API
	zone      scw.Zone
	region    scw.Region
	projectID string
}

func scalewayServerStatus(s instance.ServerState) ServerStatus {
	switch s {
	case instance.ServerStateRunning:
		return ServerRunning
	case instance.ServerStateStopped, instance.ServerStateStoppedInPlace, instance.ServerStateStopping:
		return ServerOff
	case instance.ServerStateStarting:
		return ServerInitializing
	default:
		return ServerUnknown
	}
}

func normalizeScalewayServer(s *instance.Server) *Server {
	ip := ""
	if s.PublicIP != nil && s.PublicIP.Address != nil {
		ip = s.PublicIP.Address.String()
	}
	return &Server{
		ID:       s.ID,
		Name:     s.Name,
		PublicIP: ip,
		Status:   scalewayServerStatus(s.State),
	}
}

func (c *scalewayClient) findServer(ctx context.Context, name string) (*instance.Server, error) {
	resp, err := c.instance.ListServers(&instance.ListServersRequest{
		Zone: c.zone,
		Name: scw.StringPtr(name),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: list servers: %w", err)
	}
	// the list filter matches substrings; require the exact name
	for _, s := range resp.Servers {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, nil
}

func (c *scalewayClient) CreateServer(ctx context.Context, opts CreateServerOpts) (*Server, error) {
	resp, err := c.instance.CreateServer(&instance.CreateServerRequest{
		Zone:              c.zone,
		Name:              opts.Name,
		CommercialType:    opts.ServerType,
		Image:             opts.Image,
		Project:           scw.StringPtr(c.projectID),
		DynamicIPRequired: scw.BoolPtr(true),
		Tags:              labelsToTags(opts.Labels),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: create server %s: %w", opts.Name, err)
	}

	if opts.UserData != "" {
		err = c.instance.SetServerUserData(&instance.SetServerUserDataRequest{
			Zone:     c.zone,
			ServerID: resp.Server.ID,
			Key:      "cloud-init",
			Content:  strings.NewReader(opts.UserData),
		}, scw.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("scaleway: set user data for %s: %w", opts.Name, err)
		}
	}

	// servers are created powered off
	_, err = c.instance.ServerAction(&instance.ServerActionRequest{
		Zone:     c.zone,
		ServerID: resp.Server.ID,
		Action:   instance.ServerActionPoweron,
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: power on %s: %w", opts.Name, err)
	}

	return normalizeScalewayServer(resp.Server), nil
}

func (c *scalewayClient) GetServerByName(ctx context.Context, name string) (*Server, error) {
	s, err := c.findServer(ctx, name)
	if err != nil || s == nil {
		return nil, err
	}
	return normalizeScalewayServer(s), nil
}

func (c *scalewayClient) ListServers(ctx context.Context) ([]Server, error) {
	resp, err := c.instance.ListServers(&instance.ListServersRequest{Zone: c.zone}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: list servers: %w", err)
	}
	out := make([]Server, 0, len(resp.Servers))
	for _, s := range resp.Servers {
		out = append(out, *normalizeScalewayServer(s))
	}
	return out, nil
}

func (c *scalewayClient) DeleteServer(ctx context.Context, name string) error {
	s, err := c.findServer(ctx, name)
	if err != nil || s == nil {
		return err
	}
	if s.State == instance.ServerStateRunning {
		_, err = c.instance.ServerAction(&instance.ServerActionRequest{
			Zone:     c.zone,
			ServerID: s.ID,
			Action:   instance.ServerActionPoweroff,
		}, scw.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("scaleway: power off %s: %w", name, err)
		}
	}
	err = c.instance.DeleteServer(&instance.DeleteServerRequest{
		Zone:     c.zone,
		ServerID: s.ID,
	}, scw.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("scaleway: delete server %s: %w", name, err)
	}
	return nil
}

func (c *scalewayClient) CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	key, err := c.iam.CreateSSHKey(&iam.CreateSSHKeyRequest{
		Name:      name,
		PublicKey: publicKey,
		ProjectID: c.projectID,
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: create ssh key %s: %w", name, err)
	}
	return &SSHKey{ID: key.ID, Name: key.Name, Fingerprint: key.Fingerprint}, nil
}

func (c *scalewayClient) GetSSHKeyByName(ctx context.Context, name string) (*SSHKey, error) {
	resp, err := c.iam.ListSSHKeys(&iam.ListSSHKeysRequest{
		Name:      scw.StringPtr(name),
		ProjectID: scw.StringPtr(c.projectID),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: list ssh keys: %w", err)
	}
	for _, key := range resp.SSHKeys {
		if key.Name == name {
			return &SSHKey{ID: key.ID, Name: key.Name, Fingerprint: key.Fingerprint}, nil
		}
	}
	return nil, nil
}

func (c *scalewayClient) DeleteSSHKey(ctx context.Context, name string) error {
	key, err := c.GetSSHKeyByName(ctx, name)
	if err != nil || key == nil {
		return err
	}
	err = c.iam.DeleteSSHKey(&iam.DeleteSSHKeyRequest{SSHKeyID: key.ID}, scw.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("scaleway: delete ssh key %s: %w", name, err)
	}
	return nil
}

func (c *scalewayClient) CreateFirewall(ctx context.Context, name string, ports []int) (*Firewall, error) {
	resp, err := c.instance.CreateSecurityGroup(&instance.CreateSecurityGroupRequest{
		Zone:        c.zone,
		Name:        name,
		Description: "managed by hatchery",
		Project:     scw.StringPtr(c.projectID),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: create security group %s: %w", name, err)
	}

	_, anywhere, _ := net.ParseCIDR("0.0.0.0/0")
	for _, port := range ports {
		p := uint32(port)
		_, err = c.instance.CreateSecurityGroupRule(&instance.CreateSecurityGroupRuleRequest{
			Zone:            c.zone,
			SecurityGroupID: resp.SecurityGroup.ID,
			Protocol:        instance.SecurityGroupRuleProtocolTCP,
			Direction:       instance.SecurityGroupRuleDirectionInbound,
			Action:          instance.SecurityGroupRuleActionAccept,
			IPRange:         scw.IPNet{IPNet: *anywhere},
			DestPortFrom:    &p,
			DestPortTo:      &p,
		}, scw.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("scaleway: add rule to %s: %w", name, err)
		}
	}
	return &Firewall{ID: resp.SecurityGroup.ID, Name: resp.SecurityGroup.Name}, nil
}

func (c *scalewayClient) GetFirewallByName(ctx context.Context, name string) (*Firewall, error) {
	resp, err := c.instance.ListSecurityGroups(&instance.ListSecurityGroupsRequest{
		Zone: c.zone,
		Name: scw.StringPtr(name),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: list security groups: %w", err)
	}
	for _, sg := range resp.SecurityGroups {
		if sg.Name == name {
			return &Firewall{ID: sg.ID, Name: sg.Name}, nil
		}
	}
	return nil, nil
}

func (c *scalewayClient) DeleteFirewall(ctx context.Context, name string) error {
	fw, err := c.GetFirewallByName(ctx, name)
	if err != nil || fw == nil {
		return err
	}
	err = c.instance.DeleteSecurityGroup(&instance.DeleteSecurityGroupRequest{
		Zone:            c.zone,
		SecurityGroupID: fw.ID,
	}, scw.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("scaleway: delete security group %s: %w", name, err)
	}
	return nil
}

func (c *scalewayClient) CreateNetwork(ctx context.Context, name, ipRange string) (*Network, error) {
	pn, err := c.vpc.CreatePrivateNetwork(&vpc.CreatePrivateNetworkRequest{
		Region:    c.region,
		Name:      name,
		ProjectID: c.projectID,
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: create private network %s: %w", name, err)
	}
	return &Network{ID: pn.ID, Name: pn.Name, IPRange: ipRange}, nil
}

func (c *scalewayClient) GetNetworkByName(ctx context.Context, name string) (*Network, error) {
	resp, err := c.vpc.ListPrivateNetworks(&vpc.ListPrivateNetworksRequest{
		Region: c.region,
		Name:   scw.StringPtr(name),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: list private networks: %w", err)
	}
	for _, pn := range resp.PrivateNetworks {
		if pn.Name == name {
			return &Network{ID: pn.ID, Name: pn.Name}, nil
		}
	}
	return nil, nil
}

func (c *scalewayClient) DeleteNetwork(ctx context.Context, name string) error {
	nw, err := c.GetNetworkByName(ctx, name)
	if err != nil || nw == nil {
		return err
	}
	err = c.vpc.DeletePrivateNetwork(&vpc.DeletePrivateNetworkRequest{
		Region:           c.region,
		PrivateNetworkID: nw.ID,
	}, scw.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("scaleway: delete private network %s: %w", name, err)
	}
	return nil
}

func (c *scalewayClient) CreateVolume(ctx context.Context, name string, sizeGB int, serverID string) (*Volume, error) {
	size := scw.Size(sizeGB) * scw.GB
	resp, err := c.instance.CreateVolume(&instance.CreateVolumeRequest{
		Zone:       c.zone,
		Name:       name,
		VolumeType: instance.VolumeVolumeTypeBSSD,
		Size:       &size,
		Project:    scw.StringPtr(c.projectID),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: create volume %s: %w", name, err)
	}
	v := &Volume{ID: resp.Volume.ID, Name: resp.Volume.Name, SizeGB: int(resp.Volume.Size / scw.GB)}
	if serverID != "" {
		_, err = c.instance.AttachVolume(&instance.AttachVolumeRequest{
			Zone:     c.zone,
			ServerID: serverID,
			VolumeID: resp.Volume.ID,
		}, scw.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("scaleway: attach volume %s: %w", name, err)
		}
	}
	return v, nil
}

func (c *scalewayClient) GetVolumeByName(ctx context.Context, name string) (*Volume, error) {
	resp, err := c.instance.ListVolumes(&instance.ListVolumesRequest{
		Zone: c.zone,
		Name: scw.StringPtr(name),
	}, scw.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scaleway: list volumes: %w", err)
	}
	for _, v := range resp.Volumes {
		if v.Name == name {
			return &Volume{ID: v.ID, Name: v.Name, SizeGB: int(v.Size / scw.GB)}, nil
		}
	}
	return nil, nil
}

func (c *scalewayClient) DeleteVolume(ctx context.Context, name string) error {
	v, err := c.GetVolumeByName(ctx, name)
	if err != nil || v == nil {
		return err
	}
	err = c.instance.DeleteVolume(&instance.DeleteVolumeRequest{
		Zone:     c.zone,
		VolumeID: v.ID,
	}, scw.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("scaleway: delete volume %s: %w", name, err)
	}
	return nil
}

func labelsToTags(labels map[string]string) []string {
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+"="+v)
	}
	return tags
}
