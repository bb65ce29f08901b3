package provider

import (
	"context"

	"github.com/hatchery-io/hatchery/internal/observability"
)

// instrumentedClient counts every provider API call. The registry wraps
// each concrete client with it, so the orchestrator never sees an
// uninstrumented one.
type instrumentedClient struct {
	key   string
	inner Client
}

func instrument(key string, inner Client) Client {
	return &instrumentedClient{key: key, inner: inner}
}

func (c *instrumentedClient) count(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ProviderCallTotal.WithLabelValues(c.key, op, outcome).Inc()
}

func (c *instrumentedClient) CreateServer(ctx context.Context, opts CreateServerOpts) (*Server, error) {
	s, err := c.inner.CreateServer(ctx, opts)
	c.count("create_server", err)
	return s, err
}

func (c *instrumentedClient) GetServerByName(ctx context.Context, name string) (*Server, error) {
	s, err := c.inner.GetServerByName(ctx, name)
	c.count("get_server", err)
	return s, err
}

func (c *instrumentedClient) ListServers(ctx context.Context) ([]Server, error) {
	s, err := c.inner.ListServers(ctx)
	c.count("list_servers", err)
	return s, err
}

func (c *instrumentedClient) DeleteServer(ctx context.Context, name string) error {
	err := c.inner.DeleteServer(ctx, name)
	c.count("delete_server", err)
	return err
}

func (c *instrumentedClient) CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	k, err := c.inner.CreateSSHKey(ctx, name, publicKey)
	c.count("create_ssh_key", err)
	return k, err
}

func (c *instrumentedClient) GetSSHKeyByName(ctx context.Context, name string) (*SSHKey, error) {
	k, err := c.inner.GetSSHKeyByName(ctx, name)
	c.count("get_ssh_key", err)
	return k, err
}

func (c *instrumentedClient) DeleteSSHKey(ctx context.Context, name string) error {
	err := c.inner.DeleteSSHKey(ctx, name)
	c.count("delete_ssh_key", err)
	return err
}

func (c *instrumentedClient) CreateFirewall(ctx context.Context, name string, ports []int) (*Firewall, error) {
	f, err := c.inner.CreateFirewall(ctx, name, ports)
	c.count("create_firewall", err)
	return f, err
}

func (c *instrumentedClient) GetFirewallByName(ctx context.Context, name string) (*Firewall, error) {
	f, err := c.inner.GetFirewallByName(ctx, name)
	c.count("get_firewall", err)
	return f, err
}

func (c *instrumentedClient) DeleteFirewall(ctx context.Context, name string) error {
	err := c.inner.DeleteFirewall(ctx, name)
	c.count("delete_firewall", err)
	return err
}

func (c *instrumentedClient) CreateNetwork(ctx context.Context, name, ipRange string) (*Network, error) {
	n, err := c.inner.CreateNetwork(ctx, name, ipRange)
	c.count("create_network", err)
	return n, err
}

func (c *instrumentedClient) GetNetworkByName(ctx context.Context, name string) (*Network, error) {
	n, err := c.inner.GetNetworkByName(ctx, name)
	c.count("get_network", err)
	return n, err
}

func (c *instrumentedClient) DeleteNetwork(ctx context.Context, name string) error {
	err := c.inner.DeleteNetwork(ctx, name)
	c.count("delete_network", err)
	return err
}

func (c *instrumentedClient) CreateVolume(ctx context.Context, name string, sizeGB int, serverID string) (*Volume, error) {
	v, err := c.inner.CreateVolume(ctx, name, sizeGB, serverID)
	c.count("create_volume", err)
	return v, err
}

func (c *instrumentedClient) GetVolumeByName(ctx context.Context, name string) (*Volume, error) {
	v, err := c.inner.GetVolumeByName(ctx, name)
	c.count("get_volume", err)
	return v, err
}

func (c *instrumentedClient) DeleteVolume(ctx context.Context, name string) error {
	err := c.inner.DeleteVolume(ctx, name)
	c.count("delete_volume", err)
	return err
}
