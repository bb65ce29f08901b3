// Package provider normalizes heterogeneous cloud compute APIs into a
// uniform set of infrastructure operations. No provider-specific shape
// crosses the client boundary: every response is translated into the
// value types below before it reaches the orchestrator.
package provider

import "context"

// ServerStatus is the normalized lifecycle state of a compute instance.
type ServerStatus string

const (
	ServerInitializing ServerStatus = "initializing"
	ServerRunning      ServerStatus = "running"
	ServerOff          ServerStatus = "off"
	ServerUnknown      ServerStatus = "unknown"
)

// Normalized resource values. Read-only once constructed; used only to
// drive orchestration decisions.
type (
	Server struct {
		ID       string
		Name     string
		PublicIP string
		Status   ServerStatus
	}

	SSHKey struct {
		ID          string
		Name        string
		Fingerprint string
	}

	Firewall struct {
		ID   string
		Name string
	}

	Network struct {
		ID      string
		Name    string
		IPRange string
	}

	Volume struct {
		ID     string
		Name   string
		SizeGB int
	}
)

// CreateServerOpts carries everything a provider needs to boot a host.
type CreateServerOpts struct {
	Name        string
	ServerType  string
	Image       string
	Location    string
	SSHKeyNames []string
	NetworkID   string
	UserData    string
	Labels      map[string]string
}

// Client is the uniform CRUD surface over one provider's resources.
// Get* methods return nil (not an error) when no resource has the name.
type Client interface {
	CreateServer(ctx context.Context, opts CreateServerOpts) (*Server, error)
	GetServerByName(ctx context.Context, name string) (*Server, error)
	ListServers(ctx context.Context) ([]Server, error)
	DeleteServer(ctx context.Context, name string) error

	CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error)
	GetSSHKeyByName(ctx context.Context, name string) (*SSHKey, error)
	DeleteSSHKey(ctx context.Context, name string) error

	CreateFirewall(ctx context.Context, name string, ports []int) (*Firewall, error)
	GetFirewallByName(ctx context.Context, name string) (*Firewall, error)
	DeleteFirewall(ctx context.Context, name string) error

	CreateNetwork(ctx context.Context, name, ipRange string) (*Network, error)
	GetNetworkByName(ctx context.Context, name string) (*Network, error)
	DeleteNetwork(ctx context.Context, name string) error

	CreateVolume(ctx context.Context, name string, sizeGB int, serverID string) (*Volume, error)
	GetVolumeByName(ctx context.Context, name string) (*Volume, error)
	DeleteVolume(ctx context.Context, name string) error
}

// Provider is one concrete cloud backend. Validate fails with a
// configuration error before any remote call is attempted.
type Provider interface {
	Key() string
	Validate() error
	Client() (Client, error)
	SupportsSelfHostedDatabase() bool
	VMBased() bool
}
