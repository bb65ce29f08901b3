package provider

// Config carries every provider credential. It is passed explicitly
// into constructors; nothing reads the environment past the binary's
// envconfig step.
type Config struct {
	Hetzner  HetznerConfig
	Scaleway ScalewayConfig
	Tunnel   TunnelConfig
}

type HetznerConfig struct {
	Token    string `envconfig:"HETZNER_TOKEN"`
	Location string `envconfig:"HETZNER_LOCATION" default:"fsn1"`
}

type ScalewayConfig struct {
	AccessKey string `envconfig:"SCW_ACCESS_KEY"`
	SecretKey string `envconfig:"SCW_SECRET_KEY"`
	ProjectID string `envconfig:"SCW_PROJECT_ID"`
	Zone      string `envconfig:"SCW_ZONE" default:"fr-par-1"`
}

// TunnelConfig holds the edge credentials the exposure manager needs.
// Exposure is only reachable when Configured() is true; callers check
// before invoking the tunnel manager.
type TunnelConfig struct {
	APIToken  string `envconfig:"CLOUDFLARE_API_TOKEN"`
	AccountID string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	ZoneID    string `envconfig:"CLOUDFLARE_ZONE_ID"`
	Domain    string `envconfig:"TUNNEL_DOMAIN"`
}

func (c TunnelConfig) Configured() bool {
	return c.APIToken != "" && c.AccountID != "" && c.ZoneID != "" && c.Domain != ""
}
