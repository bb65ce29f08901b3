package orchestrator

import "time"

// Config tunes how workload hosts are shaped. Every field has a usable
// default so a bare environment still provisions.
type Config struct {
	ServerType     string        `envconfig:"ORCH_SERVER_TYPE" default:"cx22"`
	Image          string        `envconfig:"ORCH_IMAGE" default:"ubuntu-24.04"`
	Location       string        `envconfig:"ORCH_LOCATION" default:"fsn1"`
	NetworkRange   string        `envconfig:"ORCH_NETWORK_RANGE" default:"10.0.0.0/16"`
	VolumeSizeGB   int           `envconfig:"ORCH_VOLUME_SIZE_GB" default:"0"`
	Workdir        string        `envconfig:"ORCH_WORKDIR" default:"/workspace"`
	SSHWaitTimeout time.Duration `envconfig:"ORCH_SSH_WAIT_TIMEOUT" default:"5m"`
	OriginService  string        `envconfig:"ORCH_ORIGIN_SERVICE" default:"http://localhost:8080"`
	Registry       string        `envconfig:"ORCH_REGISTRY"`
}

// openPorts are the inbound ports the workload firewall admits.
var openPorts = []int{22, 80, 443, 8080}
