package core

import "time"

// WorkloadKind distinguishes short-lived sandboxes from deployable releases.
type WorkloadKind string

const (
	KindSandbox WorkloadKind = "sandbox"
	KindRelease WorkloadKind = "release"
)

type WorkloadState string

const (
	WorkloadPending        WorkloadState = "PENDING"
	WorkloadProvisioning   WorkloadState = "PROVISIONING"
	WorkloadRunning        WorkloadState = "RUNNING"
	WorkloadDeployed       WorkloadState = "DEPLOYED"
	WorkloadStopping       WorkloadState = "STOPPING"
	WorkloadStopped        WorkloadState = "STOPPED"
	WorkloadDestroyed      WorkloadState = "DESTROYED"
)

// IsUp reports whether the workload reached a terminal success state.
func (s WorkloadState) IsUp() bool {
	return s == WorkloadRunning || s == WorkloadDeployed
}

// IsTerminal reports whether no further transitions are possible.
// Destruction is terminal: a destroyed workload never comes back.
func (s WorkloadState) IsTerminal() bool {
	return s == WorkloadDestroyed
}

type Workload struct {
	ID            string        `json:"id"`
	Slug          string        `json:"slug"`
	Kind          WorkloadKind  `json:"kind"`
	State         WorkloadState `json:"state"`
	Exposed       bool          `json:"exposed"`
	Provider      string        `json:"provider"`
	RepoURL       string        `json:"repo_url"`
	Branch        string        `json:"branch"`
	ServerIP      string        `json:"server_ip,omitempty"`
	SSHPublicKey  string        `json:"ssh_public_key,omitempty"`
	SSHPrivateKey string        `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// HasKeys reports whether an SSH keypair has been generated for this
// workload. Keys are never rotated once present: they are the trust
// anchor for the remote host.
func (w *Workload) HasKeys() bool {
	return w.SSHPublicKey != "" && w.SSHPrivateKey != ""
}
