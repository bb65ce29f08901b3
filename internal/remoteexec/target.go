package remoteexec

import "fmt"

// DefaultUser is the fixed non-root account on every provisioned host.
const DefaultUser = "hatch"

// DefaultPort is the SSH port the provisioner opens in the firewall.
const DefaultPort = 22

// Target identifies where a command runs: a host reachable over SSH,
// optionally scoped into a named container on that host.
type Target struct {
	Host          string
	Port          int
	User          string
	PrivateKeyPEM string
	// Container, when set, wraps the command in a docker exec against
	// this container name.
	Container string
}

func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

func (t Target) Username() string {
	if t.User == "" {
		return DefaultUser
	}
	return t.User
}

// WrapCommand scopes command into the target container when one is set.
// The command is single-quote escaped so the container shell sees it
// exactly as written.
func (t Target) WrapCommand(command string) string {
	if t.Container == "" {
		return command
	}
	return fmt.Sprintf("docker exec %s sh -c %s", t.Container, SingleQuote(command))
}
