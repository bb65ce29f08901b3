package orchestrator

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
)

// WorkspaceExistsCommand tests whether the workspace checkout already
// exists on the host. Exit code 0 means it does.
func WorkspaceExistsCommand(workdir string) string {
	return fmt.Sprintf("test -d %s", remoteexec.SingleQuote(workdir+"/.git"))
}

// RepoSyncCommand brings the workspace to the requested branch. The
// caller checks the host first (WorkspaceExistsCommand) and gets back
// exactly one variant: a host that already has the workspace is
// fetched and pulled, never recloned.
func RepoSyncCommand(repoURL, branch, workdir string, workspaceExists bool) string {
	q := remoteexec.SingleQuote
	if !workspaceExists {
		return fmt.Sprintf("git clone --branch %s %s %s", q(branch), q(repoURL), q(workdir))
	}
	return fmt.Sprintf("cd %s && git fetch origin && git checkout %s && git pull origin %s",
		q(workdir), q(branch), q(branch))
}

// composeOverride is the override file written next to the repo's own
// docker-compose.yml before bringing the stack up.
type composeOverride struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Restart     string            `yaml:"restart,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// ComposeOverrideYAML renders the per-workload compose override: the
// app service gets the workload identity in its environment and a
// restart policy that survives host reboots.
func ComposeOverrideYAML(w core.Workload, extraEnv map[string]string) (string, error) {
	env := map[string]string{
		"HATCHERY_SLUG":     w.Slug,
		"HATCHERY_KIND":     string(w.Kind),
		"HATCHERY_REPO_URL": w.RepoURL,
	}
	for k, v := range extraEnv {
		env[k] = v
	}
	doc := composeOverride{
		Services: map[string]composeService{
			"app": {
				Restart:     "unless-stopped",
				Environment: env,
				Labels:      map[string]string{"io.hatchery.slug": w.Slug},
			},
		},
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("compose override: %w", err)
	}
	return string(raw), nil
}

// WriteFileCommand materializes content at path on the host through a
// quoted heredoc-free printf, safe for arbitrary content.
func WriteFileCommand(path, content string) string {
	return fmt.Sprintf("mkdir -p %s && printf '%%s' %s > %s",
		remoteexec.SingleQuote(dirOf(path)),
		remoteexec.SingleQuote(content),
		remoteexec.SingleQuote(path))
}

func dirOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "."
	}
	return path[:i]
}

// ComposeUpCommand starts the sandbox stack with the override applied.
func ComposeUpCommand(workdir string) string {
	q := remoteexec.SingleQuote
	return fmt.Sprintf(
		"cd %s && docker compose -f docker-compose.yml -f docker-compose.hatchery.yml up -d --build --remove-orphans",
		q(workdir))
}

// ComposeDownCommand stops the sandbox stack.
func ComposeDownCommand(workdir string) string {
	return fmt.Sprintf("cd %s && docker compose down --remove-orphans", remoteexec.SingleQuote(workdir))
}

// ReleaseDeployCommands builds, pushes and rolls out a release image to
// the host's kubernetes cluster. Each command runs as its own ordered
// execution so failures are attributable to a step.
func ReleaseDeployCommands(w core.Workload, workdir, registry, deployment string) []string {
	q := remoteexec.SingleQuote
	image := releaseImage(registry, w.Slug)
	return []string{
		fmt.Sprintf("cd %s && docker build -t %s .", q(workdir), q(image)),
		fmt.Sprintf("docker push %s", q(image)),
		fmt.Sprintf("cd %s && kubectl apply -f k8s/", q(workdir)),
		fmt.Sprintf("kubectl set image deployment/%[1]s %[1]s=%[2]s", deployment, q(image)),
		fmt.Sprintf("kubectl rollout status deployment/%s --timeout=300s", deployment),
	}
}

func releaseImage(registry, slug string) string {
	if registry == "" {
		registry = "localhost:5000"
	}
	return fmt.Sprintf("%s/hatchery/%s:latest", registry, slug)
}
