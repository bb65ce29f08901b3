package orchestrator

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// cloudInit is the minimal cloud-config a workload host boots with: a
// non-root login user holding the workload's key, docker, git and the
// agent CLI.
type cloudInit struct {
	Users      []cloudInitUser `yaml:"users"`
	Packages   []string        `yaml:"packages"`
	RunCmd     [][]string      `yaml:"runcmd"`
	PackageUpd bool            `yaml:"package_update"`
}

type cloudInitUser struct {
	Name              string   `yaml:"name"`
	Groups            string   `yaml:"groups"`
	Shell             string   `yaml:"shell"`
	Sudo              string   `yaml:"sudo"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys"`
}

// UserData renders the cloud-init document passed to the provider at
// server creation.
func UserData(user, publicKey string) (string, error) {
	doc := cloudInit{
		PackageUpd: true,
		Users: []cloudInitUser{{
			Name:              user,
			Groups:            "docker",
			Shell:             "/bin/bash",
			Sudo:              "ALL=(ALL) NOPASSWD:ALL",
			SSHAuthorizedKeys: []string{publicKey},
		}},
		Packages: []string{"git", "docker.io", "docker-compose-v2", "curl", "nodejs", "npm"},
		RunCmd: [][]string{
			{"systemctl", "enable", "--now", "docker"},
			{"npm", "install", "-g", "@anthropic-ai/claude-code"},
		},
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("cloud-init: %w", err)
	}
	return "#cloud-config\n" + string(raw), nil
}
