// Package naming derives every infrastructure resource name from a
// workload slug, and reverses the derivation for orphan detection. No
// resource may be created whose name cannot be round-tripped back to
// its slug.
package naming

import (
	"fmt"
	"strings"

	"github.com/hatchery-io/hatchery/internal/core"
)

// Scheme derives resource names under a fixed prefix. The zero value is
// not usable; construct with NewScheme so the prefix is validated once.
type Scheme struct {
	prefix string
	domain string
}

func NewScheme(prefix, domain string) (*Scheme, error) {
	if prefix == "" || strings.ContainsAny(prefix, "-./ ") {
		return nil, core.NewAppError(core.ErrNaming, fmt.Sprintf("invalid resource prefix %q", prefix))
	}
	return &Scheme{prefix: prefix, domain: domain}, nil
}

func (s *Scheme) check(slug string) error {
	if !core.ValidSlug(slug) {
		return core.NewAppError(core.ErrNaming, fmt.Sprintf("malformed slug %q", slug))
	}
	return nil
}

// Resource returns the general resource name <prefix>-<slug>, used for
// servers, SSH keys, firewalls, networks, volumes and tunnels.
func (s *Scheme) Resource(slug string) (string, error) {
	if err := s.check(slug); err != nil {
		return "", err
	}
	return s.prefix + "-" + slug, nil
}

// Container returns <prefix>-<slug>-<role> for a named container.
func (s *Scheme) Container(slug, role string) (string, error) {
	if err := s.check(slug); err != nil {
		return "", err
	}
	if role == "" || strings.Contains(role, "-") {
		return "", core.NewAppError(core.ErrNaming, fmt.Sprintf("invalid container role %q", role))
	}
	return s.prefix + "-" + slug + "-" + role, nil
}

// Worker returns <prefix>-widget-<slug> for the edge auth/widget worker.
func (s *Scheme) Worker(slug string) (string, error) {
	if err := s.check(slug); err != nil {
		return "", err
	}
	return s.prefix + "-widget-" + slug, nil
}

// Branch returns <prefix>/<slug> for the workload git branch.
func (s *Scheme) Branch(slug string) (string, error) {
	if err := s.check(slug); err != nil {
		return "", err
	}
	return s.prefix + "/" + slug, nil
}

// Hostname returns <prefix>-<slug>.<domain> for the public route.
func (s *Scheme) Hostname(slug string) (string, error) {
	if err := s.check(slug); err != nil {
		return "", err
	}
	if s.domain == "" {
		return "", core.NewAppError(core.ErrNaming, "naming scheme has no domain configured")
	}
	return s.prefix + "-" + slug + "." + s.domain, nil
}

// ExtractSlug recovers the slug from any name produced by this scheme.
// Names that do not parse, or parse to a malformed slug, fail with a
// naming error: this is how orphaned provider resources are detected.
func (s *Scheme) ExtractSlug(name string) (string, error) {
	candidate := ""
	switch {
	case strings.HasPrefix(name, s.prefix+"-widget-"):
		candidate = strings.TrimPrefix(name, s.prefix+"-widget-")
	case strings.HasPrefix(name, s.prefix+"/"):
		candidate = strings.TrimPrefix(name, s.prefix+"/")
	case strings.HasPrefix(name, s.prefix+"-"):
		candidate = strings.TrimPrefix(name, s.prefix+"-")
		// hostname form: strip the domain
		if s.domain != "" {
			candidate = strings.TrimSuffix(candidate, "."+s.domain)
		}
		// container form: strip the role
		if i := strings.IndexByte(candidate, '-'); i >= 0 {
			candidate = candidate[:i]
		}
	default:
		return "", core.NewAppError(core.ErrNaming, fmt.Sprintf("name %q does not belong to prefix %q", name, s.prefix))
	}
	if !core.ValidSlug(candidate) {
		return "", core.NewAppError(core.ErrNaming, fmt.Sprintf("name %q does not round-trip to a slug", name))
	}
	return candidate, nil
}

// Owns reports whether name was derived by this scheme.
func (s *Scheme) Owns(name string) bool {
	_, err := s.ExtractSlug(name)
	return err == nil
}
