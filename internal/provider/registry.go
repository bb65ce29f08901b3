package provider

import (
	"fmt"
	"sort"

	"github.com/hatchery-io/hatchery/internal/core"
)

// Registry resolves a symbolic provider key to a concrete
// implementation. Providers are a closed set of variants; adding one
// means adding a constructor here, never subclassing.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(cfg Config) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.providers[KeyHetzner] = &counted{newHetzner(cfg.Hetzner)}
	r.providers[KeyScaleway] = &counted{newScaleway(cfg.Scaleway)}
	return r
}

// counted wraps a provider so every client it hands out records call
// metrics.
type counted struct {
	Provider
}

func (c *counted) Client() (Client, error) {
	cl, err := c.Provider.Client()
	if err != nil {
		return nil, err
	}
	return instrument(c.Key(), cl), nil
}

// Get returns the provider for key, or an unknown-provider error.
// It never returns nil alongside a nil error.
func (r *Registry) Get(key string) (Provider, error) {
	p, ok := r.providers[key]
	if !ok {
		return nil, core.NewAppError(core.ErrUnknownProvider, fmt.Sprintf("unknown provider %q", key))
	}
	return p, nil
}

// Keys lists registered provider keys, sorted for stable output.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
