package provider

import (
	"errors"
	"testing"

	"github.com/hatchery-io/hatchery/internal/core"
)

func TestRegistryKnownProviders(t *testing.T) {
	r := NewRegistry(Config{})
	for _, key := range []string{KeyHetzner, KeyScaleway} {
		p, err := r.Get(key)
		if err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
		if p.Key() != key {
			t.Errorf("Get(%q).Key() = %q", key, p.Key())
		}
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(Config{})
	p, err := r.Get("digitalocean")
	if p != nil {
		t.Error("unknown key must not return a provider")
	}
	var app *core.AppError
	if !errors.As(err, &app) || app.Code != core.ErrUnknownProvider {
		t.Errorf("want HATCH_UNKNOWN_PROVIDER, got %v", err)
	}
}

func TestValidateFailsWithoutCredentials(t *testing.T) {
	r := NewRegistry(Config{})
	for _, key := range r.Keys() {
		p, _ := r.Get(key)
		err := p.Validate()
		var app *core.AppError
		if !errors.As(err, &app) || app.Code != core.ErrConfiguration {
			t.Errorf("%s: want HATCH_CONFIGURATION without credentials, got %v", key, err)
		}
		// a client must never be handed out for an invalid configuration
		if _, err := p.Client(); err == nil {
			t.Errorf("%s: Client() must fail when Validate() fails", key)
		}
	}
}

func TestValidateWithCredentials(t *testing.T) {
	r := NewRegistry(Config{
		Hetzner: HetznerConfig{Token: "t0ken", Location: "fsn1"},
		Scaleway: ScalewayConfig{
			AccessKey: "SCW11111111111111111",
			SecretKey: "11111111-1111-1111-1111-111111111111",
			ProjectID: "11111111-1111-1111-1111-111111111111",
			Zone:      "fr-par-1",
		},
	})
	for _, key := range r.Keys() {
		p, _ := r.Get(key)
		if err := p.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v, want nil", key, err)
		}
		if _, err := p.Client(); err != nil {
			t.Errorf("%s: Client() = %v, want nil", key, err)
		}
	}
}
