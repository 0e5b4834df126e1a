package providers

import (
	"github.com/pkg/errors"

	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// Registry resolves provider configurations by ID. It is populated once at
// construction and read-only afterwards, so it is safe for concurrent use
// without locking.
type Registry struct {
	byID  map[string]Config
	order []string
}

// NewRegistry builds a registry from the given provider configs. Every
// config is validated; duplicate IDs are rejected.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{byID: make(map[string]Config, len(configs))}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrap(err, "[NewRegistry] invalid provider config")
		}
		if _, exists := r.byID[cfg.ID]; exists {
			return nil, errors.Errorf("[NewRegistry] duplicate provider %q", cfg.ID)
		}
		r.byID[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
	}

	return r, nil
}

// Get returns the config registered under id.
func (r *Registry) Get(id string) (Config, error) {
	cfg, exists := r.byID[id]
	if !exists {
		return Config{}, errors.Wrapf(ssoerrors.ErrProviderNotFound, "[Registry.Get] %q", id)
	}
	return cfg, nil
}

// List returns all configs in registration order.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
