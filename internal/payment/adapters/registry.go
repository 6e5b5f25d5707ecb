package adapters

import (
	"strings"

	"github.com/smallbiznis/memoria/internal/payment/domain"
)

// Registry resolves the webhook path segment to a gateway adapter. Only the
// configured gateway is served; other known gateways are treated as unknown.
type Registry struct {
	enabled   string
	factories map[string]domain.AdapterFactory
}

func NewRegistry(enabled string, factories ...domain.AdapterFactory) *Registry {
	r := &Registry{
		enabled:   normalize(enabled),
		factories: make(map[string]domain.AdapterFactory, len(factories)),
	}
	for _, f := range factories {
		if f == nil {
			continue
		}
		if name := normalize(f.Provider()); name != "" {
			r.factories[name] = f
		}
	}
	return r
}

// Resolve builds the adapter for provider with the shared webhook settings.
func (r *Registry) Resolve(provider string, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := normalize(provider)
	if r.enabled != "" && name != r.enabled {
		return nil, domain.ErrProviderNotFound
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg.Provider = name
	return f.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
