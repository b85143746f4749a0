package factory

import (
	"fmt"

	"github.com/shopdesk/shopdesk-backend/internal/config"
	"github.com/shopdesk/shopdesk-backend/internal/providers"
	"github.com/shopdesk/shopdesk-backend/internal/providers/groq"
	"github.com/shopdesk/shopdesk-backend/internal/providers/openai"
)

// New creates a provider from its configuration.
func New(id string, cfg config.ProviderConfig) (providers.Provider, error) {
	switch cfg.Type {
	case "openai":
		return openai.NewProvider(id, cfg)
	case "groq", "openai-compatible":
		return groq.NewProvider(id, cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// BuildRegistry creates providers for every configured entry that has
// credentials. Providers that fail construction are skipped; the caller
// decides whether an empty registry is fatal.
func BuildRegistry(cfgs map[string]config.ProviderConfig) (*providers.Registry, []error) {
	registry := providers.NewRegistry()
	var errs []error

	for id, cfg := range cfgs {
		if cfg.APIKey == "" {
			continue
		}
		p, err := New(id, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", id, err))
			continue
		}
		registry.Register(id, p)
	}

	return registry, errs
}
