package provider

import (
	"finassist/config"
	"finassist/model"
	"fmt"
)

// InitializeProviders creates a provider for every enabled [[providers]] entry.
//
// A provider that cannot be built (no API key, bad URL) is logged and left
// out so the others stay usable.
func InitializeProviders(cfg *config.Config) map[string]model.Provider {
	providers := make(map[string]model.Provider)

	for _, providerCfg := range cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}

		providerType := MapProviderIDToType(providerCfg.ID)
		p, err := NewProvider(Config{
			Type:    providerType,
			BaseURL: providerCfg.BaseURL,
			APIKey:  cfg.APIKey(providerCfg.ID),
		})
		if err != nil {
			config.Debugf("[Provider] Warning: failed to initialize provider %s: %v", providerCfg.ID, err)
			continue
		}

		providers[providerCfg.ID] = p
		config.Debugf("[Provider] Initialized provider: %s (type: %s)", providerCfg.ID, providerType)
	}

	return providers
}

// Active returns the provider named by [assistant] provider, set to the
// configured model.
func Active(cfg *config.Config, providers map[string]model.Provider) (model.Provider, error) {
	id := cfg.Assistant.Provider
	p, ok := providers[id]
	if !ok {
		if _, configured := cfg.Provider(id); !configured {
			return nil, fmt.Errorf("%w: %s is not listed in [[providers]]", ErrProviderNotEnabled, id)
		}
		return nil, fmt.Errorf("%w: %s (check enabled flag and API key)", ErrProviderNotEnabled, id)
	}

	if cfg.Assistant.Model != "" {
		p.SetModel(cfg.Assistant.Model)
	}
	return p, nil
}
