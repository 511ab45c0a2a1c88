package config

import (
	"fmt"
	"strconv"
)

// UpdateProviderField updates a single provider setting and persists it.
//
// Fields:
//   - all providers: "enabled", "base_url"
//   - cloud providers: "apikey" (stored in the credential store, not config.toml)
func UpdateProviderField(cfg *Config, providerID, fieldName, value string) error {
	dataDir := cfg.DataDir()

	switch fieldName {
	case "apikey":
		if providerID == "ollama" {
			return fmt.Errorf("ollama does not use an API key")
		}
		if cfg.CredentialStore == nil {
			return fmt.Errorf("credential store not loaded")
		}
		if value == "" {
			cfg.CredentialStore.Delete(providerID)
		} else {
			cfg.CredentialStore.Set(providerID, value)
		}
		if err := cfg.CredentialStore.Save(dataDir); err != nil {
			return fmt.Errorf("failed to persist credentials: %w", err)
		}
		return nil

	case "enabled", "base_url":
	default:
		return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	entry := findOrAddProvider(userCfg, providerID)
	switch fieldName {
	case "enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for enabled: %q", value)
		}
		entry.Enabled = enabled
	case "base_url":
		entry.BaseURL = value
	}

	if err := SaveUserConfig(userCfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cfg.Providers = userCfg.Providers
	return nil
}

func findOrAddProvider(cfg *UserConfig, providerID string) *ProviderConfig {
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			return &cfg.Providers[i]
		}
	}

	cfg.Providers = append(cfg.Providers, ProviderConfig{
		ID:      providerID,
		Name:    providerDisplayName(providerID),
		BaseURL: providerDefaultBaseURL(providerID),
	})
	return &cfg.Providers[len(cfg.Providers)-1]
}

func providerDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	default:
		return providerID
	}
}

func providerDefaultBaseURL(providerID string) string {
	for _, p := range DefaultUserConfig().Providers {
		if p.ID == providerID {
			return p.BaseURL
		}
	}
	return ""
}
