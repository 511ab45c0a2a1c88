package provider

import (
	"context"
	"finassist/config"
	"finassist/model"
	"finassist/ollama"
	"fmt"
	"time"
)

const pingTimeout = 10 * time.Second

// PingProvider checks that a provider is reachable and its credentials work.
func PingProvider(ctx context.Context, p model.Provider, providerID string) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("connection to %s failed: %w", providerID, err)
	}

	config.Debugf("[Provider] Provider %s ping successful", providerID)
	return nil
}

// FetchModels lists the models a provider offers.
func FetchModels(ctx context.Context, p model.Provider, providerID string) ([]ollama.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	config.Debugf("[Provider] Fetched %d models from provider %s", len(models), providerID)
	return models, nil
}
