package main

import (
	"context"
	"fmt"
	"time"

	"finassist/chat"
	"finassist/config"
	"finassist/model"
	"finassist/orchestrator"
	"finassist/provider"
	"finassist/speech"
	"finassist/storage"
	"finassist/tools"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg      *config.Config
	store    *storage.Store
	archive  *storage.Archive
	registry *tools.Registry
	executor *tools.Executor

	// Set by loadModel.
	provider     model.Provider
	orchestrator *orchestrator.Orchestrator
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.InitDebugLog(cfg.DataDir())

	store, err := storage.NewStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	registry, err := tools.NewFinanceRegistry(tools.FinanceOptions{
		Currency:   cfg.Finance.Currency,
		Categories: cfg.Finance.Categories,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		executor: tools.NewExecutor(registry, store),
	}

	if cfg.Storage.ArchiveConversations {
		archive, err := storage.NewArchive(config.GetArchiveDir(cfg.DataDir()))
		if err != nil {
			store.Close()
			return nil, err
		}
		a.archive = archive
	}
	return a, nil
}

// loadModel connects the configured LLM backend.
func (a *app) loadModel() error {
	providers := provider.InitializeProviders(a.cfg)
	p, err := provider.Active(a.cfg, providers)
	if err != nil {
		return err
	}

	if err := provider.PingProvider(context.Background(), p, a.cfg.Assistant.Provider); err != nil {
		// Not fatal: the backend may come up later and every request reports its own failure.
		fmt.Printf("Warning: %v\n", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithToolsEnabled(a.cfg.Assistant.ToolsEnabled),
		orchestrator.WithCurrency(a.cfg.Finance.Currency),
	}
	if a.cfg.Assistant.SystemPrompt != "" {
		opts = append(opts, orchestrator.WithSystemPrompt(a.cfg.Assistant.SystemPrompt))
	}

	a.provider = p
	a.orchestrator = orchestrator.New(p, a.registry, opts...)
	config.Debugf("[Main] Using %s model %s (tools enabled: %v)", a.cfg.Assistant.Provider, p.GetModel(), a.cfg.Assistant.ToolsEnabled)
	return nil
}

func (a *app) sessionManager() *chat.Manager {
	sessionOpts := []chat.SessionOption{
		chat.WithMaxToolRounds(a.cfg.Assistant.MaxToolRounds),
		chat.WithModelName(a.provider.GetModel()),
	}
	if a.archive != nil {
		sessionOpts = append(sessionOpts, chat.WithArchive(a.archive))
	}
	return chat.NewManager(a.orchestrator, a.executor,
		chat.WithIdleTimeout(time.Duration(a.cfg.Server.SessionIdleMinutes)*time.Minute),
		chat.WithSessionOptions(sessionOpts...),
	)
}

// recognizerFactory returns nil when speech input is disabled.
func (a *app) recognizerFactory() func() speech.Recognizer {
	sc := a.cfg.Speech
	if !sc.Enabled {
		return nil
	}
	apiKey := a.cfg.APIKey(sc.Provider)
	return func() speech.Recognizer {
		return speech.NewRealtimeRecognizer(apiKey, sc.Model, sc.Language)
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		config.Debugf("[Main] Failed to close ledger: %v", err)
	}
}
