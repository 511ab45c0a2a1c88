package provider

import (
	"errors"
	"finassist/config"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
		wantAny bool
	}{
		{
			name:   "ollama with defaults",
			config: Config{Type: ProviderTypeOllama},
		},
		{
			name: "ollama with custom config",
			config: Config{
				Type:    ProviderTypeOllama,
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1",
			},
		},
		{
			name: "openai",
			config: Config{
				Type:   ProviderTypeOpenAI,
				Model:  "gpt-4o-mini",
				APIKey: "test-key",
			},
		},
		{
			name: "openrouter",
			config: Config{
				Type:   ProviderTypeOpenRouter,
				Model:  "openai/gpt-4o-mini",
				APIKey: "test-key",
			},
		},
		{
			name: "anthropic",
			config: Config{
				Type:   ProviderTypeAnthropic,
				APIKey: "test-key",
			},
		},
		{
			name:    "openai without key",
			config:  Config{Type: ProviderTypeOpenAI},
			wantErr: ErrNoAPIKey,
		},
		{
			name:    "anthropic without key",
			config:  Config{Type: ProviderTypeAnthropic},
			wantErr: ErrNoAPIKey,
		},
		{
			name:    "unknown type",
			config:  Config{Type: ProviderType("gemini")},
			wantErr: ErrUnknownProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p == nil {
				t.Fatal("NewProvider() returned nil provider")
			}
			if tt.config.Model != "" && p.GetModel() != tt.config.Model {
				t.Errorf("GetModel() = %q, want %q", p.GetModel(), tt.config.Model)
			}
		})
	}
}

func TestMapProviderIDToType(t *testing.T) {
	tests := []struct {
		id   string
		want ProviderType
	}{
		{"ollama", ProviderTypeOllama},
		{"openai", ProviderTypeOpenAI},
		{"openrouter", ProviderTypeOpenRouter},
		{"anthropic", ProviderTypeAnthropic},
		{"custom", ProviderType("custom")},
	}
	for _, tt := range tests {
		if got := MapProviderIDToType(tt.id); got != tt.want {
			t.Errorf("MapProviderIDToType(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestInitializeProvidersAndActive(t *testing.T) {
	t.Setenv("FINASSIST_OPENAI_API_KEY", "")
	t.Setenv("FINASSIST_ANTHROPIC_API_KEY", "")

	store := config.NewCredentialStore(config.SecurityPlainText, "")
	store.Set("openai", "sk-test")

	cfg := &config.Config{
		Assistant: config.AssistantConfig{Provider: "openai", Model: "gpt-4.1-mini"},
		Providers: []config.ProviderConfig{
			{ID: "openai", Enabled: true},
			{ID: "anthropic", Enabled: true},
			{ID: "ollama", Enabled: false},
		},
		CredentialStore: store,
	}

	providers := InitializeProviders(cfg)
	if _, ok := providers["openai"]; !ok {
		t.Fatal("expected openai to be initialized")
	}
	if _, ok := providers["anthropic"]; ok {
		t.Error("anthropic has no key and should be skipped")
	}
	if _, ok := providers["ollama"]; ok {
		t.Error("disabled provider should be skipped")
	}

	active, err := Active(cfg, providers)
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if active.GetModel() != "gpt-4.1-mini" {
		t.Errorf("expected configured model, got %q", active.GetModel())
	}

	cfg.Assistant.Provider = "anthropic"
	if _, err := Active(cfg, providers); !errors.Is(err, ErrProviderNotEnabled) {
		t.Errorf("expected ErrProviderNotEnabled, got %v", err)
	}
	cfg.Assistant.Provider = "missing"
	if _, err := Active(cfg, providers); !errors.Is(err, ErrProviderNotEnabled) {
		t.Errorf("expected ErrProviderNotEnabled, got %v", err)
	}
}
