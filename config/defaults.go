package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/finassist",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Server: ServerConfig{
			Listen:             ":8080",
			AllowedOrigins:     "*",
			SessionIdleMinutes: 30,
		},
		Assistant: AssistantConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			ToolsEnabled:  true,
			MaxToolRounds: 1,
		},
		Providers: []ProviderConfig{
			{ID: "openai", Name: "OpenAI", Enabled: true, BaseURL: "https://api.openai.com/v1"},
			{ID: "anthropic", Name: "Anthropic", Enabled: false, BaseURL: "https://api.anthropic.com"},
			{ID: "openrouter", Name: "OpenRouter", Enabled: false, BaseURL: "https://openrouter.ai/api/v1"},
			{ID: "ollama", Name: "Ollama", Enabled: false, BaseURL: "http://localhost:11434"},
		},
		Storage: StorageConfig{
			Database:             "finance.db",
			ArchiveConversations: true,
		},
		Speech: SpeechConfig{
			Enabled:  true,
			Provider: "openai",
			Model:    "gpt-4o-transcribe",
			Language: "es",
		},
		Finance: FinanceConfig{
			Currency: "EUR",
			Categories: []string{
				"Alimentación", "Transporte", "Vivienda", "Servicios", "Salud",
				"Entretenimiento", "Educación", "Ropa", "Salario", "Otros",
			},
		},
		Security: SecurityConfig{
			Method: string(SecurityPlainText),
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# finassist System Configuration
# Location: ~/.config/finassist/settings.toml
# This file uses TOML format: https://toml.io

# Directory where the ledger, archives and user config are stored
data_directory = "~/.local/share/finassist"
`
}

func GenerateUserConfigTemplate() string {
	return `# finassist User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[server]
listen = ":8080"
allowed_origins = "*"
# Conversations idle for longer than this are closed
session_idle_minutes = 30

[assistant]
# One of: openai, anthropic, openrouter, ollama
provider = "openai"
model = "gpt-4o-mini"
# Some backends/models cannot call tools; disable to send plain chat requests
tools_enabled = true
# How many tool round trips one user message may trigger
max_tool_rounds = 1
# Overrides the built-in assistant persona (optional)
system_prompt = ""

[[providers]]
id = "openai"
name = "OpenAI"
enabled = true
base_url = "https://api.openai.com/v1"

[[providers]]
id = "anthropic"
name = "Anthropic"
enabled = false
base_url = "https://api.anthropic.com"

[[providers]]
id = "openrouter"
name = "OpenRouter"
enabled = false
base_url = "https://openrouter.ai/api/v1"

[[providers]]
id = "ollama"
name = "Ollama"
enabled = false
base_url = "http://localhost:11434"

[storage]
# SQLite ledger, relative to the data directory unless absolute
database = "finance.db"
# Keep a JSON transcript of each conversation when it ends
archive_conversations = true

[speech]
enabled = true
provider = "openai"
model = "gpt-4o-transcribe"
language = "es"

[finance]
currency = "EUR"
categories = ["Alimentación", "Transporte", "Vivienda", "Servicios", "Salud", "Entretenimiento", "Educación", "Ropa", "Salario", "Otros"]

[security]
# "plaintext" (credentials.toml) or "ssh_key" (credentials.enc)
method = "plaintext"
`
}
