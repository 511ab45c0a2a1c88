package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ServerConfig struct {
	Listen             string `toml:"listen"`
	AllowedOrigins     string `toml:"allowed_origins"`
	SessionIdleMinutes int    `toml:"session_idle_minutes"`
}

type AssistantConfig struct {
	Provider      string `toml:"provider"`
	Model         string `toml:"model"`
	ToolsEnabled  bool   `toml:"tools_enabled"`
	MaxToolRounds int    `toml:"max_tool_rounds"`
	SystemPrompt  string `toml:"system_prompt,omitempty"`
}

// ProviderConfig describes one LLM backend entry in the [[providers]] array.
type ProviderConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

type StorageConfig struct {
	Database             string `toml:"database"`
	ArchiveConversations bool   `toml:"archive_conversations"`
}

type SpeechConfig struct {
	Enabled  bool   `toml:"enabled"`
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

type FinanceConfig struct {
	Currency   string   `toml:"currency"`
	Categories []string `toml:"categories"`
}

type SecurityConfig struct {
	Method     string `toml:"method"`
	SSHKeyPath string `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	Server    ServerConfig     `toml:"server"`
	Assistant AssistantConfig  `toml:"assistant"`
	Providers []ProviderConfig `toml:"providers"`
	Storage   StorageConfig    `toml:"storage"`
	Speech    SpeechConfig     `toml:"speech"`
	Finance   FinanceConfig    `toml:"finance"`
	Security  SecurityConfig   `toml:"security"`
}

type Config struct {
	DataDirectory string
	Server        ServerConfig
	Assistant     AssistantConfig
	Providers     []ProviderConfig
	Storage       StorageConfig
	Speech        SpeechConfig
	Finance       FinanceConfig
	Security      SecurityConfig

	CredentialStore *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// DatabasePath resolves the ledger database; relative names live in the data directory.
func (c *Config) DatabasePath() string {
	db := c.Storage.Database
	if db == "" {
		db = "finance.db"
	}
	db = ExpandPath(db)
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(c.DataDir(), db)
}

// Provider returns the [[providers]] entry with the given ID.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// APIKey looks up the credential for a provider, falling back to
// FINASSIST_<ID>_API_KEY in the environment.
func (c *Config) APIKey(providerID string) string {
	if c.CredentialStore != nil {
		if key := c.CredentialStore.Get(providerID); key != "" {
			return key
		}
	}
	return os.Getenv(apiKeyEnvVar(providerID))
}

func apiKeyEnvVar(providerID string) string {
	id := strings.ToUpper(strings.ReplaceAll(providerID, "-", "_"))
	return "FINASSIST_" + id + "_API_KEY"
}

func (c *Config) applyUserConfig(userCfg *UserConfig) {
	c.Server = userCfg.Server
	c.Assistant = userCfg.Assistant
	c.Providers = userCfg.Providers
	c.Storage = userCfg.Storage
	c.Speech = userCfg.Speech
	c.Finance = userCfg.Finance
	c.Security = userCfg.Security
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("FINASSIST_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if listen := os.Getenv("FINASSIST_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if provider := os.Getenv("FINASSIST_PROVIDER"); provider != "" {
		c.Assistant.Provider = provider
	}
	if model := os.Getenv("FINASSIST_MODEL"); model != "" {
		c.Assistant.Model = model
	}
	if tools := os.Getenv("FINASSIST_TOOLS_ENABLED"); tools != "" {
		if enabled, err := strconv.ParseBool(tools); err == nil {
			c.Assistant.ToolsEnabled = enabled
		}
	}
}

// normalize fills zero values the TOML file may have left out.
func (c *Config) normalize() {
	defaults := DefaultUserConfig()
	if c.Server.Listen == "" {
		c.Server.Listen = defaults.Server.Listen
	}
	if c.Server.SessionIdleMinutes <= 0 {
		c.Server.SessionIdleMinutes = defaults.Server.SessionIdleMinutes
	}
	if c.Assistant.Provider == "" {
		c.Assistant.Provider = defaults.Assistant.Provider
	}
	if c.Assistant.MaxToolRounds < 0 {
		c.Assistant.MaxToolRounds = 0
	}
	if c.Storage.Database == "" {
		c.Storage.Database = defaults.Storage.Database
	}
	if c.Finance.Currency == "" {
		c.Finance.Currency = defaults.Finance.Currency
	}
	if len(c.Finance.Categories) == 0 {
		c.Finance.Categories = defaults.Finance.Categories
	}
	if c.Security.Method == "" {
		c.Security.Method = string(SecurityPlainText)
	}
}

func CheckDebug() bool {
	debug := os.Getenv("FINASSIST_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: the log may contain conversation excerpts
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (FINASSIST_DEBUG=%s) ===", os.Getenv("FINASSIST_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Debugf writes to the debug log when debug logging is enabled.
func Debugf(format string, args ...any) {
	if Debug && DebugLog != nil {
		DebugLog.Printf(format, args...)
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory: DefaultSystemConfig().DataDirectory,
	}

	if dataDir := os.Getenv("FINASSIST_DATA_DIR"); dataDir == "" {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory
	} else {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()
	cfg.normalize()

	store := NewCredentialStore(SecurityMethod(cfg.Security.Method), ExpandPath(cfg.Security.SSHKeyPath))
	if passphrase := os.Getenv("FINASSIST_SSH_PASSPHRASE"); passphrase != "" {
		store.SetPassphrase(passphrase)
	}
	if err := store.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cfg.CredentialStore = store

	return cfg, nil
}
