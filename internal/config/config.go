// Package config loads and manages wikichat configuration.
// Configuration source priority (highest to lowest):
// 1. Command-line flags (applied by cmd)
// 2. Environment variables (LLM_API_KEY, GROQ_API_KEY, WIKICHAT_PROVIDER, etc.),
//    including values loaded from a .env file
// 3. Config file path specified via --config flag
// 4. ~/.config/wikichat/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded provider table.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SamplingConfig holds the fixed sampling parameters for answer synthesis.
type SamplingConfig struct {
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WikiConfig holds settings for the Wikipedia retriever.
type WikiConfig struct {
	// APIURL is the MediaWiki Action API endpoint.
	APIURL string `yaml:"api_url"`

	UserAgent string `yaml:"user_agent"`

	// ExtractFormat: "text" (default) | "markdown"
	ExtractFormat string `yaml:"extract_format"`

	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects where chat sessions are persisted.
type StorageConfig struct {
	// Backend: "file" (default) | "sqlite"
	Backend string `yaml:"backend"`

	// Path of the state file. Empty = .wikichat/chat_storage.json (or .db).
	Path string `yaml:"path"`

	// Capacity is the maximum number of sessions kept.
	Capacity int `yaml:"capacity"`
}

// ServerConfig holds settings for `wikichat serve`.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig controls the zerolog logger.
type LogConfig struct {
	// Level: "debug" | "info" | "warn" (default) | "error"
	Level string `yaml:"level"`

	// Format: "" (auto) | "console" | "json"
	Format string `yaml:"format"`

	// File appends logs to this path instead of stderr.
	File string `yaml:"file"`
}

// Config is the complete configuration structure for wikichat.
type Config struct {
	// Provider is the active provider name (e.g. "groq", "openai", "anthropic")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// SystemPrompt is a custom system prompt (empty uses default).
	SystemPrompt string `yaml:"system_prompt"`

	Sampling SamplingConfig `yaml:"sampling"`
	Wiki     WikiConfig     `yaml:"wiki"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

const (
	DefaultProvider    = "groq"
	DefaultCapacity    = 5
	DefaultWikiAPIURL  = "https://en.wikipedia.org/w/api.php"
	DefaultUserAgent   = "wikichat/1.0 (Wikipedia question answering CLI)"
	DefaultStorageDir  = ".wikichat"
	defaultStateFile   = "chat_storage.json"
	defaultStateDBFile = "chat_storage.db"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  DefaultProvider,
		Providers: make(map[string]*ProviderConfig),
		Sampling: SamplingConfig{
			Temperature: 0.5,
			TopP:        1,
			MaxTokens:   31200,
			Timeout:     120 * time.Second,
		},
		Wiki: WikiConfig{
			APIURL:        DefaultWikiAPIURL,
			UserAgent:     DefaultUserAgent,
			ExtractFormat: "text",
			Timeout:       30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "file",
			Capacity: DefaultCapacity,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// DefaultPath returns ~/.config/wikichat/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wikichat", "config.yaml"), nil
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if p, err := DefaultPath(); err == nil {
			configPath = p
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ./.env) into the
// process environment. Variables already set are not overwritten. A missing
// file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// Validate checks enumerations and numeric ranges.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be \"file\" or \"sqlite\", got %q", c.Storage.Backend)
	}
	if c.Storage.Capacity < 1 {
		return fmt.Errorf("storage.capacity must be >= 1, got %d", c.Storage.Capacity)
	}
	switch c.Wiki.ExtractFormat {
	case "text", "markdown":
	default:
		return fmt.Errorf("wiki.extract_format must be \"text\" or \"markdown\", got %q", c.Wiki.ExtractFormat)
	}
	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 2 {
		return fmt.Errorf("sampling.temperature must be within [0, 2], got %v", c.Sampling.Temperature)
	}
	if c.Sampling.TopP <= 0 || c.Sampling.TopP > 1 {
		return fmt.Errorf("sampling.top_p must be within (0, 1], got %v", c.Sampling.TopP)
	}
	if c.Sampling.MaxTokens <= 0 {
		return fmt.Errorf("sampling.max_tokens must be > 0, got %d", c.Sampling.MaxTokens)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// StoragePath returns the configured state path, or the default for the backend.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == "sqlite" {
		return filepath.Join(DefaultStorageDir, defaultStateDBFile)
	}
	return filepath.Join(DefaultStorageDir, defaultStateFile)
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// vendorKeyEnv maps provider names to their conventional API key variables.
var vendorKeyEnv = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
}

func (c *Config) provider(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first so the generic LLM_* variables target it.
	if v := os.Getenv("WIKICHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("WIKICHAT_MODEL"); v != "" {
		cfg.Model = v
	}

	// Vendor-specific keys never override a key from the config file.
	for name, env := range vendorKeyEnv {
		if v := os.Getenv(env); v != "" {
			pc := cfg.provider(name)
			if pc.APIKey == "" {
				pc.APIKey = v
			}
		}
	}

	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.provider(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.provider(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("WIKICHAT_STORAGE"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("WIKICHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// Save writes cfg to path as YAML with owner-only permissions.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
