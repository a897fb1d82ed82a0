package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable applyEnvOverrides reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WIKICHAT_PROVIDER", "WIKICHAT_MODEL", "WIKICHAT_STORAGE", "WIKICHAT_LOG_LEVEL",
		"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL",
		"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "DEEPSEEK_API_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != "groq" {
		t.Errorf("expected default provider 'groq', got %q", cfg.Provider)
	}
	if cfg.Sampling.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", cfg.Sampling.Temperature)
	}
	if cfg.Sampling.TopP != 1 {
		t.Errorf("expected top_p 1, got %v", cfg.Sampling.TopP)
	}
	if cfg.Sampling.MaxTokens != 31200 {
		t.Errorf("expected max_tokens 31200, got %d", cfg.Sampling.MaxTokens)
	}
	if cfg.Storage.Capacity != 5 {
		t.Errorf("expected capacity 5, got %d", cfg.Storage.Capacity)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("expected storage backend file, got %q", cfg.Storage.Backend)
	}
	if cfg.Wiki.APIURL != DefaultWikiAPIURL {
		t.Errorf("unexpected wiki api url %q", cfg.Wiki.APIURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Provider != "groq" {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	yaml := `
provider: openai
model: gpt-4o
providers:
  openai:
    api_key: "sk-test"
    base_url: "https://proxy.example/v1"
sampling:
  temperature: 0.2
  top_p: 0.9
  max_tokens: 2048
  timeout: 45s
wiki:
  api_url: "https://de.wikipedia.org/w/api.php"
  extract_format: markdown
  timeout: 5s
storage:
  backend: sqlite
  path: /tmp/chats.db
  capacity: 3
server:
  addr: "127.0.0.1:9000"
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "openai" || cfg.Model != "gpt-4o" {
		t.Errorf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
	pc := cfg.GetProviderConfig("openai")
	if pc.APIKey != "sk-test" || pc.BaseURL != "https://proxy.example/v1" {
		t.Errorf("openai provider config = %+v", pc)
	}
	if cfg.Sampling.Temperature != 0.2 || cfg.Sampling.TopP != 0.9 || cfg.Sampling.MaxTokens != 2048 {
		t.Errorf("sampling = %+v", cfg.Sampling)
	}
	if cfg.Sampling.Timeout != 45*time.Second {
		t.Errorf("sampling.timeout = %v, want 45s", cfg.Sampling.Timeout)
	}
	if cfg.Wiki.ExtractFormat != "markdown" || cfg.Wiki.Timeout != 5*time.Second {
		t.Errorf("wiki = %+v", cfg.Wiki)
	}
	// Unset keys keep their defaults.
	if cfg.Wiki.UserAgent != DefaultUserAgent {
		t.Errorf("wiki.user_agent = %q, want default", cfg.Wiki.UserAgent)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Capacity != 3 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.StoragePath() != "/tmp/chats.db" {
		t.Errorf("StoragePath() = %q", cfg.StoragePath())
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("provider: [unclosed"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("error = %v, want mention of storage.backend", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty provider", func(c *Config) { c.Provider = "" }},
		{"zero capacity", func(c *Config) { c.Storage.Capacity = 0 }},
		{"bad extract format", func(c *Config) { c.Wiki.ExtractFormat = "html" }},
		{"temperature too high", func(c *Config) { c.Sampling.Temperature = 2.5 }},
		{"zero top_p", func(c *Config) { c.Sampling.TopP = 0 }},
		{"zero max tokens", func(c *Config) { c.Sampling.MaxTokens = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WIKICHAT_PROVIDER", "deepseek")
	t.Setenv("LLM_API_KEY", "sk-generic")
	t.Setenv("LLM_MODEL", "deepseek-reasoner")
	t.Setenv("GROQ_API_KEY", "gsk-groq")
	t.Setenv("WIKICHAT_STORAGE", "SQLite")

	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "deepseek" {
		t.Errorf("provider = %q, want deepseek", cfg.Provider)
	}
	// LLM_API_KEY targets the provider selected by WIKICHAT_PROVIDER.
	if got := cfg.GetProviderConfig("deepseek").APIKey; got != "sk-generic" {
		t.Errorf("deepseek api key = %q, want sk-generic", got)
	}
	if got := cfg.GetProviderConfig("groq").APIKey; got != "gsk-groq" {
		t.Errorf("groq api key = %q, want gsk-groq", got)
	}
	if cfg.Model != "deepseek-reasoner" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("storage backend = %q, want sqlite", cfg.Storage.Backend)
	}
}

func TestVendorKeyDoesNotOverrideFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("providers:\n  groq:\n    api_key: from-file\n"), 0644)
	t.Setenv("GROQ_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.GetProviderConfig("groq").APIKey; got != "from-file" {
		t.Errorf("groq api key = %q, want from-file", got)
	}
}

func TestStoragePathDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.StoragePath(), filepath.Join(".wikichat", "chat_storage.json"); got != want {
		t.Errorf("file StoragePath() = %q, want %q", got, want)
	}
	cfg.Storage.Backend = "sqlite"
	if got, want := cfg.StoragePath(), filepath.Join(".wikichat", "chat_storage.db"); got != want {
		t.Errorf("sqlite StoragePath() = %q, want %q", got, want)
	}
}

func TestKnownProviders(t *testing.T) {
	if KnownProviderBaseURLs["groq"] != "https://api.groq.com/openai/v1" {
		t.Errorf("groq base url = %q", KnownProviderBaseURLs["groq"])
	}
	if KnownProviderModels["groq"] != "llama-3.3-70b-versatile" {
		t.Errorf("groq default model = %q", KnownProviderModels["groq"])
	}
	if _, ok := KnownProviderBaseURLs["anthropic"]; ok {
		t.Error("anthropic uses its native API and has no base url default")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Provider = "openai"
	cfg.Providers["openai"] = &ProviderConfig{APIKey: "sk-x"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config perm = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Provider != "openai" || loaded.GetProviderConfig("openai").APIKey != "sk-x" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.Sampling.Timeout != 120*time.Second {
		t.Errorf("sampling.timeout = %v after round trip", loaded.Sampling.Timeout)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("WIKICHAT_PROVIDER=openai\nOPENAI_API_KEY=sk-dotenv\n"), 0600)
	t.Setenv("WIKICHAT_MODEL", "kept")
	os.WriteFile(filepath.Join(dir, ".env2"), []byte("WIKICHAT_MODEL=overwritten\n"), 0600)

	if err := LoadDotEnv(path, filepath.Join(dir, ".env2")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("provider = %q, want openai from .env", cfg.Provider)
	}
	if got := cfg.GetProviderConfig("openai").APIKey; got != "sk-dotenv" {
		t.Errorf("openai api key = %q", got)
	}
	if cfg.Model != "kept" {
		t.Errorf("model = %q, existing variables must win over .env", cfg.Model)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
