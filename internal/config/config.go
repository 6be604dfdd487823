package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"formagent/internal/apperr"
)

// OpenAIConfig holds configuration for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	ServerURL string `yaml:"server_url"`
	Model     string `yaml:"model"`
}

// GeminiConfig holds configuration for the Gemini API.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type" validate:"oneof=tfidf openai ollama"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
}

// GeneratorConfig selects and configures the language model.
type GeneratorConfig struct {
	Type        string        `yaml:"type" validate:"oneof=ollama openai gemini"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSecs int           `yaml:"timeout_secs" validate:"gt=0"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty"`
}

// ChunkerConfig configures how pages are split into passages.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// RetrievalConfig sets the retrieval fan-out per answering mode.
type RetrievalConfig struct {
	AskK     int `yaml:"ask_k" validate:"gt=0"`
	AnalyzeK int `yaml:"analyze_k" validate:"gt=0"`
}

// PromptConfig configures prompt assembly.
type PromptConfig struct {
	ContextBudget int `yaml:"context_budget" validate:"gt=0"`
}

// SummaryConfig configures passage selection for summaries.
type SummaryConfig struct {
	Sample            int `yaml:"sample" validate:"gt=0"`
	PerDocument       int `yaml:"per_document" validate:"gt=0"`
	OverviewSentences int `yaml:"overview_sentences" validate:"gte=0"`
}

// ServerConfig configures the optional HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   string `yaml:"file"`
}

// LoaderConfig configures document loading.
type LoaderConfig struct {
	UnidocLicenseEnv string `yaml:"unidoc_license_env"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Summary   SummaryConfig   `yaml:"summary"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Loader    LoaderConfig    `yaml:"loader"`
}

var validate = validator.New()

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperr.Config(fmt.Sprintf("parse %s", path), err)
	}
	applyConfigDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/formagent/config.yaml.
// If neither exists, it writes defaults to ~/.config/formagent/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints and reports violations as a config error.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return apperr.Config("invalid configuration", err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "formagent", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Chunker:   ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Embedder:  EmbedderConfig{Type: "tfidf"},
		Generator: GeneratorConfig{Type: "ollama", Temperature: 0.3, TimeoutSecs: 120, Ollama: &OllamaConfig{Model: "mistral"}},
		Retrieval: RetrievalConfig{AskK: 4, AnalyzeK: 8},
		Prompt:    PromptConfig{ContextBudget: 6000},
		Summary:   SummaryConfig{Sample: 8, PerDocument: 5, OverviewSentences: 3},
		Server:    ServerConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info", Format: "console"},
		Loader:    LoaderConfig{UnidocLicenseEnv: "UNIDOC_LICENSE_KEY"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}
	if cfg.Retrieval.AnalyzeK < cfg.Retrieval.AskK {
		cfg.Retrieval.AnalyzeK = cfg.Retrieval.AskK
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
	}
	switch cfg.Generator.Type {
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		if cfg.Generator.Ollama.Model == "" {
			cfg.Generator.Ollama.Model = "mistral"
		}
	case "gemini":
		if cfg.Generator.Gemini == nil {
			cfg.Generator.Gemini = &GeminiConfig{}
		}
		if cfg.Generator.Gemini.APIKeyEnv == "" {
			cfg.Generator.Gemini.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if cfg.Generator.Gemini.Model == "" {
			cfg.Generator.Gemini.Model = "gemini-2.5-flash"
		}
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}
