package llm

import (
	"context"
	"fmt"
	"time"

	"formagent/internal/config"
	"formagent/internal/domain"
	"formagent/internal/llm/gemini"
	"formagent/internal/llm/ollama"
	"formagent/internal/llm/openai"
)

// New builds the generator selected by cfg.
func New(ctx context.Context, cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "ollama", "":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama generator config missing")
		}
		return ollama.New(ollama.Config{
			ServerURL:   cfg.Ollama.ServerURL,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Temperature,
		})
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		return openai.New(openai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.Temperature,
			Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		})
	case "gemini":
		if cfg.Gemini == nil {
			return nil, fmt.Errorf("gemini generator config missing")
		}
		return gemini.New(ctx, gemini.Config{
			APIKeyEnv:   cfg.Gemini.APIKeyEnv,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}
