package embedding

import (
	"fmt"
	"time"

	"formagent/internal/config"
	"formagent/internal/domain"
	"formagent/internal/embedding/ollama"
	"formagent/internal/embedding/openai"
	"formagent/internal/embedding/tfidf"
)

// New builds the embedder selected by cfg.
func New(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama embedder config missing")
		}
		return ollama.New(ollama.Config{ServerURL: cfg.Ollama.ServerURL, Model: cfg.Ollama.Model})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}
