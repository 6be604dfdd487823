package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Config configures the Ollama generator.
type Config struct {
	ServerURL   string
	Model       string
	Temperature float64
}

// Generator runs prompts against a local Ollama model.
type Generator struct {
	llm         llms.Model
	model       string
	temperature float64
}

// New connects to the Ollama server. The model is not pulled or checked here.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama init: %w", err)
	}
	return &Generator{llm: llm, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (g *Generator) Name() string { return "ollama:" + g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}
