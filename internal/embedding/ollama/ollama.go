package ollama

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
)

type embeddingCreator interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// Embedder produces vectors from a local Ollama embedding model.
type Embedder struct {
	llm   embeddingCreator
	model string

	mu        sync.Mutex
	dimension int
}

// Config configures the Ollama embedder.
type Config struct {
	ServerURL string
	Model     string
}

// New connects the embedder to an Ollama server.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder init: %w", err)
	}
	return &Embedder{llm: llm, model: cfg.Model}, nil
}

func (e *Embedder) Name() string { return "ollama:" + e.model }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, errors.New("no embedding returned")
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out[0])
	}
	e.mu.Unlock()
	return out[0], nil
}
