package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formagent/internal/apperr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 4, cfg.Retrieval.AskK)
	assert.Equal(t, 8, cfg.Retrieval.AnalyzeK)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "ollama", cfg.Generator.Type)
	assert.Equal(t, "mistral", cfg.Generator.Ollama.Model)
	assert.Equal(t, 0.3, cfg.Generator.Temperature)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
chunker:
  chunk_size: 500
  chunk_overlap: 50
generator:
  type: openai
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 6000, cfg.Prompt.ContextBudget)
	require.NotNil(t, cfg.Generator.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Generator.OpenAI.APIKeyEnv)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.OpenAI.Model)
}

func TestLoad_AnalyzeKNeverBelowAskK(t *testing.T) {
	path := writeConfig(t, `
retrieval:
  ask_k: 6
  analyze_k: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Retrieval.AnalyzeK)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "overlap not smaller than size",
			body: "chunker:\n  chunk_size: 100\n  chunk_overlap: 100\n",
		},
		{
			name: "unknown embedder",
			body: "embedder:\n  type: word2vec\n",
		},
		{
			name: "bad log level",
			body: "log:\n  level: loud\n",
		},
		{
			name: "malformed yaml",
			body: "chunker: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConfig))
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Generator.Type = "gemini"
	applyConfigDefaults(cfg)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", loaded.Generator.Type)
	assert.Equal(t, "GOOGLE_API_KEY", loaded.Generator.Gemini.APIKeyEnv)
}
