package ollama

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply  string
	err    error
	prompt string
	opts   llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.opts)
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				f.prompt += tp.Text
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerator_Generate(t *testing.T) {
	m := &fakeModel{reply: " Invoice B is due 2024-02-01. "}
	g := &Generator{llm: m, model: "mistral", temperature: 0.3}

	out, err := g.Generate(context.Background(), "When is B due?")
	require.NoError(t, err)
	assert.Equal(t, "Invoice B is due 2024-02-01.", out)
	assert.Equal(t, "When is B due?", m.prompt)
	assert.InDelta(t, 0.3, m.opts.Temperature, 1e-9)
	assert.Equal(t, "ollama:mistral", g.Name())
}

func TestGenerator_GenerateError(t *testing.T) {
	g := &Generator{llm: &fakeModel{err: errors.New("model not found")}, model: "mistral"}
	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "model not found")
}
