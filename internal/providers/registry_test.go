package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeProvider struct{ name string }

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "ok"}, nil
}

func (p *fakeProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk)
	close(out)
	return out, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Has("groq"))
	assert.Nil(t, r.Get("groq"))
	assert.Empty(t, r.List())

	r.Register("groq", &fakeProvider{name: "Groq"})
	r.Register("openai", &fakeProvider{name: "OpenAI"})

	assert.True(t, r.Has("groq"))
	assert.Equal(t, "Groq", r.Get("groq").Name())
	assert.ElementsMatch(t, []string{"groq", "openai"}, r.List())

	r.Unregister("groq")
	assert.False(t, r.Has("groq"))
	assert.True(t, r.Has("openai"))
}
