package providers

import (
	"context"
)

// Provider is the fixed capability every model vendor adapter implements.
// Callers never branch on vendor identity; differences in wire format stay
// inside the adapter.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete performs a non-streaming completion
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamComplete performs a streaming completion
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// CompletionRequest represents a chat completion request
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a non-streaming response
type CompletionResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk represents a chunk in a streaming response. A terminal chunk
// carries either a FinishReason or an Err, never both.
type StreamChunk struct {
	ID           string `json:"id,omitempty"`
	Model        string `json:"model,omitempty"`
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Err          error  `json:"-"`
}
