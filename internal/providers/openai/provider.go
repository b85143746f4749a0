package openai

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/shopdesk/shopdesk-backend/internal/config"
	"github.com/shopdesk/shopdesk-backend/internal/providers"
)

// Provider implements the OpenAI provider
type Provider struct {
	id     string
	config config.ProviderConfig
	client *openai.Client
}

// NewProvider creates a new OpenAI provider
func NewProvider(id string, cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &Provider{
		id:     id,
		config: cfg,
		client: openai.NewClient(cfg.APIKey),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.config.Name
}

// Complete performs a non-streaming completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	openAIReq := p.convertRequest(req)
	openAIReq.Stream = false

	resp, err := p.client.CreateChatCompletion(ctx, openAIReq)
	if err != nil {
		return nil, err
	}

	out := &providers.CompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}

	return out, nil
}

// StreamComplete performs a streaming completion
func (p *Provider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	openAIReq := p.convertRequest(req)
	openAIReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, openAIReq)
	if err != nil {
		return nil, err
	}

	chunks := make(chan providers.StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				chunks <- providers.StreamChunk{FinishReason: "stop"}
				return
			}
			if err != nil {
				chunks <- providers.StreamChunk{Err: err}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]

			chunk := providers.StreamChunk{
				ID:    response.ID,
				Model: response.Model,
				Delta: choice.Delta.Content,
			}
			if choice.FinishReason != "" {
				chunk.FinishReason = string(choice.FinishReason)
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}

			if chunk.FinishReason != "" {
				return
			}
		}
	}()

	return chunks, nil
}

// convertRequest converts internal request to OpenAI request
func (p *Provider) convertRequest(req providers.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}

	openAIReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	if req.Temperature != nil {
		openAIReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openAIReq.MaxTokens = *req.MaxTokens
	}

	return openAIReq
}
