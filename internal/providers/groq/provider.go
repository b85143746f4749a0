package groq

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/shopdesk/shopdesk-backend/internal/config"
	"github.com/shopdesk/shopdesk-backend/internal/providers"
)

// Provider talks to Groq's OpenAI-compatible chat endpoint.
type Provider struct {
	id     string
	config config.ProviderConfig
	client *openai.Client
}

const defaultBaseURL = "https://api.groq.com/openai/v1"

// NewProvider creates a Groq provider.
func NewProvider(id string, cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Groq API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	} else {
		clientCfg.BaseURL = defaultBaseURL
	}

	return &Provider{
		id:     id,
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.config.Name
}

// Complete performs a non-streaming completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	groqReq := p.convertRequest(req)
	groqReq.Stream = false

	resp, err := p.client.CreateChatCompletion(ctx, groqReq)
	if err != nil {
		return nil, err
	}

	return convertResponse(&resp), nil
}

// StreamComplete performs a streaming completion
func (p *Provider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	groqReq := p.convertRequest(req)
	groqReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, groqReq)
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

// convertRequest converts the internal request to a Groq chat request
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

	groqReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	if req.Temperature != nil {
		groqReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		groqReq.MaxTokens = *req.MaxTokens
	}

	return groqReq
}

func convertResponse(resp *openai.ChatCompletionResponse) *providers.CompletionResponse {
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

	return out
}
