package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/solidity-sentinel/internal/domain/ai"
)

const probeTimeout = 5 * time.Second

// Client adapts an OpenAI-compatible chat-completions server (vLLM,
// LM Studio, llama.cpp server) to the model-client port. Used when
// ai.provider is set to "openai" in config.
type Client struct {
	api *openai.Client
}

// NewClient builds a client. baseURL points at the compatible server's
// /v1 root; apiKey may be empty for local servers.
func NewClient(baseURL, apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// CheckAvailability lists models with a short deadline. Any failure is
// reported as unavailable.
func (c *Client) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := c.api.ListModels(ctx)
	return err == nil
}

// Generate runs one chat completion with the system and user prompts as
// separate messages.
func (c *Client) Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ai.ErrAIService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ai.ErrAIService)
	}
	return resp.Choices[0].Message.Content, nil
}
