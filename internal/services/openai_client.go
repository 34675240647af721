package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ntropiq/internal/logger"
)

// OpenAIClient implements TextClient for the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey string
	opts   ClientOptions

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI client with lazy initialization.
func NewOpenAIClient(apiKey string, opts ClientOptions) *OpenAIClient {
	return &OpenAIClient{apiKey: apiKey, opts: opts}
}

// ProviderName returns "openai".
func (c *OpenAIClient) ProviderName() string {
	return "openai"
}

// IsConfigured returns true if the client has an API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *OpenAIClient) initializeClientIfNeeded() (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
	}

	options := []option.RequestOption{option.WithAPIKey(c.apiKey), option.WithMaxRetries(0)}
	if c.opts.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(c.opts.HTTPClient))
	}
	if c.opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(c.opts.BaseURL))
	}
	client := openai.NewClient(options...)
	c.client = &client
	logger.Debug("OpenAI client initialized", "provider", "openai")
	return c.client, nil
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	client, err := c.initializeClientIfNeeded()
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	logger.Debug("Sending OpenAI request", "model", model)
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI request failed", "error", err)
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	content := completion.Choices[0].Message.Content
	logger.Debug("OpenAI response received", "content_length", len(content))
	return content, nil
}
