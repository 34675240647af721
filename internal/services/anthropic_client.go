package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ntropiq/internal/logger"
)

// anthropicMaxTokens caps replies; the assistant prompts ask for short answers.
const anthropicMaxTokens = 1024

// AnthropicClient implements TextClient for the Anthropic messages API.
type AnthropicClient struct {
	apiKey string
	opts   ClientOptions

	mu     sync.Mutex
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client with lazy initialization.
func NewAnthropicClient(apiKey string, opts ClientOptions) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey, opts: opts}
}

// ProviderName returns "anthropic".
func (c *AnthropicClient) ProviderName() string {
	return "anthropic"
}

// IsConfigured returns true if the client has an API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *AnthropicClient) initializeClientIfNeeded() (*anthropic.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}

	options := []option.RequestOption{option.WithAPIKey(c.apiKey), option.WithMaxRetries(0)}
	if c.opts.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(c.opts.HTTPClient))
	}
	if c.opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(c.opts.BaseURL))
	}
	client := anthropic.NewClient(options...)
	c.client = &client
	logger.Debug("Anthropic client initialized", "provider", "anthropic")
	return c.client, nil
}

// Generate sends prompt as a single user message and joins the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	client, err := c.initializeClientIfNeeded()
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	logger.Debug("Sending Anthropic request", "model", model)
	message, err := client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic request failed", "error", err)
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	logger.Debug("Anthropic response received", "content_length", content.Len())
	return content.String(), nil
}
