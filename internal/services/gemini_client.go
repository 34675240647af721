package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"ntropiq/internal/logger"
)

// GeminiClient implements TextClient for the Google Gemini API.
type GeminiClient struct {
	apiKey string
	opts   ClientOptions

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini client. The SDK client is created on the first request.
func NewGeminiClient(apiKey string, opts ClientOptions) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, opts: opts}
}

// ProviderName returns "gemini".
func (c *GeminiClient) ProviderName() string {
	return "gemini"
}

// IsConfigured returns true if the client has an API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}

	cfg := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.opts.HTTPClient != nil {
		cfg.HTTPClient = c.opts.HTTPClient
	}
	if c.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	logger.Debug("Gemini client initialized", "provider", "gemini")
	c.client = client
	return client, nil
}

// Generate sends prompt as a single user turn and returns the concatenated text parts.
// Thought parts are skipped.
func (c *GeminiClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	client, err := c.initializeClientIfNeeded(ctx)
	if err != nil {
		return "", err
	}

	logger.Debug("Sending Gemini request", "model", model, "prompt_length", len(prompt))
	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	var text strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	logger.Debug("Gemini response received", "content_length", text.Len())
	return text.String(), nil
}
