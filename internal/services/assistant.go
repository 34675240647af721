package services

import (
	"context"
	"errors"
	"strings"

	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// Assistant answers chat messages, notebook queries and code cells with one text client.
type Assistant struct {
	client TextClient
	model  string
}

// NewAssistant creates an Assistant over client.
func NewAssistant(client TextClient, model string) *Assistant {
	if model == "" {
		model = DefaultModel
	}
	return &Assistant{client: client, model: model}
}

// Name returns the service name.
func (a *Assistant) Name() string {
	return "assistant"
}

// Initialize fails when the text client has no credentials.
func (a *Assistant) Initialize() error {
	if a.client == nil || !a.client.IsConfigured() {
		return ErrNotConfigured
	}
	logger.ServiceOperation("assistant", "initialize", "provider", a.client.ProviderName(), "model", a.model)
	return nil
}

// GenerateReply answers a single chat message.
func (a *Assistant) GenerateReply(ctx context.Context, message string) ntropiqtypes.Result {
	return a.generate(ctx, "reply", ChatPrompt(message))
}

// GenerateInsights answers a notebook prompt cell.
func (a *Assistant) GenerateInsights(ctx context.Context, query string) ntropiqtypes.Result {
	return a.generate(ctx, "insights", InsightPrompt(query))
}

// AnalyzeCode comments on a code cell. Model failures yield the fixed analysis
// error guidance as a successful result.
func (a *Assistant) AnalyzeCode(ctx context.Context, code, language string) ntropiqtypes.Result {
	if language == "" {
		language = "python"
	}
	result := a.generate(ctx, "analysis", AnalysisPrompt(code, language))
	if !result.OK() {
		if result.Err.Kind == ntropiqtypes.ErrTimeout {
			return result
		}
		return ntropiqtypes.Ok(AnalysisErrorText(language))
	}
	return result
}

func (a *Assistant) generate(ctx context.Context, operation, prompt string) ntropiqtypes.Result {
	if a.client == nil || !a.client.IsConfigured() {
		return ntropiqtypes.Fail(ntropiqtypes.ErrUnconfigured, "text generation is not configured", nil)
	}
	text, err := a.client.Generate(ctx, a.model, prompt)
	if err != nil {
		logger.Error("Text generation failed", "operation", operation, "provider", a.client.ProviderName(), "error", err)
		kind := ntropiqtypes.ErrTransport
		switch {
		case errors.Is(err, ErrNotConfigured):
			kind = ntropiqtypes.ErrUnconfigured
		case errors.Is(err, ErrEmptyResponse):
			kind = ntropiqtypes.ErrEmpty
		}
		return ntropiqtypes.FailFromError(kind, operation+" failed", err)
	}
	if strings.TrimSpace(text) == "" {
		return ntropiqtypes.Fail(ntropiqtypes.ErrEmpty, operation+" returned no text", nil)
	}
	return ntropiqtypes.Ok(text)
}
