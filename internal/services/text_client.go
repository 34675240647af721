// Package services provides the collaborators behind the ntropiq sessions: LLM text
// clients, prompt construction, the assistant, speech synthesis, the REST client and
// terminal markdown rendering.
package services

import (
	"context"
	"errors"
	"net/http"
)

// ErrNotConfigured is returned by a client that has no API key.
var ErrNotConfigured = errors.New("API key not configured")

// ErrEmptyResponse is returned when a provider answers without text.
var ErrEmptyResponse = errors.New("empty response content")

// TextClient generates text for a single prompt. Implementations create their SDK
// client lazily on first use.
type TextClient interface {
	ProviderName() string
	IsConfigured() bool
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ClientOptions overrides transport details, mainly for tests and proxies.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}
