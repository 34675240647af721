package services

import (
	"fmt"
	"sync"

	"ntropiq/internal/logger"
)

// Supported providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ClientFactory creates and caches text clients by provider and API key.
type ClientFactory struct {
	opts    ClientOptions
	mu      sync.RWMutex
	clients map[string]TextClient
}

// NewClientFactory creates an empty factory. opts is applied to every client it creates.
func NewClientFactory(opts ClientOptions) *ClientFactory {
	return &ClientFactory{opts: opts, clients: make(map[string]TextClient)}
}

// Name returns the service name.
func (f *ClientFactory) Name() string {
	return "client_factory"
}

// Initialize satisfies ntropiqtypes.Service.
func (f *ClientFactory) Initialize() error {
	logger.ServiceOperation("client_factory", "initialize", "completed")
	return nil
}

// ClientFor returns the cached client for provider and apiKey, creating it if needed.
func (f *ClientFactory) ClientFor(provider, apiKey string) (TextClient, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty for provider '%s'", provider)
	}

	cacheKey := provider + ":" + apiKey
	f.mu.RLock()
	if client, ok := f.clients[cacheKey]; ok {
		f.mu.RUnlock()
		return client, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[cacheKey]; ok {
		return client, nil
	}

	var client TextClient
	switch provider {
	case ProviderGemini:
		client = NewGeminiClient(apiKey, f.opts)
	case ProviderOpenAI:
		client = NewOpenAIClient(apiKey, f.opts)
	case ProviderAnthropic:
		client = NewAnthropicClient(apiKey, f.opts)
	default:
		return nil, fmt.Errorf("unsupported provider '%s'. Supported providers: gemini, openai, anthropic", provider)
	}
	f.clients[cacheKey] = client
	logger.Debug("Created new provider client", "provider", provider)
	return client, nil
}
