package main

import (
	"fmt"

	"ntropiq/internal/clock"
	"ntropiq/internal/config"
	"ntropiq/internal/conversation"
	"ntropiq/internal/logger"
	"ntropiq/internal/notebook"
	"ntropiq/internal/observability"
	"ntropiq/internal/services"
	"ntropiq/internal/store"
	"ntropiq/internal/testutils"
)

// app is the wired set of collaborators, storage and renderers shared by the commands.
type app struct {
	cfg      *config.Config
	store    *store.Store
	collab   observability.Collaborators
	registry *services.Registry
	markdown *services.MarkdownService
	ids      testutils.IDFunc
	clock    clock.Clock
}

// newApp opens storage and builds the collaborators. With client.base_url set, every
// collaborator goes through a running ntropiq server; otherwise the provider SDKs are
// called directly.
func newApp(cfg *config.Config, testMode bool) (*app, error) {
	kv, err := store.OpenKV(cfg.Storage.Driver, cfg.Storage.Path, logger.NewStyledLogger("Storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}

	a := &app{
		cfg:      cfg,
		store:    store.New(kv),
		registry: services.NewRegistry(),
		markdown: services.NewMarkdownService(""),
		ids:      testutils.IDs(testMode),
		clock:    clock.Real(),
	}

	if cfg.Client.BaseURL != "" {
		client := services.NewAPIClient(cfg.Client.BaseURL, cfg.Client.Timeout, nil)
		a.collab = observability.Collaborators{Reply: client, Insights: client, Analyzer: client, Speech: client}
		a.register(client)
	} else {
		factory := services.NewClientFactory(services.ClientOptions{})
		a.register(factory)
		if key := cfg.LLM.APIKey(); key != "" {
			textClient, err := factory.ClientFor(cfg.LLM.Provider, key)
			if err != nil {
				_ = a.store.Close()
				return nil, err
			}
			assistant := services.NewAssistant(textClient, cfg.LLM.Model)
			a.collab.Reply, a.collab.Insights, a.collab.Analyzer = assistant, assistant, assistant
			a.register(assistant)
		} else {
			logger.Warn("No API key configured; replies will use the fallback message", "provider", cfg.LLM.Provider)
		}
		if cfg.TTS.APIKey != "" {
			tts := services.NewElevenLabsClient(services.ElevenLabsConfig{
				APIKey:  cfg.TTS.APIKey,
				BaseURL: cfg.TTS.BaseURL,
				VoiceID: cfg.TTS.VoiceID,
				ModelID: cfg.TTS.ModelID,
			}, services.NewHTTPRequestService(nil, cfg.LLM.Timeout))
			a.collab.Speech = tts
			a.register(tts)
		}
	}

	a.register(a.markdown)
	for name, err := range a.registry.InitializeAll() {
		logger.Debug("Service unavailable", "service", name, "error", err)
	}
	return a, nil
}

func (a *app) register(s interface {
	Name() string
	Initialize() error
}) {
	if err := a.registry.RegisterService(s); err != nil {
		logger.Warn("Service registration failed", "error", err)
	}
}

func (a *app) conversationConfig(player conversation.AudioPlayer) conversation.Config {
	cfg := conversation.Config{
		Store:        a.store.Conversations,
		Reply:        a.collab.Reply,
		Player:       player,
		Clock:        a.clock,
		IDs:          a.ids,
		ReplyTimeout: a.cfg.LLM.Timeout,
		VoiceID:      a.cfg.TTS.VoiceID,
		ModelID:      a.cfg.TTS.ModelID,
	}
	if player != nil {
		cfg.Speech = a.collab.Speech
	}
	return cfg
}

func (a *app) notebookConfig() notebook.Config {
	return notebook.Config{
		Store:      a.store.Notebooks,
		Insights:   a.collab.Insights,
		Analyzer:   a.collab.Analyzer,
		Clock:      a.clock,
		IDs:        a.ids,
		RunTimeout: a.cfg.LLM.Timeout,
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

// openApp loads configuration and wires the app.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, testMode)
}
