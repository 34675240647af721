package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// ElevenLabs defaults.
const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID           = "21m00Tcm4TlvDq8ikWAM"
	DefaultTTSModelID        = "eleven_multilingual_v2"
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ElevenLabsConfig configures an ElevenLabsClient. Empty fields select the defaults.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

// ElevenLabsClient implements ntropiqtypes.SpeechSynthesizer with the ElevenLabs API.
type ElevenLabsClient struct {
	cfg  ElevenLabsConfig
	http *HTTPRequestService
}

// NewElevenLabsClient creates a speech client.
func NewElevenLabsClient(cfg ElevenLabsConfig, httpService *HTTPRequestService) *ElevenLabsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsBaseURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultTTSModelID
	}
	if httpService == nil {
		httpService = NewHTTPRequestService(nil, 0)
	}
	return &ElevenLabsClient{cfg: cfg, http: httpService}
}

// Name returns the service name.
func (c *ElevenLabsClient) Name() string {
	return "elevenlabs"
}

// Initialize fails when no API key is set.
func (c *ElevenLabsClient) Initialize() error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("elevenlabs: %w", ErrNotConfigured)
	}
	return nil
}

// IsConfigured reports whether an API key is set.
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.cfg.APIKey != ""
}

// Synthesize converts req.Text to mp3 audio.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req ntropiqtypes.SpeechRequest) ntropiqtypes.AudioResult {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return audioFail(ntropiqtypes.ErrInvalid, "text is required", nil)
	}
	if c.cfg.APIKey == "" {
		return audioFail(ntropiqtypes.ErrUnconfigured, "missing ElevenLabs API key", nil)
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.cfg.VoiceID
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.cfg.ModelID
	}

	body, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       modelID,
		VoiceSettings: voiceSettings{Stability: 0.4, SimilarityBoost: 0.8},
	})
	if err != nil {
		return audioFail(ntropiqtypes.ErrInvalid, "encode request", err)
	}

	resp, err := c.http.SendRequest(ctx, HTTPRequest{
		Method: http.MethodPost,
		URL:    strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID),
		Headers: map[string]string{
			"xi-api-key":   c.cfg.APIKey,
			"Content-Type": "application/json",
			"Accept":       "audio/mpeg",
		},
		Body: body,
	})
	if err != nil {
		return ntropiqtypes.AudioResult{Err: ntropiqtypes.Classify(ntropiqtypes.ErrTransport, "TTS request failed", err)}
	}
	if !resp.OK() {
		logger.Error("TTS request failed", "status", resp.StatusCode, "details", string(resp.Body))
		return audioFail(ntropiqtypes.ErrStatus, fmt.Sprintf("TTS request failed with status %d", resp.StatusCode), nil)
	}
	if len(resp.Body) == 0 {
		return audioFail(ntropiqtypes.ErrEmpty, "TTS returned no audio", nil)
	}
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return ntropiqtypes.AudioResult{Audio: resp.Body, ContentType: contentType}
}

func audioFail(kind ntropiqtypes.ErrorKind, message string, cause error) ntropiqtypes.AudioResult {
	return ntropiqtypes.AudioResult{Err: &ntropiqtypes.CollaboratorError{Kind: kind, Message: message, Cause: cause}}
}
