package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntropiq/pkg/ntropiqtypes"
)

func TestElevenLabsClient_Synthesize(t *testing.T) {
	var captured struct {
		path    string
		key     string
		accept  string
		payload ttsRequest
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.key = r.Header.Get("xi-api-key")
		captured.accept = r.Header.Get("Accept")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured.payload)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer server.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "secret", BaseURL: server.URL}, nil)
	result := client.Synthesize(context.Background(), ntropiqtypes.SpeechRequest{Text: "  hello  "})

	require.True(t, result.OK(), "unexpected error: %v", result.Err)
	assert.Equal(t, []byte("ID3audio"), result.Audio)
	assert.Equal(t, "audio/mpeg", result.ContentType)
	assert.Equal(t, "/v1/text-to-speech/"+DefaultVoiceID, captured.path)
	assert.Equal(t, "secret", captured.key)
	assert.Equal(t, "audio/mpeg", captured.accept)
	assert.Equal(t, "hello", captured.payload.Text)
	assert.Equal(t, DefaultTTSModelID, captured.payload.ModelID)
	assert.Equal(t, 0.4, captured.payload.VoiceSettings.Stability)
	assert.Equal(t, 0.8, captured.payload.VoiceSettings.SimilarityBoost)
}

func TestElevenLabsClient_RequestOverrides(t *testing.T) {
	var path, model string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		var payload ttsRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		model = payload.ModelID
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: server.URL + "/"}, nil)
	result := client.Synthesize(context.Background(), ntropiqtypes.SpeechRequest{Text: "hi", VoiceID: "voice-2", ModelID: "turbo"})
	require.True(t, result.OK())
	assert.Equal(t, "/v1/text-to-speech/voice-2", path)
	assert.Equal(t, "turbo", model)
}

func stubServer(t *testing.T, status int, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func TestElevenLabsClient_Failures(t *testing.T) {
	t.Run("empty text makes no call", func(t *testing.T) {
		server, calls := stubServer(t, http.StatusOK, []byte("audio"))
		client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: server.URL}, nil)
		result := client.Synthesize(context.Background(), ntropiqtypes.SpeechRequest{Text: "   "})
		require.NotNil(t, result.Err)
		assert.Equal(t, ntropiqtypes.ErrInvalid, result.Err.Kind)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("missing key", func(t *testing.T) {
		server, calls := stubServer(t, http.StatusOK, []byte("audio"))
		client := NewElevenLabsClient(ElevenLabsConfig{BaseURL: server.URL}, nil)
		assert.False(t, client.IsConfigured())
		assert.ErrorIs(t, client.Initialize(), ErrNotConfigured)
		result := client.Synthesize(context.Background(), ntropiqtypes.SpeechRequest{Text: "hi"})
		require.NotNil(t, result.Err)
		assert.Equal(t, ntropiqtypes.ErrUnconfigured, result.Err.Kind)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("upstream status", func(t *testing.T) {
		server, calls := stubServer(t, http.StatusUnauthorized, []byte(`{"detail":"bad key"}`))
		client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: server.URL}, nil)
		result := client.Synthesize(context.Background(), ntropiqtypes.SpeechRequest{Text: "hi"})
		require.NotNil(t, result.Err)
		assert.Equal(t, ntropiqtypes.ErrStatus, result.Err.Kind)
		assert.False(t, result.Err.Retryable())
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("empty audio", func(t *testing.T) {
		server, _ := stubServer(t, http.StatusOK, nil)
		client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: server.URL}, nil)
		result := client.Synthesize(context.Background(), ntropiqtypes.SpeechRequest{Text: "hi"})
		require.NotNil(t, result.Err)
		assert.Equal(t, ntropiqtypes.ErrEmpty, result.Err.Kind)
	})
}
