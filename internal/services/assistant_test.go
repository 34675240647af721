package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntropiq/pkg/ntropiqtypes"
)

type scriptedClient struct {
	configured bool
	text       string
	err        error
	prompts    []string
	models     []string
}

func (c *scriptedClient) ProviderName() string { return "scripted" }
func (c *scriptedClient) IsConfigured() bool   { return c.configured }

func (c *scriptedClient) Generate(_ context.Context, model, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	c.models = append(c.models, model)
	return c.text, c.err
}

func TestAssistant_Initialize(t *testing.T) {
	assert.ErrorIs(t, NewAssistant(nil, "").Initialize(), ErrNotConfigured)
	assert.ErrorIs(t, NewAssistant(&scriptedClient{}, "").Initialize(), ErrNotConfigured)
	assert.NoError(t, NewAssistant(&scriptedClient{configured: true}, "").Initialize())
	assert.Equal(t, "assistant", NewAssistant(nil, "").Name())
}

func TestAssistant_GenerateReply(t *testing.T) {
	client := &scriptedClient{configured: true, text: "Hello!"}
	assistant := NewAssistant(client, "")

	result := assistant.GenerateReply(context.Background(), "hi")
	require.True(t, result.OK())
	assert.Equal(t, "Hello!", result.Text)
	assert.Equal(t, []string{DefaultModel}, client.models)
	assert.Equal(t, ChatPrompt("hi"), client.prompts[0])
}

func TestAssistant_GenerateInsights_UsesModel(t *testing.T) {
	client := &scriptedClient{configured: true, text: "Revenue grew"}
	assistant := NewAssistant(client, "gpt-4o-mini")

	result := assistant.GenerateInsights(context.Background(), "show revenue by region")
	require.True(t, result.OK())
	assert.Equal(t, []string{"gpt-4o-mini"}, client.models)
	assert.Equal(t, InsightPrompt("show revenue by region"), client.prompts[0])
}

func TestAssistant_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		text string
		want ntropiqtypes.ErrorKind
	}{
		{"transport", errors.New("connection refused"), "", ntropiqtypes.ErrTransport},
		{"not configured", fmt.Errorf("gemini: %w", ErrNotConfigured), "", ntropiqtypes.ErrUnconfigured},
		{"empty response", fmt.Errorf("openai: %w", ErrEmptyResponse), "", ntropiqtypes.ErrEmpty},
		{"deadline", fmt.Errorf("request failed: %w", context.DeadlineExceeded), "", ntropiqtypes.ErrTimeout},
		{"blank text", nil, "   ", ntropiqtypes.ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assistant := NewAssistant(&scriptedClient{configured: true, text: tt.text, err: tt.err}, "")
			result := assistant.GenerateReply(context.Background(), "hello there, analyze this")
			require.False(t, result.OK())
			assert.Equal(t, tt.want, result.Err.Kind)
		})
	}
}

func TestAssistant_Unconfigured(t *testing.T) {
	client := &scriptedClient{}
	result := NewAssistant(client, "").GenerateInsights(context.Background(), "anything at all")
	require.False(t, result.OK())
	assert.Equal(t, ntropiqtypes.ErrUnconfigured, result.Err.Kind)
	assert.Empty(t, client.prompts)
}

func TestAssistant_AnalyzeCode(t *testing.T) {
	t.Run("success defaults language", func(t *testing.T) {
		client := &scriptedClient{configured: true, text: "Prints one."}
		result := NewAssistant(client, "").AnalyzeCode(context.Background(), "print(1)", "")
		require.True(t, result.OK())
		assert.Equal(t, "Prints one.", result.Text)
		assert.Equal(t, AnalysisPrompt("print(1)", "python"), client.prompts[0])
	})

	t.Run("failure yields guidance text", func(t *testing.T) {
		client := &scriptedClient{configured: true, err: errors.New("boom")}
		result := NewAssistant(client, "").AnalyzeCode(context.Background(), "SELECT", "sql")
		require.True(t, result.OK())
		assert.Equal(t, AnalysisErrorText("sql"), result.Text)
	})

	t.Run("timeout stays a failure", func(t *testing.T) {
		client := &scriptedClient{configured: true, err: context.DeadlineExceeded}
		result := NewAssistant(client, "").AnalyzeCode(context.Background(), "x = 1", "python")
		require.False(t, result.OK())
		assert.Equal(t, ntropiqtypes.ErrTimeout, result.Err.Kind)
		assert.True(t, result.Err.Retryable())
	})
}
