package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// DefaultAPITimeout bounds each REST collaborator call.
const DefaultAPITimeout = 60 * time.Second

// APIClient implements the collaborator contracts against the ntropiq HTTP API.
type APIClient struct {
	baseURL string
	timeout time.Duration
	http    *HTTPRequestService
}

// NewAPIClient creates a client for the API served at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration, httpService *HTTPRequestService) *APIClient {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	if httpService == nil {
		httpService = NewHTTPRequestService(nil, timeout)
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    httpService,
	}
}

// Name returns the service name.
func (c *APIClient) Name() string {
	return "api_client"
}

// Initialize fails without a base URL.
func (c *APIClient) Initialize() error {
	if c.baseURL == "" {
		return fmt.Errorf("api client: base URL is required")
	}
	return nil
}

// GenerateReply calls POST /api/chat.
func (c *APIClient) GenerateReply(ctx context.Context, message string) ntropiqtypes.Result {
	var out struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/chat", map[string]string{"message": message}, &out); err != nil {
		return ntropiqtypes.Result{Err: err}
	}
	return textResult(out.Response)
}

// GenerateInsights calls POST /api/notebook/insights.
func (c *APIClient) GenerateInsights(ctx context.Context, query string) ntropiqtypes.Result {
	var out struct {
		Insights string `json:"insights"`
	}
	if err := c.postJSON(ctx, "/api/notebook/insights", map[string]string{"query": query}, &out); err != nil {
		return ntropiqtypes.Result{Err: err}
	}
	return textResult(out.Insights)
}

// AnalyzeCode calls POST /api/notebook/analyze.
func (c *APIClient) AnalyzeCode(ctx context.Context, code, language string) ntropiqtypes.Result {
	var out struct {
		Analysis string `json:"analysis"`
	}
	body := map[string]string{"code": code, "language": language}
	if err := c.postJSON(ctx, "/api/notebook/analyze", body, &out); err != nil {
		return ntropiqtypes.Result{Err: err}
	}
	return textResult(out.Analysis)
}

// Synthesize calls POST /api/voice/tts and returns the audio bytes.
func (c *APIClient) Synthesize(ctx context.Context, req ntropiqtypes.SpeechRequest) ntropiqtypes.AudioResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, cerr := c.send(ctx, "/api/voice/tts", req)
	if cerr != nil {
		return ntropiqtypes.AudioResult{Err: cerr}
	}
	if len(resp.Body) == 0 {
		return audioFail(ntropiqtypes.ErrEmpty, "no audio in response", nil)
	}
	return ntropiqtypes.AudioResult{Audio: resp.Body, ContentType: resp.Headers.Get("Content-Type")}
}

func (c *APIClient) postJSON(ctx context.Context, path string, in, out interface{}) *ntropiqtypes.CollaboratorError {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, cerr := c.send(ctx, path, in)
	if cerr != nil {
		return cerr
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &ntropiqtypes.CollaboratorError{Kind: ntropiqtypes.ErrDecode, Message: "malformed response from " + path, Cause: err}
	}
	return nil
}

func (c *APIClient) send(ctx context.Context, path string, in interface{}) (*HTTPResponse, *ntropiqtypes.CollaboratorError) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, &ntropiqtypes.CollaboratorError{Kind: ntropiqtypes.ErrInvalid, Message: "encode request", Cause: err}
	}
	resp, err := c.http.SendRequest(ctx, HTTPRequest{
		Method:  http.MethodPost,
		URL:     c.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &ntropiqtypes.CollaboratorError{Kind: ntropiqtypes.ErrTimeout, Message: path + " timed out", Cause: ctx.Err()}
		}
		return nil, ntropiqtypes.Classify(ntropiqtypes.ErrTransport, path+" request failed", err)
	}
	if !resp.OK() {
		logger.Error("Collaborator request failed", "route", path, "status", resp.StatusCode)
		return nil, &ntropiqtypes.CollaboratorError{
			Kind:    ntropiqtypes.ErrStatus,
			Message: fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, errorMessage(resp.Body)),
		}
	}
	return resp, nil
}

func textResult(text string) ntropiqtypes.Result {
	if strings.TrimSpace(text) == "" {
		return ntropiqtypes.Fail(ntropiqtypes.ErrEmpty, "response has no text", nil)
	}
	return ntropiqtypes.Ok(text)
}

// errorMessage pulls the "error" field out of an API error body when there is one.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
