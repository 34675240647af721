package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ntropiq/internal/logger"
)

// DefaultHTTPTimeout bounds a request when the caller's context has no deadline.
const DefaultHTTPTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// HTTPRequestService sends HTTP requests for the REST collaborators.
type HTTPRequestService struct {
	timeout time.Duration
	client  *http.Client
}

// HTTPRequest represents an HTTP request configuration.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response.
type HTTPResponse struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NewHTTPRequestService creates a service using client, or a default client when nil.
func NewHTTPRequestService(client *http.Client, timeout time.Duration) *HTTPRequestService {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPRequestService{client: client, timeout: timeout}
}

// Name returns the service name "http_request" for registration.
func (h *HTTPRequestService) Name() string {
	return "http_request"
}

// Initialize satisfies ntropiqtypes.Service.
func (h *HTTPRequestService) Initialize() error {
	logger.Debug("HTTPRequestService initialized", "timeout", h.timeout.String())
	return nil
}

// SendRequest sends request and reads the whole response. Non-2xx statuses are not errors.
func (h *HTTPRequestService) SendRequest(ctx context.Context, request HTTPRequest) (*HTTPResponse, error) {
	if request.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodGet
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var body io.Reader
	if request.Body != nil {
		body = bytes.NewReader(request.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, request.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, value := range request.Headers {
		httpReq.Header.Set(key, value)
	}

	logger.Debug("Starting HTTP request", "method", method, "url", request.URL, "has_body", request.Body != nil)
	resp, err := h.client.Do(httpReq)
	if err != nil {
		logger.Error("Failed to execute HTTP request", "error", err, "method", method, "url", request.URL)
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	logger.Debug("HTTP request completed", "method", method, "url", request.URL,
		"status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header,
		Body:       bodyBytes,
	}, nil
}
