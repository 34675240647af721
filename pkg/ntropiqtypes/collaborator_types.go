// Package ntropiqtypes defines the collaborator contracts consumed by the sessions.
// Collaborators report outcomes as Result values rather than trusting response shapes.
package ntropiqtypes

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a collaborator failure.
type ErrorKind string

// Collaborator failure kinds.
const (
	ErrTransport    ErrorKind = "transport"
	ErrStatus       ErrorKind = "status"
	ErrDecode       ErrorKind = "decode"
	ErrEmpty        ErrorKind = "empty"
	ErrTimeout      ErrorKind = "timeout"
	ErrUnconfigured ErrorKind = "unconfigured"
	ErrInvalid      ErrorKind = "invalid"
)

// CollaboratorError describes why a collaborator call did not produce a result.
type CollaboratorError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CollaboratorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CollaboratorError) Unwrap() error { return e.Cause }

// Retryable reports whether a new attempt could succeed without changing the input.
func (e *CollaboratorError) Retryable() bool {
	return e.Kind == ErrTimeout || e.Kind == ErrTransport
}

// Result is the outcome of a text-producing collaborator call.
// Exactly one of Text or Err is meaningful.
type Result struct {
	Text string
	Err  *CollaboratorError
}

// Ok wraps a successful text result.
func Ok(text string) Result { return Result{Text: text} }

// Fail builds a failed result.
func Fail(kind ErrorKind, message string, cause error) Result {
	return Result{Err: &CollaboratorError{Kind: kind, Message: message, Cause: cause}}
}

// FailFromError classifies err, mapping context deadlines to ErrTimeout.
func FailFromError(fallback ErrorKind, message string, err error) Result {
	return Result{Err: Classify(fallback, message, err)}
}

// Classify converts err into a CollaboratorError.
func Classify(fallback ErrorKind, message string, err error) *CollaboratorError {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce
	}
	kind := fallback
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &CollaboratorError{Kind: kind, Message: message, Cause: err}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// AudioResult is the outcome of a speech synthesis call.
type AudioResult struct {
	Audio       []byte
	ContentType string
	Err         *CollaboratorError
}

// OK reports whether audio was produced.
func (r AudioResult) OK() bool { return r.Err == nil && len(r.Audio) > 0 }

// SpeechRequest asks for text to be synthesised. Empty VoiceID and ModelID select defaults.
type SpeechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId,omitempty"`
	ModelID string `json:"modelId,omitempty"`
}

// ReplyGenerator produces an assistant reply for a single user message.
// It is stateless per call: no conversation history is sent.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, message string) Result
}

// InsightGenerator answers a natural-language notebook query.
type InsightGenerator interface {
	GenerateInsights(ctx context.Context, query string) Result
}

// CodeAnalyzer comments on the code of a notebook cell.
type CodeAnalyzer interface {
	AnalyzeCode(ctx context.Context, code, language string) Result
}

// SpeechSynthesizer turns text into an audio stream.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) AudioResult
}

// Service defines the lifecycle shared by ntropiq services.
type Service interface {
	Name() string
	Initialize() error
}

// Unconfigured stands in for a collaborator that has no credentials. Every call fails
// with ErrUnconfigured.
type Unconfigured struct{}

func (Unconfigured) GenerateReply(context.Context, string) Result {
	return Fail(ErrUnconfigured, "reply generation is not configured", nil)
}

func (Unconfigured) GenerateInsights(context.Context, string) Result {
	return Fail(ErrUnconfigured, "insight generation is not configured", nil)
}

func (Unconfigured) AnalyzeCode(context.Context, string, string) Result {
	return Fail(ErrUnconfigured, "code analysis is not configured", nil)
}

func (Unconfigured) Synthesize(context.Context, SpeechRequest) AudioResult {
	return AudioResult{Err: &CollaboratorError{Kind: ErrUnconfigured, Message: "speech synthesis is not configured"}}
}
