package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntropiq/internal/clock"
	"ntropiq/internal/observability"
	"ntropiq/internal/store"
	"ntropiq/pkg/ntropiqtypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

type fakeCollaborators struct {
	text       ntropiqtypes.Result
	audio      ntropiqtypes.AudioResult
	lastInput  string
	lastLang   string
	lastSpeech ntropiqtypes.SpeechRequest
}

func (f *fakeCollaborators) GenerateReply(_ context.Context, message string) ntropiqtypes.Result {
	f.lastInput = message
	return f.text
}

func (f *fakeCollaborators) GenerateInsights(_ context.Context, query string) ntropiqtypes.Result {
	f.lastInput = query
	return f.text
}

func (f *fakeCollaborators) AnalyzeCode(_ context.Context, code, language string) ntropiqtypes.Result {
	f.lastInput, f.lastLang = code, language
	return f.text
}

func (f *fakeCollaborators) Synthesize(_ context.Context, req ntropiqtypes.SpeechRequest) ntropiqtypes.AudioResult {
	f.lastSpeech = req
	return f.audio
}

func (f *fakeCollaborators) all() observability.Collaborators {
	return observability.Collaborators{Reply: f, Insights: f, Analyzer: f, Speech: f}
}

func newTestServer(t *testing.T, fake *fakeCollaborators, st *store.Store) *Server {
	t.Helper()
	return New(Config{
		Collaborators: fake.all(),
		Store:         st,
		Clock:         clock.NewFake(fixedNow),
	})
}

func performRequest(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestChat(t *testing.T) {
	fake := &fakeCollaborators{text: ntropiqtypes.Ok("Hello analyst")}
	h := newTestServer(t, fake, nil).Handler()

	w := performRequest(h, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello analyst", decode(t, w)["response"])
	assert.Equal(t, "hi", fake.lastInput)

	for _, body := range []interface{}{map[string]string{"message": "   "}, map[string]int{"message": 3}, "not json"} {
		w = performRequest(h, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	fake.text = ntropiqtypes.Fail(ntropiqtypes.ErrTransport, "down", nil)
	w = performRequest(h, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to generate response", decode(t, w)["error"])
}

func TestInsights(t *testing.T) {
	fake := &fakeCollaborators{text: ntropiqtypes.Ok("Revenue is up")}
	h := newTestServer(t, fake, nil).Handler()

	w := performRequest(h, http.MethodPost, "/api/notebook/insights", map[string]string{"query": "revenue by region"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Revenue is up", body["insights"])
	assert.Equal(t, "2024-03-01T12:30:00.000Z", body["timestamp"])

	w = performRequest(h, http.MethodPost, "/api/notebook/insights", map[string]interface{}{"query": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Query is required and must be a string", decode(t, w)["error"])

	fake.text = ntropiqtypes.Fail(ntropiqtypes.ErrTimeout, "slow", nil)
	w = performRequest(h, http.MethodPost, "/api/notebook/insights", map[string]string{"query": "revenue by region"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to generate insights", decode(t, w)["error"])
}

func TestAnalyze(t *testing.T) {
	fake := &fakeCollaborators{text: ntropiqtypes.Ok("Prints one")}
	h := newTestServer(t, fake, nil).Handler()

	w := performRequest(h, http.MethodPost, "/api/notebook/analyze", map[string]string{"code": "print(1)"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Prints one", body["analysis"])
	assert.Equal(t, "python", body["language"])
	assert.Equal(t, "python", fake.lastLang)

	w = performRequest(h, http.MethodPost, "/api/notebook/analyze", map[string]string{"code": "SELECT 1", "language": "sql"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sql", decode(t, w)["language"])

	w = performRequest(h, http.MethodPost, "/api/notebook/analyze", map[string]string{"language": "sql"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Code is required and must be a string", decode(t, w)["error"])
}

func TestTTS(t *testing.T) {
	fake := &fakeCollaborators{audio: ntropiqtypes.AudioResult{Audio: []byte("ID3"), ContentType: "audio/mpeg"}}
	h := newTestServer(t, fake, nil).Handler()

	w := performRequest(h, http.MethodPost, "/api/voice/tts", map[string]string{"text": "hello", "voiceId": "v2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ID3", w.Body.String())
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, `inline; filename="tts.mp3"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "v2", fake.lastSpeech.VoiceID)

	w = performRequest(h, http.MethodPost, "/api/voice/tts", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Text is required", decode(t, w)["error"])

	fake.audio = ntropiqtypes.AudioResult{Err: &ntropiqtypes.CollaboratorError{Kind: ntropiqtypes.ErrStatus, Message: "status 401"}}
	w = performRequest(h, http.MethodPost, "/api/voice/tts", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "TTS request failed", body["error"])
	assert.Equal(t, "status 401", body["details"])

	fake.audio = ntropiqtypes.AudioResult{Err: &ntropiqtypes.CollaboratorError{Kind: ntropiqtypes.ErrUnconfigured, Message: "no key"}}
	w = performRequest(h, http.MethodPost, "/api/voice/tts", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Missing ELEVENLABS_API_KEY", decode(t, w)["error"])
}

func TestMissingCollaborators(t *testing.T) {
	h := New(Config{Clock: clock.NewFake(fixedNow)}).Handler()

	w := performRequest(h, http.MethodPost, "/api/voice/tts", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Missing ELEVENLABS_API_KEY", decode(t, w)["error"])

	w = performRequest(h, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = performRequest(h, http.MethodGet, "/api/chats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["sessions"])
}

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.NewMemoryKV())
	ctx := context.Background()
	base := fixedNow.Add(-time.Hour)
	records := []ntropiqtypes.ConversationSession{
		{SchemaVersion: ntropiqtypes.SchemaVersion, ID: "old", Name: "Old", UpdatedAt: base},
		{SchemaVersion: ntropiqtypes.SchemaVersion, ID: "new", Name: "New", UpdatedAt: base.Add(time.Minute), Bookmarked: true},
	}
	for _, r := range records {
		require.NoError(t, st.Conversations.Save(ctx, r, time.Time{}))
	}
	nb := ntropiqtypes.NotebookSession{SchemaVersion: ntropiqtypes.SchemaVersion, ID: "nb-1", Name: "Churn", UpdatedAt: base}
	require.NoError(t, st.Notebooks.Save(ctx, nb, time.Time{}))
	return st
}

func TestSessionRoutes(t *testing.T) {
	st := seedStore(t)
	h := newTestServer(t, &fakeCollaborators{}, st).Handler()

	w := performRequest(h, http.MethodGet, "/api/chats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []ntropiqtypes.ConversationSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	w = performRequest(h, http.MethodGet, "/api/chats?bookmarked=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)

	w = performRequest(h, http.MethodGet, "/api/notebooks/nb-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Churn", decode(t, w)["name"])

	w = performRequest(h, http.MethodGet, "/api/notebooks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(h, http.MethodDelete, "/api/chats/old", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted", decode(t, w)["status"])

	w = performRequest(h, http.MethodDelete, "/api/chats/old", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(h, http.MethodGet, "/api/notebooks?bookmarked=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestRateLimit(t *testing.T) {
	metrics := observability.NewMetrics()
	fake := &fakeCollaborators{text: ntropiqtypes.Ok("ok")}
	h := New(Config{Collaborators: fake.all(), Metrics: metrics, RateLimit: 0.001, Burst: 2}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, performRequest(h, http.MethodPost, "/api/chat", map[string]string{"message": "hi"}).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, http.StatusOK, performRequest(h, http.MethodGet, "/health", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	fake := &fakeCollaborators{text: ntropiqtypes.Ok("ok")}
	h := newTestServer(t, fake, nil).Handler()
	performRequest(h, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})

	w := performRequest(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ntropiq_http_requests_total{method="POST",route="/api/chat",status="200"} 1`)
	assert.Contains(t, w.Body.String(), `ntropiq_collaborator_calls_total{collaborator="reply",outcome="ok"} 1`)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeCollaborators{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
