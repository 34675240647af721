package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntropiq/internal/conversation"
	"ntropiq/internal/services"
	"ntropiq/internal/store"
	"ntropiq/internal/testutils"
	"ntropiq/internal/voice"
	"ntropiq/pkg/ntropiqtypes"
)

type echoReply struct{}

func (echoReply) GenerateReply(_ context.Context, message string) ntropiqtypes.Result {
	if message == "chart please" {
		return ntropiqtypes.Ok("Here:\n\n```sql\nSELECT 1\n```\n")
	}
	return ntropiqtypes.Ok("echo: " + message)
}

type bytesSpeech struct{}

func (bytesSpeech) Synthesize(context.Context, ntropiqtypes.SpeechRequest) ntropiqtypes.AudioResult {
	return ntropiqtypes.AudioResult{Audio: []byte("mp3"), ContentType: "audio/mpeg"}
}

func newTestREPL(t *testing.T, player conversation.AudioPlayer) (*chatREPL, *bytes.Buffer, *store.Store) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)

	st := store.New(store.NewMemoryKV())
	cfg := conversation.Config{
		Store:  st.Conversations,
		Reply:  echoReply{},
		IDs:    testutils.DeterministicIDs(),
		Player: player,
	}
	if player != nil {
		cfg.Speech = bytesSpeech{}
	}
	session, err := conversation.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(session.Close)

	md := services.NewMarkdownService("notty")
	require.NoError(t, md.Initialize())

	out := &bytes.Buffer{}
	repl := &chatREPL{session: session, markdown: md, out: out}
	repl.machine = voice.New(voice.Config{Draft: session, Submit: repl.submitVoice})
	t.Cleanup(repl.machine.Close)
	return repl, out, st
}

func TestChatREPL_Conversation(t *testing.T) {
	repl, out, st := newTestREPL(t, nil)
	input := strings.Join([]string{
		"hello there",
		"chart please",
		"/artifacts",
		"/rename Q3 review",
		"/bookmark",
		"/upload sales.csv users.csv",
		"/connect Snowflake",
		"/unknown",
		"/quit",
		"never read",
	}, "\n")

	require.NoError(t, repl.run(context.Background(), strings.NewReader(input)))
	text := out.String()

	assert.Contains(t, text, conversation.DefaultName)
	assert.Contains(t, text, "echo: hello there")
	assert.Contains(t, text, "Artifacts (1)")
	assert.Contains(t, text, `Renamed to "Q3 review"`)
	assert.Contains(t, text, "Bookmarked: true")
	assert.Contains(t, text, "sales.csv")
	assert.Contains(t, text, "Snowflake")
	assert.Contains(t, text, "unknown command /unknown")
	assert.NotContains(t, text, "never read")

	rec, err := st.Conversations.Load(context.Background(), repl.session.ID())
	require.NoError(t, err)
	assert.Equal(t, "Q3 review", rec.Name)
	assert.True(t, rec.Bookmarked)
	// greeting + two exchanges + upload notice + connection notice
	assert.Len(t, rec.Messages, 7)
}

func TestChatREPL_VoiceNotSupported(t *testing.T) {
	repl, out, _ := newTestREPL(t, nil)
	require.NoError(t, repl.run(context.Background(), strings.NewReader("/voice\n")))
	assert.Contains(t, out.String(), "Voice input is not supported in this terminal")
	assert.False(t, repl.machine.VoiceMode())
}

func TestChatREPL_DeleteStartsNewConversation(t *testing.T) {
	repl, out, st := newTestREPL(t, nil)
	firstID := repl.session.ID()
	require.NoError(t, repl.run(context.Background(), strings.NewReader("hi\n/delete\n")))

	assert.Contains(t, out.String(), "Deleted. New conversation")
	assert.NotEqual(t, firstID, repl.session.ID())
	_, err := st.Conversations.Load(context.Background(), firstID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChatREPL_Speak(t *testing.T) {
	dir := t.TempDir()
	player := &filePlayer{dir: dir, out: &bytes.Buffer{}}
	repl, _, _ := newTestREPL(t, player)

	require.NoError(t, repl.run(context.Background(), strings.NewReader("/speak\n")))

	id := lastAssistantID(repl.session.Messages())
	data, err := os.ReadFile(filepath.Join(dir, id+".mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), data)
}

func TestLastAssistantID(t *testing.T) {
	assert.Empty(t, lastAssistantID(nil))
	msgs := []ntropiqtypes.Message{
		{ID: "a", Role: ntropiqtypes.RoleAssistant},
		{ID: "u", Role: ntropiqtypes.RoleUser},
	}
	assert.Equal(t, "a", lastAssistantID(msgs))
}

func TestChatREPL_CopyArtifact(t *testing.T) {
	repl, out, _ := newTestREPL(t, nil)
	input := "/copy\nchart please\n/copy 2\n/copy x\n/copy\n"
	require.NoError(t, repl.run(context.Background(), strings.NewReader(input)))

	text := out.String()
	assert.Contains(t, text, "no artifact 1 (have 0)")
	assert.Contains(t, text, "no artifact 2 (have 1)")
	assert.Contains(t, text, "usage: /copy [n]")
	// no clipboard in the test environment, so the content is printed
	assert.Contains(t, text, "SELECT 1\n")
}
