// Package conversation implements the chat session: an ordered message log with
// name and bookmark metadata, backed by the session store.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"ntropiq/internal/artifact"
	"ntropiq/internal/clock"
	"ntropiq/internal/logger"
	"ntropiq/internal/store"
	"ntropiq/internal/testutils"
	"ntropiq/pkg/ntropiqtypes"
)

// Sentinel errors.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageNotFound = errors.New("message not found")
)

// Fixed conversation texts.
const (
	DefaultName = "Analytics Chat"
	ResetName   = "New Chat"

	GreetingMessage = "Hello! I'm your ntropiq AI assistant. I can help you with data analytics, machine learning models, and insights from your data. How can I assist you today?"
	FallbackMessage = "I apologize, but I'm experiencing some technical difficulties right now. Please try your question again in a moment. If the problem persists, please check your internet connection or contact support."
)

// SpeechCharLimit is the reply length in characters from which replies are not read aloud.
const SpeechCharLimit = 1600

// DefaultReplyTimeout bounds a reply collaborator call.
const DefaultReplyTimeout = 60 * time.Second

// Config wires a Session to its collaborators. Speech and Player are optional.
type Config struct {
	Store         *store.Collection[ntropiqtypes.ConversationSession]
	Reply         ntropiqtypes.ReplyGenerator
	Speech        ntropiqtypes.SpeechSynthesizer
	Player        AudioPlayer
	Clock         clock.Clock
	IDs           testutils.IDFunc
	ReplyTimeout  time.Duration
	SpeechTimeout time.Duration
	VoiceID       string
	ModelID       string
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.IDs == nil {
		c.IDs = testutils.RandomIDs()
	}
	if c.Reply == nil {
		c.Reply = ntropiqtypes.Unconfigured{}
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.SpeechTimeout <= 0 {
		c.SpeechTimeout = DefaultReplyTimeout
	}
}

// Session is one conversation. Methods are safe for concurrent use; PostMessage calls
// are serialised so each user/assistant pair is appended together.
type Session struct {
	cfg    Config
	logger *log.Logger

	// turn serialises PostMessage. It is never held while mu is wanted by readers.
	turn sync.Mutex

	mu  sync.Mutex
	rec ntropiqtypes.ConversationSession
	// saved is the record as last written to the store. A zero UpdatedAt means never written.
	saved ntropiqtypes.ConversationSession
	// epoch changes when the session is reset; replies tagged with an older epoch are dropped.
	epoch     uint64
	waiting   bool
	artifacts []ntropiqtypes.Artifact
	draft     string

	speech *speechSlots
}

// Open resumes the last active conversation, or creates one if there is none.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.applyDefaults()
	id, err := cfg.Store.LastActive(ctx)
	if err != nil {
		return nil, err
	}
	if id != "" {
		s, err := OpenByID(ctx, cfg, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.Debug("Last active conversation missing, starting a new one", "session", id)
	}
	return New(ctx, cfg)
}

// OpenByID loads a stored conversation and marks it last active.
func OpenByID(ctx context.Context, cfg Config, id string) (*Session, error) {
	cfg.applyDefaults()
	rec, err := cfg.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cfg.Store.SetLastActive(ctx, id); err != nil {
		return nil, err
	}
	s := newSession(cfg, rec)
	s.saved = s.snapshotLocked()
	logger.SessionOperation("conversation", id, "open")
	return s, nil
}

// New creates and persists a conversation seeded with the greeting.
func New(ctx context.Context, cfg Config) (*Session, error) {
	cfg.applyDefaults()
	s := newSession(cfg, ntropiqtypes.ConversationSession{})
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.resetLocked(ctx, DefaultName); err != nil {
		return nil, err
	}
	logger.SessionOperation("conversation", s.rec.ID, "create")
	return s, nil
}

func newSession(cfg Config, rec ntropiqtypes.ConversationSession) *Session {
	if rec.Messages == nil {
		rec.Messages = []ntropiqtypes.Message{}
	}
	return &Session{
		cfg:    cfg,
		logger: logger.NewStyledLogger("Chat"),
		rec:    rec,
		speech: newSpeechSlots(),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.ID
}

// Name returns the session name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Name
}

// Bookmarked reports the bookmark flag.
func (s *Session) Bookmarked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Bookmarked
}

// UpdatedAt returns the time of the last persisted mutation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.UpdatedAt
}

// Messages returns a copy of the message log.
func (s *Session) Messages() []ntropiqtypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ntropiqtypes.Message(nil), s.rec.Messages...)
}

// Artifacts returns the artifacts of the latest successful reply.
func (s *Session) Artifacts() []ntropiqtypes.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ntropiqtypes.Artifact(nil), s.artifacts...)
}

// Waiting reports whether a reply is in flight.
func (s *Session) Waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// Snapshot returns a copy of the persisted record.
func (s *Session) Snapshot() ntropiqtypes.ConversationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() ntropiqtypes.ConversationSession {
	rec := s.rec
	rec.Messages = append([]ntropiqtypes.Message{}, s.rec.Messages...)
	return rec
}

// Draft returns the pending input text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the pending input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// AppendDraft adds text to the pending input, space separated.
func (s *Session) AppendDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == "" {
		s.draft = text
		return
	}
	s.draft = s.draft + " " + text
}

// PostMessage appends the user's message, asks the reply collaborator for an answer and
// appends it. Collaborator failures are answered with FallbackMessage; the returned error
// reports only input rejection and persistence failures.
func (s *Session) PostMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.turn.Lock()
	defer s.turn.Unlock()

	s.mu.Lock()
	s.appendLocked(ntropiqtypes.RoleUser, text)
	s.draft = ""
	s.waiting = true
	if err := s.persistLocked(ctx); err != nil {
		s.waiting = false
		s.mu.Unlock()
		return err
	}
	epoch, sessionID := s.epoch, s.rec.ID
	s.mu.Unlock()

	replyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	result := s.cfg.Reply.GenerateReply(replyCtx, text)
	cancel()

	s.mu.Lock()
	if epoch != s.epoch || sessionID != s.rec.ID {
		s.mu.Unlock()
		s.logger.Debug("Dropping stale reply", "session", sessionID)
		return nil
	}
	s.waiting = false
	content := FallbackMessage
	var artifacts []ntropiqtypes.Artifact
	if result.OK() {
		content = result.Text
		artifacts = artifact.Extract(content)
	} else {
		s.logger.Error("Reply generation failed", "session", sessionID, "error", result.Err,
			"retryable", result.Err.Retryable())
	}
	reply := s.appendLocked(ntropiqtypes.RoleAssistant, content)
	err := s.persistLocked(ctx)
	if err == nil && result.OK() {
		s.artifacts = artifacts
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if result.OK() && utf8.RuneCountInString(reply.Content) < SpeechCharLimit {
		s.speakAsync(reply)
	}
	return nil
}

// Rename sets the session name. Blank names are ignored.
func (s *Session) Rename(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Name = name
	return s.persistLocked(ctx)
}

// ToggleBookmark flips the bookmark flag.
func (s *Session) ToggleBookmark(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Bookmarked = !s.rec.Bookmarked
	return s.persistLocked(ctx)
}

// RecordUpload appends the notice shown after files are attached.
func (s *Session) RecordUpload(ctx context.Context, fileNames []string) error {
	if len(fileNames) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(ntropiqtypes.RoleAssistant, fmt.Sprintf(
		"Files uploaded successfully: %s. I can now help you analyze this data. What would you like to explore?",
		strings.Join(fileNames, ", ")))
	return s.persistLocked(ctx)
}

// RecordConnection appends the notice shown after a data source form is saved.
// No connection is made.
func (s *Session) RecordConnection(ctx context.Context, sourceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(ntropiqtypes.RoleAssistant, fmt.Sprintf(
		"Successfully connected to %s! I can now help you analyze data from this source. What insights would you like me to generate?",
		sourceName))
	return s.persistLocked(ctx)
}

// Delete removes the stored record and resets the session to a fresh conversation
// under a new id. In-flight replies for the deleted conversation are dropped.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cfg.Store.Delete(ctx, s.rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	logger.SessionOperation("conversation", s.rec.ID, "delete")
	s.speech.cancelAll()
	return s.resetLocked(ctx, ResetName)
}

// Close cancels in-flight speech and waits for background work to finish.
func (s *Session) Close() {
	s.speech.cancelAll()
	s.speech.wait()
}

func (s *Session) resetLocked(ctx context.Context, name string) error {
	s.epoch++
	s.rec = ntropiqtypes.ConversationSession{
		SchemaVersion: ntropiqtypes.SchemaVersion,
		ID:            s.cfg.IDs(),
		Name:          name,
		Messages:      []ntropiqtypes.Message{},
	}
	s.saved = s.snapshotLocked()
	s.waiting = false
	s.artifacts = nil
	s.draft = ""
	s.appendLocked(ntropiqtypes.RoleAssistant, GreetingMessage)
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	return s.cfg.Store.SetLastActive(ctx, s.rec.ID)
}

func (s *Session) appendLocked(role ntropiqtypes.Role, content string) ntropiqtypes.Message {
	msg := ntropiqtypes.Message{
		ID:        s.cfg.IDs(),
		Role:      role,
		Content:   content,
		CreatedAt: s.cfg.Clock.Now(),
	}
	s.rec.Messages = append(s.rec.Messages, msg)
	return msg
}

// persistLocked stamps a fresh updatedAt and flushes the record. When the write fails
// the unsaved change is discarded: after a conflict the stored record is adopted,
// otherwise the last saved state is restored.
func (s *Session) persistLocked(ctx context.Context) error {
	next := s.snapshotLocked()
	next.UpdatedAt = store.NextUpdate(s.rec.UpdatedAt, s.cfg.Clock.Now())
	next.SchemaVersion = ntropiqtypes.SchemaVersion
	if err := s.cfg.Store.Save(ctx, next, s.saved.UpdatedAt); err != nil {
		s.rollbackLocked(ctx, err)
		return fmt.Errorf("persist conversation %s: %w", next.ID, err)
	}
	s.rec.UpdatedAt = next.UpdatedAt
	s.rec.SchemaVersion = next.SchemaVersion
	s.saved = next
	return nil
}

func (s *Session) rollbackLocked(ctx context.Context, cause error) {
	if errors.Is(cause, store.ErrConflict) {
		stored, err := s.cfg.Store.Load(ctx, s.rec.ID)
		if err == nil {
			if stored.Messages == nil {
				stored.Messages = []ntropiqtypes.Message{}
			}
			s.logger.Warn("Conversation changed elsewhere, reloaded", "session", stored.ID)
			s.saved = stored
			s.rec = stored
			s.rec.Messages = append([]ntropiqtypes.Message{}, stored.Messages...)
			return
		}
		s.logger.Error("Reload after conflict failed", "session", s.rec.ID, "error", err)
	}
	s.rec = s.saved
	s.rec.Messages = append([]ntropiqtypes.Message{}, s.saved.Messages...)
}
