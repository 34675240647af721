// Package voice implements microphone capture buffering with silence-triggered submission.
package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"ntropiq/internal/clock"
	"ntropiq/internal/logger"
)

// ErrNotSupported is returned when no capture backend is available.
var ErrNotSupported = errors.New("voice capture is not supported in this environment")

// Default timings.
const (
	DefaultSilenceTimeout = 3 * time.Second
	DefaultResumeDelay    = 600 * time.Millisecond
)

// State is the capture state.
type State int

// Capture states.
const (
	Idle State = iota
	Listening
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Submitting:
		return "submitting"
	}
	return "unknown"
}

// Segment is one transcription result delivered by the recognizer.
type Segment struct {
	Transcript string
	Final      bool
}

// Recognizer is the speech capture backend.
type Recognizer interface {
	Start() error
	Stop()
}

// Draft is the input field the transcript is reflected into.
type Draft interface {
	SetDraft(text string)
	AppendDraft(text string)
}

// SubmitFunc sends a frozen transcript as a message. It blocks until the submission completes.
type SubmitFunc func(ctx context.Context, text string)

// Config wires a Machine to its collaborators. Zero timings select the defaults.
type Config struct {
	Recognizer     Recognizer
	Draft          Draft
	Submit         SubmitFunc
	Clock          clock.Clock
	SilenceTimeout time.Duration
	ResumeDelay    time.Duration
}

// Machine is the voice capture state machine. All methods are safe for concurrent use.
type Machine struct {
	cfg    Config
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	voiceMode bool
	finals    []string
	interim   string
	// epoch invalidates timer callbacks armed before the latest transition.
	epoch        uint64
	silenceTimer clock.Timer
	resumeTimer  clock.Timer
	closed       bool
}

// New creates an idle Machine.
func New(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = DefaultResumeDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		cfg:    cfg,
		logger: logger.NewStyledLogger("Voice"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// VoiceMode reports whether hands-free auto-submit is enabled.
func (m *Machine) VoiceMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voiceMode
}

// Transcript returns the buffered finals plus the latest interim segment.
func (m *Machine) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.combinedLocked()
}

// Toggle switches the microphone on from idle, or off from any other state.
func (m *Machine) Toggle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.Recognizer == nil {
		return ErrNotSupported
	}
	if m.state != Idle {
		m.stopLocked()
		return nil
	}
	return m.listenLocked()
}

// SetVoiceMode enables or disables auto-submit. Enabling starts listening from idle;
// disabling stops capture from any state.
func (m *Machine) SetVoiceMode(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !enabled {
		m.voiceMode = false
		m.stopLocked()
		return nil
	}
	if m.cfg.Recognizer == nil {
		return ErrNotSupported
	}
	m.voiceMode = true
	if m.state == Idle {
		return m.listenLocked()
	}
	return nil
}

// HandleResult records one recognizer event. Events outside listening are ignored.
func (m *Machine) HandleResult(segments []Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Listening {
		return
	}

	var newFinals []string
	interim := ""
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Transcript)
		if text == "" {
			continue
		}
		if seg.Final {
			newFinals = append(newFinals, text)
		} else {
			interim = text
		}
	}

	if !m.voiceMode {
		// Dictation: finals go straight into the field, nothing is buffered.
		for _, text := range newFinals {
			if m.cfg.Draft != nil {
				m.cfg.Draft.AppendDraft(text)
			}
		}
		return
	}

	m.finals = append(m.finals, newFinals...)
	m.interim = interim
	if m.cfg.Draft != nil {
		m.cfg.Draft.SetDraft(m.combinedLocked())
	}
	m.armSilenceLocked()
}

// HandleEnd records that the recognizer stopped capturing on its own.
// A pending silence timer in voice mode is left to fire.
func (m *Machine) HandleEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Listening {
		return
	}
	if m.voiceMode && m.silenceTimer != nil {
		return
	}
	m.transitionLocked(Idle)
}

// HandleError records a recognizer failure and returns to idle.
func (m *Machine) HandleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Warn("Recognizer error", "error", err, "state", m.state)
	m.stopLocked()
}

// Close stops capture, cancels any in-flight submission and disables further transitions.
func (m *Machine) Close() {
	m.mu.Lock()
	m.voiceMode = false
	m.stopLocked()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}

func (m *Machine) combinedLocked() string {
	return strings.TrimSpace(strings.Join(m.finals, " ") + " " + m.interim)
}

func (m *Machine) listenLocked() error {
	if m.closed {
		return nil
	}
	if err := m.cfg.Recognizer.Start(); err != nil {
		m.transitionLocked(Idle)
		return err
	}
	m.finals = nil
	m.interim = ""
	m.transitionLocked(Listening)
	return nil
}

func (m *Machine) stopLocked() {
	if m.state == Listening && m.cfg.Recognizer != nil {
		m.cfg.Recognizer.Stop()
	}
	m.finals = nil
	m.interim = ""
	m.transitionLocked(Idle)
}

// transitionLocked moves to next and cancels every timer armed by the previous state.
func (m *Machine) transitionLocked(next State) {
	m.stopTimersLocked()
	m.epoch++
	if m.state != next {
		m.logger.Debug("Voice transition", "from", m.state, "to", next)
	}
	m.state = next
}

func (m *Machine) stopTimersLocked() {
	if m.silenceTimer != nil {
		m.silenceTimer.Stop()
		m.silenceTimer = nil
	}
	if m.resumeTimer != nil {
		m.resumeTimer.Stop()
		m.resumeTimer = nil
	}
}

func (m *Machine) armSilenceLocked() {
	if m.silenceTimer != nil {
		m.silenceTimer.Stop()
	}
	m.epoch++
	epoch := m.epoch
	m.silenceTimer = m.cfg.Clock.AfterFunc(m.cfg.SilenceTimeout, func() { m.onSilence(epoch) })
}

func (m *Machine) onSilence(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != Listening || !m.voiceMode {
		m.mu.Unlock()
		return
	}
	m.silenceTimer = nil
	text := strings.Join(m.finals, " ")
	if strings.TrimSpace(text) == "" {
		text = m.combinedLocked()
	}
	m.finals = nil
	m.interim = ""
	m.cfg.Recognizer.Stop()
	m.transitionLocked(Submitting)
	if m.cfg.Draft != nil {
		m.cfg.Draft.SetDraft("")
	}
	submitEpoch := m.epoch
	m.mu.Unlock()

	if text != "" && m.cfg.Submit != nil {
		m.logger.Debug("Silence detected, submitting transcript", "chars", len(text))
		m.cfg.Submit(m.ctx, text)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if submitEpoch != m.epoch || m.state != Submitting || !m.voiceMode {
		return
	}
	m.resumeTimer = m.cfg.Clock.AfterFunc(m.cfg.ResumeDelay, func() { m.onResume(submitEpoch) })
}

func (m *Machine) onResume(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.state != Submitting || !m.voiceMode {
		return
	}
	m.resumeTimer = nil
	if err := m.listenLocked(); err != nil {
		m.logger.Warn("Failed to resume listening", "error", err)
	}
}
