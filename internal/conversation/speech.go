package conversation

import (
	"context"
	"sync"

	"ntropiq/pkg/ntropiqtypes"
)

// AudioPlayer plays synthesised audio for a message. Play for an id replaces any
// playback already running for that id.
type AudioPlayer interface {
	Play(messageID string, audio []byte, contentType string)
	Stop(messageID string)
}

// speechSlots keeps at most one in-flight synthesis per message id.
type speechSlots struct {
	mu    sync.Mutex
	seq   uint64
	slots map[string]speechSlot
	wg    sync.WaitGroup
}

type speechSlot struct {
	token  uint64
	cancel context.CancelFunc
}

func newSpeechSlots() *speechSlots {
	return &speechSlots{slots: make(map[string]speechSlot)}
}

// claim cancels any previous request for id and returns the new slot token.
func (p *speechSlots) claim(id string, cancel context.CancelFunc) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.slots[id]; ok {
		prev.cancel()
	}
	p.seq++
	p.slots[id] = speechSlot{token: p.seq, cancel: cancel}
	return p.seq
}

func (p *speechSlots) current(id string, token uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.slots[id]
	return ok && slot.token == token
}

func (p *speechSlots) release(id string, token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok := p.slots[id]; ok && slot.token == token {
		delete(p.slots, id)
	}
}

func (p *speechSlots) cancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, slot := range p.slots {
		slot.cancel()
		delete(p.slots, id)
	}
}

func (p *speechSlots) wait() { p.wg.Wait() }

// RequestSpeech synthesises the message and hands the audio to the player. A new request
// for the same message cancels the previous one, so one message never plays twice at once.
// Synthesis failures skip playback silently.
func (s *Session) RequestSpeech(ctx context.Context, messageID string) error {
	s.mu.Lock()
	var msg *ntropiqtypes.Message
	for i := range s.rec.Messages {
		if s.rec.Messages[i].ID == messageID {
			m := s.rec.Messages[i]
			msg = &m
			break
		}
	}
	s.mu.Unlock()
	if msg == nil {
		return ErrMessageNotFound
	}
	s.speak(ctx, *msg)
	return nil
}

func (s *Session) speakAsync(msg ntropiqtypes.Message) {
	if s.cfg.Speech == nil || s.cfg.Player == nil {
		return
	}
	s.speech.wg.Add(1)
	go func() {
		defer s.speech.wg.Done()
		s.speak(context.Background(), msg)
	}()
}

func (s *Session) speak(ctx context.Context, msg ntropiqtypes.Message) {
	if s.cfg.Speech == nil || s.cfg.Player == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SpeechTimeout)
	defer cancel()
	token := s.speech.claim(msg.ID, cancel)
	defer s.speech.release(msg.ID, token)

	s.cfg.Player.Stop(msg.ID)
	audio := s.cfg.Speech.Synthesize(ctx, ntropiqtypes.SpeechRequest{
		Text:    msg.Content,
		VoiceID: s.cfg.VoiceID,
		ModelID: s.cfg.ModelID,
	})
	if !audio.OK() {
		s.logger.Debug("Skipping playback", "message", msg.ID, "error", audio.Err)
		return
	}
	if !s.speech.current(msg.ID, token) {
		s.logger.Debug("Discarding superseded audio", "message", msg.ID)
		return
	}
	s.cfg.Player.Play(msg.ID, audio.Audio, audio.ContentType)
}
