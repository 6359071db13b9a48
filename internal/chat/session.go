// Package chat holds one ongoing exchange with the tutoring agent and its
// locally mirrored transcript.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wortschatz/internal/tutor"
)

// fallbackReply is shown when the agent answers with empty text. A normal
// empty reply is not an error; a failed send is.
const fallbackReply = "দুঃখিত, আমি উত্তর দিতে পারছি না।"

// Converser performs a single chat turn against the remote agent.
type Converser interface {
	Converse(ctx context.Context, history []tutor.Turn, text string) (string, error)
}

// Message is one entry in the visible transcript.
type Message struct {
	Role   tutor.Role `json:"role"`
	Text   string     `json:"text"`
	SentAt time.Time  `json:"sent_at"`
}

// Session is a multi-turn exchange with the tutoring agent. The remote
// service is stateless, so the session resends its transcript on every
// turn; resetting the transcript therefore starts a genuinely new exchange
// with no residual context.
//
// The transcript is append-only between resets and its timestamps are
// monotonically non-decreasing.
type Session struct {
	mu        sync.Mutex
	converser Converser
	messages  []Message
	logger    *zap.Logger

	now func() time.Time
}

// NewSession creates an empty session. Each call yields a fully
// independent exchange.
func NewSession(converser Converser, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		converser: converser,
		logger:    logger,
		now:       time.Now,
	}
}

// Messages returns a copy of the visible transcript in send order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Send appends the user's message to the transcript, dispatches the turn,
// and on success appends the agent's reply. On failure the user's message
// stays visible, no reply is appended, and the error is returned for the
// caller to surface.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: empty message", tutor.ErrChat)
	}

	s.mu.Lock()
	history := make([]tutor.Turn, len(s.messages))
	for i, m := range s.messages {
		history[i] = tutor.Turn{Role: m.Role, Text: m.Text}
	}
	s.append(Message{Role: tutor.RoleUser, Text: text, SentAt: s.now()})
	s.mu.Unlock()

	reply, err := s.converser.Converse(ctx, history, text)
	if err != nil {
		s.logger.Warn("chat turn failed", zap.Error(err))
		return Message{}, err
	}
	if reply == "" {
		reply = fallbackReply
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := Message{Role: tutor.RoleAssistant, Text: reply, SentAt: s.now()}
	s.append(msg)
	return msg, nil
}

// Reset discards the transcript entirely. Irreversible; the next Send
// behaves exactly like the first on a brand-new session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// append adds a message, clamping its timestamp so transcript order and
// time order never disagree.
func (s *Session) append(msg Message) {
	if n := len(s.messages); n > 0 && msg.SentAt.Before(s.messages[n-1].SentAt) {
		msg.SentAt = s.messages[n-1].SentAt
	}
	s.messages = append(s.messages, msg)
}
