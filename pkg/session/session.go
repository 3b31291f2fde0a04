package session

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/settings"
)

var (
	// ErrSessionBusy is returned when a message is submitted to a session
	// that is still streaming a previous turn.
	ErrSessionBusy = errors.New("session is already processing a message")
	// ErrSessionNotFound is returned when a message is submitted to a
	// session identifier that was never started.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("empty user message")
)

// PartialTurn is one snapshot of the conversation during a streaming turn.
// Messages includes the growing assistant placeholder; IsFinal marks the
// last snapshot of the turn.
type PartialTurn struct {
	Messages conversation.Conversation
	IsFinal  bool
}

// Session holds the conversation state of one chat session. At most one
// turn is in flight per session at any time.
type Session struct {
	ID       string
	Settings *settings.Settings

	manager conversation.Manager

	mu     sync.Mutex
	active bool
}

func newSession(id string, settings_ *settings.Settings, manager conversation.Manager) *Session {
	return &Session{
		ID:       id,
		Settings: settings_,
		manager:  manager,
	}
}

// tryAcquire marks the session as streaming. It fails instead of queueing
// when a turn is already in flight.
func (s *Session) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// Conversation returns a snapshot of the session history, system message
// included.
func (s *Session) Conversation() conversation.Conversation {
	return s.manager.GetConversation()
}
