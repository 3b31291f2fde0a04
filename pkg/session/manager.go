package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/llmr-project/llmr/pkg/backend"
	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/events"
	"github.com/llmr-project/llmr/pkg/helpers"
	"github.com/llmr-project/llmr/pkg/history"
	"github.com/llmr-project/llmr/pkg/settings"
)

// Manager drives chat sessions: it owns the registry, invokes the backend
// for each submitted message and hands finished turns to the history store.
type Manager struct {
	registry *Registry
	backend  backend.Backend
	store    history.Store
}

type ManagerOption func(*Manager)

// WithRegistry shares a registry across managers, for callers that switch
// backends mid-process.
func WithRegistry(registry *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = registry
	}
}

func NewManager(backend_ backend.Backend, store history.Store, options ...ManagerOption) *Manager {
	ret := &Manager{
		registry: NewRegistry(),
		backend:  backend_,
		store:    store,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// StartOrResume returns the identifier of a ready session. An empty id
// mints a fresh session; a known id returns the live session unchanged; an
// unknown id is rebuilt from the history store when a record exists, and
// started empty otherwise.
func (m *Manager) StartOrResume(sessionID string, settings_ *settings.Settings) (string, error) {
	if err := settings_.Validate(); err != nil {
		return "", err
	}

	if sessionID == "" {
		sessionID = helpers.NewID()
	} else if _, ok := m.registry.Get(sessionID); ok {
		return sessionID, nil
	}

	options := []conversation.ManagerOption{
		conversation.WithSystemMessage(settings_.Chat.SystemMessage),
	}

	if m.store != nil {
		if record, err := m.store.LoadConversation(sessionID); err == nil {
			options = append(options, conversation.WithMessages(history.Flatten(record.Conversation)...))
			log.Debug().
				Str("session_id", sessionID).
				Int("turns", len(record.Conversation)).
				Msg("resumed session from history")
		}
	}

	session := newSession(sessionID, settings_.Clone(), conversation.NewManager(options...))
	stored, existed := m.registry.GetOrStore(sessionID, session)
	if existed {
		return stored.ID, nil
	}

	log.Info().Str("session_id", sessionID).Str("model", settings_.Chat.Model).Msg("session started")
	return sessionID, nil
}

// SubmitMessage runs one turn. The user message is recorded immediately;
// the returned channel yields a conversation snapshot per received fragment
// and closes after the final snapshot. A backend failure becomes the
// assistant reply of the turn rather than an error, so the session stays
// usable.
func (m *Manager) SubmitMessage(ctx context.Context, sessionID string, userText string) (<-chan PartialTurn, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyMessage
	}

	session, ok := m.registry.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if !session.tryAcquire() {
		return nil, ErrSessionBusy
	}

	session.manager.AppendMessages(conversation.NewMessage(conversation.RoleUser, userText))

	// The request omits the placeholder appended below; backends only see
	// completed messages.
	request := session.manager.GetConversation()
	session.manager.AppendMessages(conversation.NewMessage(conversation.RoleAssistant, ""))

	out := make(chan PartialTurn)

	go func() {
		defer close(out)
		defer session.release()
		m.runTurn(ctx, session, request, out)
	}()

	return out, nil
}

func (m *Manager) runTurn(
	ctx context.Context,
	session *Session,
	request conversation.Conversation,
	out chan<- PartialTurn,
) {
	ctx = events.WithSessionID(ctx, session.ID)

	stream, err := m.backend.Stream(ctx, request)
	if err != nil {
		m.failTurn(ctx, session, err, out)
		return
	}

	for result := range stream {
		fragment, err := result.Value()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				m.abandonTurn(session)
				return
			}
			m.failTurn(ctx, session, err, out)
			return
		}

		session.manager.AppendToLast(fragment)
		if !m.emit(ctx, session, out, PartialTurn{Messages: session.manager.GetConversation()}) {
			m.abandonTurn(session)
			go drainStream(stream)
			return
		}
	}

	if !m.emit(ctx, session, out, PartialTurn{Messages: session.manager.GetConversation(), IsFinal: true}) {
		m.abandonTurn(session)
		return
	}

	if m.store == nil {
		return
	}
	path, err := m.store.SaveConversation(session.ID, session.Settings, session.manager.Turns())
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to persist conversation")
		return
	}
	log.Debug().Str("session_id", session.ID).Str("path", path).Msg("conversation persisted")
}

// failTurn turns a backend failure into the assistant reply of the turn.
// The errored turn is not persisted.
func (m *Manager) failTurn(ctx context.Context, session *Session, cause error, out chan<- PartialTurn) {
	log.Warn().Err(cause).Str("session_id", session.ID).Msg("turn failed")

	session.manager.ReplaceLast(fmt.Sprintf("An error occurred: %s", cause.Error()))
	m.emit(ctx, session, out, PartialTurn{Messages: session.manager.GetConversation(), IsFinal: true})
}

// abandonTurn discards the partial assistant content after a cancellation.
// The user message stays recorded; nothing is emitted or persisted.
func (m *Manager) abandonTurn(session *Session) {
	log.Debug().Str("session_id", session.ID).Msg("turn canceled, dropping partial reply")
	session.manager.DropLast()
}

// drainStream unblocks a producer whose consumer went away; the backend
// closes the channel once its own context is canceled.
func drainStream(stream <-chan helpers.Result[string]) {
	for range stream {
	}
}

func (m *Manager) emit(ctx context.Context, session *Session, out chan<- PartialTurn, turn PartialTurn) bool {
	select {
	case out <- turn:
		return true
	case <-ctx.Done():
		return false
	}
}
