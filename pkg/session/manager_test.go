package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmr-project/llmr/pkg/backend"
	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/helpers"
	"github.com/llmr-project/llmr/pkg/history"
	"github.com/llmr-project/llmr/pkg/settings"
)

type fakeBackend struct {
	streamFunc func(ctx context.Context, conv conversation.Conversation) (<-chan helpers.Result[string], error)
}

var _ backend.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) Stream(ctx context.Context, conv conversation.Conversation) (<-chan helpers.Result[string], error) {
	return f.streamFunc(ctx, conv)
}

func fragmentBackend(fragments ...string) *fakeBackend {
	return &fakeBackend{
		streamFunc: func(ctx context.Context, _ conversation.Conversation) (<-chan helpers.Result[string], error) {
			c := make(chan helpers.Result[string])
			go func() {
				defer close(c)
				for _, fragment := range fragments {
					c <- helpers.NewValueResult[string](fragment)
				}
			}()
			return c, nil
		},
	}
}

type fakeStore struct {
	mu      sync.Mutex
	saved   map[string]conversation.Conversation
	records map[string]*history.Record
	batches map[string][]history.Response
	saveErr error
}

var _ history.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:   map[string]conversation.Conversation{},
		records: map[string]*history.Record{},
		batches: map[string][]history.Response{},
	}
}

func (f *fakeStore) SaveConversation(sessionID string, _ *settings.Settings, messages conversation.Conversation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved[sessionID] = messages.Clone()
	return "chathistory_" + sessionID + ".json", nil
}

func (f *fakeStore) SaveResponses(runID string, _ *settings.Settings, _ string, responses []history.Response) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[runID] = responses
	return "multicaller_" + runID + ".json", nil
}

func (f *fakeStore) LoadConversation(sessionID string) (*history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[sessionID]; ok {
		return record, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeStore) savedFor(sessionID string) (conversation.Conversation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	messages, ok := f.saved[sessionID]
	return messages, ok
}

func testSettings() *settings.Settings {
	s := settings.NewSettings()
	s.Chat.Model = "gpt-4o"
	s.Client.APIKey = "test-key"
	return s
}

func drain(t *testing.T, turns <-chan PartialTurn) []PartialTurn {
	t.Helper()
	collected := []PartialTurn{}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case turn, ok := <-turns:
			if !ok {
				return collected
			}
			collected = append(collected, turn)
		case <-timeout:
			t.Fatal("timed out draining partial turns")
		}
	}
}

func lastContent(turn PartialTurn) string {
	msg, ok := turn.Messages.LastMessage()
	if !ok {
		return ""
	}
	return msg.Content
}

func TestSubmitMessageIncrementOrdering(t *testing.T) {
	m := NewManager(fragmentBackend("Hel", "lo", "!"), newFakeStore())

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	turns, err := m.SubmitMessage(context.Background(), id, "hi")
	require.NoError(t, err)

	collected := drain(t, turns)
	require.Len(t, collected, 4)

	assert.Equal(t, "Hel", lastContent(collected[0]))
	assert.Equal(t, "Hello", lastContent(collected[1]))
	assert.Equal(t, "Hello!", lastContent(collected[2]))
	assert.Equal(t, "Hello!", lastContent(collected[3]))

	for i, turn := range collected {
		assert.Equal(t, i == len(collected)-1, turn.IsFinal, "turn %d", i)
	}
}

func TestSubmitMessageFailureBecomesAssistantTurn(t *testing.T) {
	failing := &fakeBackend{
		streamFunc: func(ctx context.Context, _ conversation.Conversation) (<-chan helpers.Result[string], error) {
			c := make(chan helpers.Result[string], 1)
			c <- helpers.NewErrorResult[string](errors.New("connection refused"))
			close(c)
			return c, nil
		},
	}
	store := newFakeStore()
	m := NewManager(failing, store)

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	turns, err := m.SubmitMessage(context.Background(), id, "hi")
	require.NoError(t, err)

	collected := drain(t, turns)
	require.Len(t, collected, 1)
	assert.True(t, collected[0].IsFinal)
	assert.Equal(t, "An error occurred: connection refused", lastContent(collected[0]))

	// errored turns are never persisted
	_, saved := store.savedFor(id)
	assert.False(t, saved)

	// the session stays usable
	session, ok := m.Registry().Get(id)
	require.True(t, ok)
	messages := session.Conversation()
	require.Len(t, messages, 2)
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)

	turns, err = m.SubmitMessage(context.Background(), id, "still there?")
	require.NoError(t, err)
	drain(t, turns)
	assert.Len(t, session.Conversation(), 4)
}

func TestSubmitMessageStartFailureBecomesAssistantTurn(t *testing.T) {
	failing := &fakeBackend{
		streamFunc: func(ctx context.Context, _ conversation.Conversation) (<-chan helpers.Result[string], error) {
			return nil, errors.New("invalid api key")
		},
	}
	m := NewManager(failing, newFakeStore())

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	turns, err := m.SubmitMessage(context.Background(), id, "hi")
	require.NoError(t, err)

	collected := drain(t, turns)
	require.Len(t, collected, 1)
	assert.True(t, collected[0].IsFinal)
	assert.Equal(t, "An error occurred: invalid api key", lastContent(collected[0]))
}

func TestSubmitMessageBusyRejection(t *testing.T) {
	release := make(chan struct{})
	blocking := &fakeBackend{
		streamFunc: func(ctx context.Context, _ conversation.Conversation) (<-chan helpers.Result[string], error) {
			c := make(chan helpers.Result[string])
			go func() {
				defer close(c)
				<-release
				c <- helpers.NewValueResult[string]("done")
			}()
			return c, nil
		},
	}
	m := NewManager(blocking, newFakeStore())

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	turns, err := m.SubmitMessage(context.Background(), id, "first")
	require.NoError(t, err)

	_, err = m.SubmitMessage(context.Background(), id, "second")
	require.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	drain(t, turns)

	// once the first turn finished the session accepts messages again
	turns, err = m.SubmitMessage(context.Background(), id, "third")
	require.NoError(t, err)
	drain(t, turns)
}

func TestSubmitMessageValidation(t *testing.T) {
	m := NewManager(fragmentBackend("x"), newFakeStore())

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	_, err = m.SubmitMessage(context.Background(), id, "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = m.SubmitMessage(context.Background(), "unknown", "hi")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitMessagePersistsCompletedTurns(t *testing.T) {
	store := newFakeStore()
	m := NewManager(fragmentBackend("fine"), store)

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	turns, err := m.SubmitMessage(context.Background(), id, "how are you?")
	require.NoError(t, err)
	drain(t, turns)

	messages, saved := store.savedFor(id)
	require.True(t, saved)
	require.Len(t, messages, 2)
	assert.Equal(t, "how are you?", messages[0].Content)
	assert.Equal(t, "fine", messages[1].Content)
}

func TestSubmitMessageCancellationDropsPartialReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	canceling := &fakeBackend{
		streamFunc: func(ctx context.Context, _ conversation.Conversation) (<-chan helpers.Result[string], error) {
			c := make(chan helpers.Result[string])
			go func() {
				defer close(c)
				c <- helpers.NewValueResult[string]("par")
				<-ctx.Done()
				c <- helpers.NewErrorResult[string](ctx.Err())
			}()
			return c, nil
		},
	}
	store := newFakeStore()
	m := NewManager(canceling, store)

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	turns, err := m.SubmitMessage(ctx, id, "hi")
	require.NoError(t, err)

	first := <-turns
	assert.Equal(t, "par", lastContent(first))
	assert.False(t, first.IsFinal)

	cancel()
	collected := drain(t, turns)
	for _, turn := range collected {
		assert.False(t, turn.IsFinal)
	}

	// the partial reply is discarded, the user message stays
	session, ok := m.Registry().Get(id)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		messages := session.Conversation()
		if len(messages) != 1 {
			return false
		}
		return messages[0].Role == conversation.RoleUser
	}, 5*time.Second, 10*time.Millisecond)

	_, saved := store.savedFor(id)
	assert.False(t, saved)
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager(fragmentBackend("ok"), newFakeStore())

	idA, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)
	idB, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	var wg sync.WaitGroup
	for _, id := range []string{idA, idB} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			turns, err := m.SubmitMessage(context.Background(), id, "hello from "+id)
			assert.NoError(t, err)
			drain(t, turns)
		}()
	}
	wg.Wait()

	sessionA, _ := m.Registry().Get(idA)
	messages := sessionA.Conversation()
	require.Len(t, messages, 2)
	assert.Equal(t, "hello from "+idA, messages[0].Content)
}

func TestStartOrResumeExistingSession(t *testing.T) {
	m := NewManager(fragmentBackend("ok"), newFakeStore())

	id, err := m.StartOrResume("", testSettings())
	require.NoError(t, err)

	again, err := m.StartOrResume(id, testSettings())
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, m.Registry().Len())
}

func TestStartOrResumeRebuildsFromHistory(t *testing.T) {
	store := newFakeStore()
	store.records["restored"] = &history.Record{
		Conversation: []history.TurnPair{{User: "hi", Assistant: "hello"}},
	}
	m := NewManager(fragmentBackend("ok"), store)

	id, err := m.StartOrResume("restored", testSettings())
	require.NoError(t, err)
	assert.Equal(t, "restored", id)

	session, ok := m.Registry().Get(id)
	require.True(t, ok)
	messages := session.Conversation()
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Content)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestManagersShareRegistry(t *testing.T) {
	store := newFakeStore()
	first := NewManager(fragmentBackend("from first"), store)

	id, err := first.StartOrResume("", testSettings())
	require.NoError(t, err)

	second := NewManager(fragmentBackend("from second"), store, WithRegistry(first.Registry()))
	assert.Same(t, first.Registry(), second.Registry())

	// The session started on the first manager is visible to the second
	// without another StartOrResume.
	turns, err := second.SubmitMessage(context.Background(), id, "hi")
	require.NoError(t, err)

	collected := drain(t, turns)
	require.NotEmpty(t, collected)
	assert.Equal(t, "from second", lastContent(collected[len(collected)-1]))
}

func TestStartOrResumeValidatesSettings(t *testing.T) {
	m := NewManager(fragmentBackend("ok"), newFakeStore())

	s := settings.NewSettings()
	_, err := m.StartOrResume("", s)
	require.ErrorIs(t, err, settings.ErrMissingModel)
}
