package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventFromJSONPartial(t *testing.T) {
	meta := EventMetadata{ID: uuid.New(), SessionID: "s-1", Model: "gpt-4"}
	b, err := json.Marshal(NewPartialEvent(meta, "lo", "Hello"))
	require.NoError(t, err)

	e, err := NewEventFromJSON(b)
	require.NoError(t, err)

	p, ok := e.(*EventPartial)
	require.True(t, ok)
	assert.Equal(t, EventTypePartial, p.Type())
	assert.Equal(t, "lo", p.Delta)
	assert.Equal(t, "Hello", p.Completion)
	assert.Equal(t, "s-1", p.Metadata().SessionID)
}

func TestNewEventFromJSONError(t *testing.T) {
	b, err := json.Marshal(NewErrorEvent(EventMetadata{ID: uuid.New()}, errors.New("boom")))
	require.NoError(t, err)

	e, err := NewEventFromJSON(b)
	require.NoError(t, err)

	ee, ok := e.(*EventError)
	require.True(t, ok)
	assert.Equal(t, "boom", ee.ErrorString)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []*message.Message
	topics   []string
}

func (f *fakePublisher) Publish(topic string, messages ...*message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages...)
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestPublisherManagerSequenceNumbers(t *testing.T) {
	pub := &fakePublisher{}
	pm := NewPublisherManager()
	pm.RegisterPublisher("chat", pub)

	meta := EventMetadata{ID: uuid.New()}
	require.NoError(t, pm.Publish(NewStartEvent(meta)))
	require.NoError(t, pm.Publish(NewPartialEvent(meta, "Hi", "Hi")))

	require.Len(t, pub.messages, 2)
	assert.Equal(t, "0", pub.messages[0].Metadata.Get("sequence_number"))
	assert.Equal(t, "1", pub.messages[1].Metadata.Get("sequence_number"))
	assert.Equal(t, []string{"chat", "chat"}, pub.topics)
}

func TestPublisherManagerFanOut(t *testing.T) {
	a := &fakePublisher{}
	b := &fakePublisher{}
	pm := NewPublisherManager()
	pm.RegisterPublisher("chat", a)
	pm.RegisterPublisher("chat", b)

	pm.PublishBlind(NewFinalEvent(EventMetadata{ID: uuid.New()}, "done"))

	require.Len(t, a.messages, 1)
	require.Len(t, b.messages, 1)

	e, err := NewEventFromJSON(a.messages[0].Payload)
	require.NoError(t, err)
	f, ok := e.(*EventFinal)
	require.True(t, ok)
	assert.Equal(t, "done", f.Text)
}
