package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmr-project/llmr/pkg/conversation"
)

func TestRegistryGetOrStoreKeepsFirstSession(t *testing.T) {
	r := NewRegistry()

	first := newSession("s1", testSettings(), conversation.NewManager())
	stored, existed := r.GetOrStore("s1", first)
	require.False(t, existed)
	assert.Same(t, first, stored)

	second := newSession("s1", testSettings(), conversation.NewManager())
	stored, existed = r.GetOrStore("s1", second)
	require.True(t, existed)
	assert.Same(t, first, stored)

	got, ok := r.Get("s1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistryDeleteRemovesSession(t *testing.T) {
	r := NewRegistry()
	r.GetOrStore("s1", newSession("s1", testSettings(), conversation.NewManager()))
	r.GetOrStore("s2", newSession("s2", testSettings(), conversation.NewManager()))
	require.Equal(t, 2, r.Len())

	r.Delete("s1")

	_, ok := r.Get("s1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"s2"}, r.IDs())
}

func TestRegistryIDsListsAllSessions(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.IDs())

	r.GetOrStore("s1", newSession("s1", testSettings(), conversation.NewManager()))
	r.GetOrStore("s2", newSession("s2", testSettings(), conversation.NewManager()))

	assert.ElementsMatch(t, []string{"s1", "s2"}, r.IDs())
}
