package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Labels used when a conversation has to be flattened into a single prompt
// string for providers without a structured chat API. The user label doubles
// as the default stop marker for such providers.
const (
	UserLabel      = "User:"
	AssistantLabel = "Assistant:"
)

// Message is a single entry in a conversation's history.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func WithID(id uuid.UUID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      uuid.New(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Clone returns a copy of the message. Callers that hand conversation
// snapshots to observers use this so that in-flight placeholder mutation
// never races with a reader.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

type Conversation []*Message

func (c Conversation) Clone() Conversation {
	ret := make(Conversation, len(c))
	for i, m := range c {
		ret[i] = m.Clone()
	}
	return ret
}

// LastMessage returns the final message of the conversation, or false when
// the conversation is empty.
func (c Conversation) LastMessage() (*Message, bool) {
	if len(c) == 0 {
		return nil, false
	}
	return c[len(c)-1], true
}

// SinglePrompt flattens the conversation into the line-per-turn prompt
// convention used by text-generation providers: the system message (if any)
// first, each turn prefixed with its role label, and a trailing open
// assistant label so the provider continues from there.
func (c Conversation) SinglePrompt() string {
	var sb strings.Builder

	for _, m := range c {
		switch m.Role {
		case RoleSystem:
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		case RoleUser:
			fmt.Fprintf(&sb, "%s %s\n", UserLabel, m.Content)
		case RoleAssistant:
			fmt.Fprintf(&sb, "%s %s\n", AssistantLabel, m.Content)
		}
	}

	sb.WriteString(AssistantLabel)

	return sb.String()
}
