package history

import (
	"github.com/llmr-project/llmr/pkg/conversation"
)

// downloadedOnLayout is the human-readable timestamp stamped into every
// persisted record, e.g. "March 07, 2026 at 14:32:05".
const downloadedOnLayout = "January 02, 2006 at 15:04:05"

// TurnPair is one completed exchange. Records only ever contain full pairs;
// a trailing user message without a reply is dropped on save.
type TurnPair struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Record is the on-disk shape of a session transcript.
type Record struct {
	Settings     map[string]interface{} `json:"settings"`
	Conversation []TurnPair             `json:"conversation"`
}

// Pair folds a flat message list into user/assistant pairs. The system
// message is not part of the transcript; it lives in the settings block.
func Pair(messages conversation.Conversation) []TurnPair {
	pairs := []TurnPair{}
	var pending *TurnPair

	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleUser:
			if pending != nil {
				pairs = append(pairs, *pending)
			}
			pending = &TurnPair{User: msg.Content}
		case conversation.RoleAssistant:
			if pending == nil {
				pending = &TurnPair{}
			}
			pending.Assistant = msg.Content
			pairs = append(pairs, *pending)
			pending = nil
		case conversation.RoleSystem:
		}
	}

	return pairs
}

// Flatten is the inverse of Pair, used when a persisted record is loaded
// back into a live session.
func Flatten(pairs []TurnPair) conversation.Conversation {
	messages := conversation.Conversation{}
	for _, pair := range pairs {
		messages = append(messages,
			conversation.NewMessage(conversation.RoleUser, pair.User),
			conversation.NewMessage(conversation.RoleAssistant, pair.Assistant),
		)
	}
	return messages
}

// Response is one attempt of a batch run. Exactly one of Assistant or Error
// is set.
type Response struct {
	Attempt   int    `json:"attempt"`
	Assistant string `json:"assistant,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchRecord is the on-disk shape of a batch prompt run.
type BatchRecord struct {
	Settings  map[string]interface{} `json:"settings"`
	Responses []Response             `json:"responses"`
}
