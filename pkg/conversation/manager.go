// Package conversation provides the message history for one chat session.
//
// A conversation is a linear, strictly ordered sequence of user and
// assistant messages, with an optional system message kept separate from
// the turn-by-turn exchange. The Manager is the only component allowed to
// mutate a conversation; the session layer serializes access to it.
package conversation

// Manager owns the ordered message history of a single session.
type Manager interface {
	// GetConversation returns a snapshot of the full history, with the
	// system message (when set) at the head. Mutating the returned
	// messages has no effect on the managed state.
	GetConversation() Conversation
	// Turns returns a snapshot of the exchange without the system message.
	Turns() Conversation
	SystemMessage() string
	AppendMessages(msgs ...*Message)
	// AppendToLast grows the content of the most recent message; used for
	// the in-flight assistant placeholder while fragments arrive.
	AppendToLast(delta string)
	// ReplaceLast overwrites the content of the most recent message.
	ReplaceLast(content string)
	// DropLast removes the most recent message. Used to discard a canceled
	// placeholder so the next turn pairs up cleanly.
	DropLast()
}
