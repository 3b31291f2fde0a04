package conversation

import "time"

type ManagerImpl struct {
	systemMessage *Message
	messages      Conversation
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

func WithSystemMessage(content string) ManagerOption {
	return func(m *ManagerImpl) {
		if content == "" {
			return
		}
		m.systemMessage = NewMessage(RoleSystem, content)
	}
}

func WithMessages(messages ...*Message) ManagerOption {
	return func(m *ManagerImpl) {
		m.AppendMessages(messages...)
	}
}

func NewManager(options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{}
	for _, option := range options {
		option(ret)
	}

	return ret
}

func (m *ManagerImpl) GetConversation() Conversation {
	ret := make(Conversation, 0, len(m.messages)+1)
	if m.systemMessage != nil {
		ret = append(ret, m.systemMessage.Clone())
	}
	for _, msg := range m.messages {
		ret = append(ret, msg.Clone())
	}
	return ret
}

func (m *ManagerImpl) Turns() Conversation {
	return m.messages.Clone()
}

func (m *ManagerImpl) SystemMessage() string {
	if m.systemMessage == nil {
		return ""
	}
	return m.systemMessage.Content
}

func (m *ManagerImpl) AppendMessages(messages ...*Message) {
	m.messages = append(m.messages, messages...)
}

func (m *ManagerImpl) AppendToLast(delta string) {
	if len(m.messages) == 0 {
		return
	}
	last := m.messages[len(m.messages)-1]
	last.Content += delta
	last.Time = time.Now()
}

func (m *ManagerImpl) ReplaceLast(content string) {
	if len(m.messages) == 0 {
		return
	}
	last := m.messages[len(m.messages)-1]
	last.Content = content
	last.Time = time.Now()
}

func (m *ManagerImpl) DropLast() {
	if len(m.messages) == 0 {
		return
	}
	m.messages = m.messages[:len(m.messages)-1]
}
