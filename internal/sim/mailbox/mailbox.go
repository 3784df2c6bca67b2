// Package mailbox implements two-phase message delivery: messages sent during a
// round are staged and only become readable after Finalize.
package mailbox

import (
	"sync"

	"statecraft.ai/internal/protocol"
)

// Batch is the set of messages committed by one Finalize call.
type Batch struct {
	Private []protocol.Message `json:"private"`
	Public  []protocol.Message `json:"public"`
}

func (b Batch) Len() int { return len(b.Private) + len(b.Public) }

// Mailbox stores committed and pending messages. Committed storage only grows.
type Mailbox struct {
	mu sync.RWMutex

	private map[string][]protocol.Message
	public  []protocol.Message

	// Pending storage, cleared by Finalize.
	pendingPrivate map[string][]protocol.Message
	pendingOrder   []string
	pendingPublic  []protocol.Message
}

func New() *Mailbox {
	return &Mailbox{
		private:        map[string][]protocol.Message{},
		pendingPrivate: map[string][]protocol.Message{},
	}
}

// Send stages a message. It is invisible to readers until Finalize.
func (m *Mailbox) Send(msg protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.IsPublic() {
		m.pendingPublic = append(m.pendingPublic, msg)
		return
	}
	if _, ok := m.pendingPrivate[msg.Recipient]; !ok {
		m.pendingOrder = append(m.pendingOrder, msg.Recipient)
	}
	m.pendingPrivate[msg.Recipient] = append(m.pendingPrivate[msg.Recipient], msg)
}

// Finalize commits every pending message and returns what was committed.
func (m *Mailbox) Finalize() Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b Batch
	for _, alias := range m.pendingOrder {
		msgs := m.pendingPrivate[alias]
		m.private[alias] = append(m.private[alias], msgs...)
		b.Private = append(b.Private, msgs...)
	}
	m.public = append(m.public, m.pendingPublic...)
	b.Public = append(b.Public, m.pendingPublic...)

	m.pendingPrivate = map[string][]protocol.Message{}
	m.pendingOrder = m.pendingOrder[:0]
	m.pendingPublic = nil
	return b
}

// Read returns a copy of the committed private messages for alias.
func (m *Mailbox) Read(alias string) []protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMessages(m.private[alias])
}

// ReadPublicStatements returns a copy of the full committed public history.
func (m *Mailbox) ReadPublicStatements() []protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMessages(m.public)
}

// Pending reports how many messages are staged.
func (m *Mailbox) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.pendingPublic)
	for _, msgs := range m.pendingPrivate {
		n += len(msgs)
	}
	return n
}

// Committed returns copies of all committed private (by recipient) and public messages.
func (m *Mailbox) Committed() (map[string][]protocol.Message, []protocol.Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	priv := make(map[string][]protocol.Message, len(m.private))
	for alias, msgs := range m.private {
		priv[alias] = cloneMessages(msgs)
	}
	return priv, cloneMessages(m.public)
}

// Restore replaces the committed store, dropping anything pending. Used on snapshot import.
func (m *Mailbox) Restore(private map[string][]protocol.Message, public []protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private = make(map[string][]protocol.Message, len(private))
	for alias, msgs := range private {
		m.private[alias] = cloneMessages(msgs)
	}
	m.public = cloneMessages(public)
	m.pendingPrivate = map[string][]protocol.Message{}
	m.pendingOrder = nil
	m.pendingPublic = nil
}

func cloneMessages(in []protocol.Message) []protocol.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.Message, len(in))
	copy(out, in)
	return out
}
