package realtime

import "sync"

// mailbox holds at most one undelivered message per type. A newer message
// replaces the pending one of its type in place; delivery follows first-enqueue order.
type mailbox struct {
	mu      sync.Mutex
	order   []MessageType
	pending map[MessageType]Message
	ready   chan struct{}
	onDrop  func(MessageType)
}

func newMailbox(onDrop func(MessageType)) *mailbox {
	return &mailbox{
		pending: make(map[MessageType]Message),
		ready:   make(chan struct{}, 1),
		onDrop:  onDrop,
	}
}

func (m *mailbox) put(msg Message) {
	m.mu.Lock()
	if _, ok := m.pending[msg.Type]; ok {
		if m.onDrop != nil {
			m.onDrop(msg.Type)
		}
	} else {
		m.order = append(m.order, msg.Type)
	}
	m.pending[msg.Type] = msg
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return Message{}, false
	}
	t := m.order[0]
	m.order = m.order[1:]
	msg := m.pending[t]
	delete(m.pending, t)
	return msg, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
