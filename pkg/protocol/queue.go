package protocol

import "sync"

// MessageQueue is a FIFO buffer of decoded messages. It decouples socket
// receipt from protocol handling: the receive loop pushes, the router or
// dispatcher pops. Unbounded; backpressure belongs at the socket layer.
type MessageQueue struct {
	mu    sync.Mutex
	queue []*Message
}

// NewMessageQueue returns an empty queue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Push appends a message.
func (q *MessageQueue) Push(m *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, m)
}

// Pop removes and returns the oldest message, or nil when empty.
func (q *MessageQueue) Pop() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	m := q.queue[0]
	q.queue = q.queue[1:]
	return m
}

// Peek returns the oldest message without removing it, or nil when empty.
func (q *MessageQueue) Peek() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}
