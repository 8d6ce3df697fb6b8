package queue

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Client used by tests and local development.
// Messages published while a queue has no subscriber stay buffered, matching
// broker behavior when a consumer is cancelled.
type Memory struct {
	mu        sync.Mutex
	buffers   map[string][]Delivery
	consumers map[string]chan Delivery
	published []Delivery
	closed    bool
}

var _ Client = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		buffers:   make(map[string][]Delivery),
		consumers: make(map[string]chan Delivery),
	}
}

func (m *Memory) Subscribe(ctx context.Context, queue string) (<-chan Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrNotConnected
	}
	if ch, ok := m.consumers[queue]; ok {
		return ch, nil
	}

	// size for the replayed backlog so the buffered sends below cannot block
	capacity := 64
	if n := len(m.buffers[queue]); n > capacity {
		capacity = n
	}
	ch := make(chan Delivery, capacity)
	m.consumers[queue] = ch
	for _, d := range m.buffers[queue] {
		ch <- d
	}
	m.buffers[queue] = nil
	return ch, nil
}

func (m *Memory) Unsubscribe(queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.consumers[queue]
	if !ok {
		return ErrNotSubscribed
	}
	delete(m.consumers, queue)

	// drain undelivered messages back into the buffer
	close(ch)
	for d := range ch {
		m.buffers[queue] = append(m.buffers[queue], d)
	}
	return nil
}

// Publish routes by exact queue-name match, mirroring the topic bindings the
// AMQP client declares.
func (m *Memory) Publish(ctx context.Context, routingKey string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrNotConnected
	}

	d := Delivery{Queue: routingKey, Body: body}
	m.published = append(m.published, d)

	if ch, ok := m.consumers[routingKey]; ok {
		select {
		case ch <- d:
			return nil
		default:
		}
	}
	m.buffers[routingKey] = append(m.buffers[routingKey], d)
	return nil
}

func (m *Memory) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for q, ch := range m.consumers {
		close(ch)
		delete(m.consumers, q)
	}
	return nil
}

// Published returns all messages published so far, optionally filtered by a
// routing-key prefix. Test helper.
func (m *Memory) Published(prefix string) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Delivery, 0, len(m.published))
	for _, d := range m.published {
		if prefix == "" || strings.HasPrefix(d.Queue, prefix) {
			out = append(out, d)
		}
	}
	return out
}

// Buffered reports how many undelivered messages sit in a queue. Test helper.
func (m *Memory) Buffered(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.buffers[queue])
	if ch, ok := m.consumers[queue]; ok {
		n += len(ch)
	}
	return n
}
