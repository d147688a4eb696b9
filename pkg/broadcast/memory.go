package broadcast

import (
	"context"
	"sync"
)

// Memory is an in-process Broadcaster for single-node deployments and
// tests. Publish delivers synchronously to every active subscriber.
type Memory struct {
	mu   sync.Mutex
	subs map[int]func(Message)
	next int
}

// NewMemory returns an empty in-process broadcaster.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]func(Message))}
}

// Publish implements Broadcaster.
func (m *Memory) Publish(ctx context.Context, msg Message) error {
	m.mu.Lock()
	handlers := make([]func(Message), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// Subscribe implements Broadcaster. It blocks until ctx is canceled.
func (m *Memory) Subscribe(ctx context.Context, handler func(Message)) error {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = handler
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
	return ctx.Err()
}
