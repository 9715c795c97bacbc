package bus

import (
	"context"
	"sync"

	"github.com/trusttai/api/internal/sse"
)

// Memory delivers events synchronously to in-process subscribers. It is the
// single-instance driver.
type Memory struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{handlers: make(map[int]Handler)}
}

func (m *Memory) Publish(ctx context.Context, event sse.Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	for _, handle := range m.handlers {
		handle(event)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, handle Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	id := m.next
	m.next++
	m.handlers[id] = handle
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.handlers, id)
	m.mu.Unlock()
	return nil
}

// Subscribers reports how many handlers are attached.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

func (m *Memory) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
