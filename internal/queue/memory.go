package queue

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Queue for tests. Published messages are appended
// per routing key; Drain hands them to a handler synchronously, re-appending
// on handler error to mimic redelivery.
type Memory struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func NewMemory() *Memory {
	return &Memory{messages: make(map[string][][]byte)}
}

func (m *Memory) Publish(_ context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[routingKey] = append(m.messages[routingKey], payload)
	return nil
}

// Consume drains messages already published to routingKey and returns. Tests
// drive delivery explicitly rather than running a background consumer.
func (m *Memory) Consume(ctx context.Context, routingKey string, handler Handler) error {
	return m.Drain(ctx, routingKey, handler)
}

// Drain delivers all pending messages for routingKey. A handler error
// re-appends the message and stops, like a nack with requeue.
func (m *Memory) Drain(ctx context.Context, routingKey string, handler Handler) error {
	for {
		m.mu.Lock()
		pending := m.messages[routingKey]
		if len(pending) == 0 {
			m.mu.Unlock()
			return nil
		}
		msg := pending[0]
		m.messages[routingKey] = pending[1:]
		m.mu.Unlock()

		if err := handler(ctx, msg); err != nil {
			m.mu.Lock()
			m.messages[routingKey] = append(m.messages[routingKey], msg)
			m.mu.Unlock()
			return err
		}
	}
}

// Pending reports how many messages wait under routingKey.
func (m *Memory) Pending(routingKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[routingKey])
}
