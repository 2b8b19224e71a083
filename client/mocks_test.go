package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sustentus/collab/event"
)

// mockTransport is a deterministic in-memory Transport. Tests script Open
// failures, inspect sent envelopes and inject inbound traffic.
type mockTransport struct {
	mu       sync.Mutex
	sent     []*event.Envelope
	recv     chan *event.Envelope
	openErrs int
	opens    []time.Time
	closes   int
}

func newMockTransport() *mockTransport {
	return &mockTransport{}
}

// failNext makes the next n Open calls fail.
func (m *mockTransport) failNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs = n
}

func (m *mockTransport) Open(ctx context.Context) (<-chan *event.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, time.Now())
	if m.openErrs > 0 {
		m.openErrs--
		return nil, errors.New("connection refused")
	}
	m.recv = make(chan *event.Envelope, 16)
	return m.recv, nil
}

func (m *mockTransport) Send(env *event.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, env)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recv != nil {
		close(m.recv)
		m.recv = nil
	}
	m.closes++
	return nil
}

// push injects an inbound envelope, as if the server had sent it.
func (m *mockTransport) push(env *event.Envelope) {
	m.mu.Lock()
	recv := m.recv
	m.mu.Unlock()
	recv <- env
}

// drop simulates losing the connection without a client-side Close.
func (m *mockTransport) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recv != nil {
		close(m.recv)
		m.recv = nil
	}
}

func (m *mockTransport) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opens)
}

func (m *mockTransport) openTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.opens))
	copy(out, m.opens)
	return out
}

func (m *mockTransport) sentEnvelopes() []*event.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*event.Envelope, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockTransport) sentOfType(t string) []*event.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Envelope
	for _, env := range m.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}
