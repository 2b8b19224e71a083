package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sustentus/collab/event"
)

// Transport connects a client to the hub without a socket. It satisfies the
// client's Transport interface, so tests and demos can run the full event
// flow in one process. A closed transport can be reopened; each Open is a
// fresh logical connection.
type Transport struct {
	hub *Hub

	mu   sync.Mutex
	id   string
	open bool
}

func NewTransport(h *Hub) *Transport {
	return &Transport{hub: h}
}

func (t *Transport) Open(ctx context.Context) (<-chan *event.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return nil, fmt.Errorf("transport already open")
	}
	id := uuid.NewString()
	c, err := t.hub.register(id)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	t.id = id
	t.open = true
	return c.out, nil
}

func (t *Transport) Send(env *event.Envelope) error {
	t.mu.Lock()
	id, open := t.id, t.open
	t.mu.Unlock()
	if !open {
		return fmt.Errorf("transport closed")
	}
	t.hub.route(id, env)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	id := t.id
	t.open = false
	t.mu.Unlock()

	t.hub.deregister(id)
	return nil
}
