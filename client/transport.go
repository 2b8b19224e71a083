package client

import (
	"context"

	"github.com/sustentus/collab/event"
)

// Transport is the minimal contract the client needs from a wire. Open
// establishes the connection and returns the inbound stream; the channel is
// closed when the connection is lost. Implementations include the websocket
// transport and the in-process hub transport.
type Transport interface {
	Open(ctx context.Context) (<-chan *event.Envelope, error)
	Send(e *event.Envelope) error
	Close() error
}
