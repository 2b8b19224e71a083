// Package ws is the websocket-backed transport: it dials a hub endpoint
// with gorilla/websocket and shuttles envelopes over the wire. The client
// only ever sees the Transport contract, so swapping this for the
// in-process hub transport changes nothing above it.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sustentus/collab/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	recvBuffer = 32
)

type Transport struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	stop    chan struct{}
}

type Option func(*Transport)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

func NewTransport(url string, opts ...Option) *Transport {
	t := &Transport{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open dials the endpoint and starts the read and keepalive loops. The
// returned channel closes when the connection is lost; Open may be called
// again afterwards to dial fresh.
func (t *Transport) Open(ctx context.Context) (<-chan *event.Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil, fmt.Errorf("transport already open")
	}

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	t.conn = conn
	t.stop = make(chan struct{})

	recv := make(chan *event.Envelope, recvBuffer)
	go t.readLoop(conn, recv)
	go t.keepaliveLoop(conn, t.stop)
	return recv, nil
}

// Send writes the envelope with a deadline. Transport faults are returned,
// not retried; the connection manager owns recovery.
func (t *Transport) Send(env *event.Envelope) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport closed")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	return nil
}

// Close sends a close frame and tears the connection down. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return conn.Close()
}

// readLoop decodes inbound envelopes onto recv until the connection dies.
// Malformed frames are logged and skipped; the channel close is the loss
// signal the connection manager reacts to.
func (t *Transport) readLoop(conn *websocket.Conn, recv chan<- *event.Envelope) {
	defer func() {
		close(recv)
		t.teardown(conn)
		t.logger.Debug("read loop stopped")
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, r, err := conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			t.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		var env event.Envelope
		if err := event.Decode(r, &env); err != nil {
			t.logger.Error(fmt.Sprintf("decode: %v", err))
			continue
		}
		recv <- &env
	}
}

// keepaliveLoop answers the server's read deadline with protocol-level
// pings. Application-level ping envelopes are the client's business, not
// the transport's.
func (t *Transport) keepaliveLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Error(fmt.Sprintf("write ping: %v", err))
				return
			}
		}
	}
}

// teardown clears the transport state if conn is still the active
// connection, so a later Open can dial again.
func (t *Transport) teardown(conn *websocket.Conn) {
	conn.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		t.conn = nil
		if t.stop != nil {
			close(t.stop)
			t.stop = nil
		}
	}
}
