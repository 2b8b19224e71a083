// Package client implements the reconnecting connection manager: state
// machine, exponential backoff, heartbeat, outbound queuing while
// disconnected and the room registry. Inbound traffic is re-emitted on the
// bus; nothing here blocks the caller.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sustentus/collab/bus"
	"github.com/sustentus/collab/event"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseDelay   = time.Second
	DefaultMaxReconnectAttempts = 5
)

type queuedMessage struct {
	eventType  string
	payload    any
	enqueuedAt time.Time
}

// Status is a point-in-time snapshot of the connection.
type Status struct {
	State             State
	ReconnectAttempts int
	QueueLen          int
}

type Client struct {
	transport Transport
	bus       *bus.Bus
	logger    *slog.Logger

	heartbeatInterval time.Duration
	baseDelay         time.Duration
	maxAttempts       int

	mu             sync.Mutex
	state          State
	attempts       int
	queue          []queuedMessage
	rooms          map[string]struct{}
	hbStop         chan struct{}
	reconnectTimer *time.Timer
	// epoch invalidates timers and read loops that outlive a Disconnect.
	epoch uint64
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		c.heartbeatInterval = d
	}
}

func WithReconnect(baseDelay time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.baseDelay = baseDelay
		c.maxAttempts = maxAttempts
	}
}

// New builds a client over t. Events, both lifecycle (connected, error, ...)
// and inbound traffic, are emitted on b.
func New(t Transport, b *bus.Bus, opts ...Option) *Client {
	c := &Client{
		transport:         t,
		bus:               b,
		logger:            slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		heartbeatInterval: DefaultHeartbeatInterval,
		baseDelay:         DefaultReconnectBaseDelay,
		maxAttempts:       DefaultMaxReconnectAttempts,
		state:             Disconnected,
		rooms:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Bus() *bus.Bus {
	return c.bus
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, ReconnectAttempts: c.attempts, QueueLen: len(c.queue)}
}

// Connect starts connecting. It is a no-op while connected or already
// connecting, returns immediately, and resets the retry counter, so a fresh
// call also recovers a Failed client. Success is reported with a single
// connected event; failures surface as error events followed by backoff
// retries.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	c.attempts = 0
	epoch := c.epoch
	c.mu.Unlock()

	go c.attempt(epoch)
}

func (c *Client) attempt(epoch uint64) {
	recv, err := c.transport.Open(context.Background())
	if err != nil {
		c.logger.Error(fmt.Sprintf("connect: %v", err))
		c.mu.Lock()
		if c.epoch != epoch || c.state != Connecting {
			c.mu.Unlock()
			return
		}
		c.state = Error
		c.mu.Unlock()
		c.bus.Emit(event.Error, event.ErrorPayload{Error: err.Error()})
		c.scheduleReconnect(epoch)
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != Connecting {
		// Disconnect won the race; do not resurrect the connection.
		c.mu.Unlock()
		c.transport.Close()
		return
	}
	c.state = Connected
	c.attempts = 0
	queued := c.queue
	c.queue = nil
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	c.hbStop = make(chan struct{})
	hbStop := c.hbStop
	c.mu.Unlock()

	c.logger.Info("connected")
	go c.heartbeatLoop(hbStop)
	go c.readLoop(recv, epoch)

	// Re-establish room membership before replaying queued traffic so
	// broadcasts scoped to those rooms reach us again.
	for _, room := range rooms {
		c.sendNow(event.JoinProject, event.JoinProjectPayload{ProjectID: room})
	}
	for _, m := range queued {
		c.Send(m.eventType, m.payload)
	}
	c.bus.Emit(event.Connected)
}

// Send transmits immediately when connected, stamping the message with a
// fresh id and timestamp. Otherwise it appends to the queue; from the
// caller's perspective a send never fails.
func (c *Client) Send(eventType string, payload any) {
	c.mu.Lock()
	if c.state != Connected {
		c.queue = append(c.queue, queuedMessage{
			eventType:  eventType,
			payload:    payload,
			enqueuedAt: time.Now(),
		})
		n := len(c.queue)
		c.mu.Unlock()
		c.logger.Debug("queued message",
			slog.String("type", eventType), slog.Int("queue_len", n))
		return
	}
	c.mu.Unlock()
	c.sendNow(eventType, payload)
}

func (c *Client) sendNow(eventType string, payload any) {
	env, err := event.New(eventType, payload)
	if err != nil {
		c.logger.Error(fmt.Sprintf("send %s: %v", eventType, err))
		return
	}
	if err := c.transport.Send(env); err != nil {
		c.logger.Error(fmt.Sprintf("send %s: %v", eventType, err))
		c.bus.Emit(event.Error, event.ErrorPayload{Error: err.Error()})
	}
}

// Disconnect tears the connection down: heartbeat stopped, pending
// reconnects cancelled, a disconnected event with a normal-close reason.
// Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.state = Disconnected
	c.attempts = 0
	c.stopHeartbeatLocked()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	c.transport.Close()
	c.bus.Emit(event.Disconnected, event.DisconnectedPayload{
		Code:   1000,
		Reason: "client requested disconnect",
	})
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

func (c *Client) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Send(event.Ping, event.PingPayload{Timestamp: time.Now().UnixMilli()})
		}
	}
}

// readLoop drains the transport until the connection is lost, then kicks
// off the backoff cycle unless the loss was client-requested.
func (c *Client) readLoop(recv <-chan *event.Envelope, epoch uint64) {
	for env := range recv {
		c.handleInbound(env)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Error
	c.stopHeartbeatLocked()
	c.mu.Unlock()

	// Release the dead connection so the next attempt can open fresh.
	c.transport.Close()
	c.logger.Warn("connection lost")
	c.bus.Emit(event.Error, event.ErrorPayload{Error: "connection lost"})
	c.scheduleReconnect(epoch)
}

// scheduleReconnect arms the next retry: attempt k fires after
// baseDelay * 2^(k-1). Exhausting the budget parks the client in Failed;
// only an explicit Connect leaves that state.
func (c *Client) scheduleReconnect(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != Error {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.state = Failed
		c.mu.Unlock()
		c.logger.Error("max reconnection attempts reached")
		c.bus.Emit(event.ReconnectFailed)
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.baseDelay << (attempt - 1)
	c.logger.Info("reconnecting",
		slog.Int("attempt", attempt), slog.Duration("delay", delay))
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		// A timer armed before Disconnect may still fire; it must not
		// resurrect a deliberately closed connection.
		if c.epoch != epoch || c.state != Error {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		c.mu.Unlock()
		c.attempt(epoch)
	})
	c.mu.Unlock()
}

// handleInbound decodes an envelope payload into its typed form and
// re-emits it on the bus as (payload, envelope). Every envelope also fires
// a generic message event. Malformed payloads are logged and discarded.
func (c *Client) handleInbound(env *event.Envelope) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}

	payload, err := decodePayload(env)
	if err != nil {
		c.logger.Error(fmt.Sprintf("inbound %s: %v", env.Type, err))
		return
	}
	c.bus.Emit(env.Type, payload, env)
	c.bus.Emit(event.Message, env)
}

func decodePayload(env *event.Envelope) (any, error) {
	unmarshal := func(v any) (any, error) {
		if len(env.Payload) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return v, nil
	}

	var (
		decoded any
		err     error
	)
	switch env.Type {
	case event.ChatMessage:
		decoded, err = unmarshal(&event.ChatMessagePayload{})
	case event.TypingIndicator:
		decoded, err = unmarshal(&event.TypingIndicatorPayload{})
	case event.PresenceUpdate:
		decoded, err = unmarshal(&event.PresenceUpdatePayload{})
	case event.ProjectUpdate:
		decoded, err = unmarshal(&event.ProjectUpdatePayload{})
	case event.UserJoined:
		decoded, err = unmarshal(&event.UserJoinedPayload{})
	case event.UserLeft:
		decoded, err = unmarshal(&event.UserLeftPayload{})
	case event.Pong:
		decoded, err = unmarshal(&event.PongPayload{})
	default:
		return env.Payload, nil
	}
	if err != nil {
		return nil, err
	}
	return deref(decoded), nil
}

// deref flattens the pointer produced by decoding so bus subscribers see
// plain payload values.
func deref(v any) any {
	switch p := v.(type) {
	case *event.ChatMessagePayload:
		return *p
	case *event.TypingIndicatorPayload:
		return *p
	case *event.PresenceUpdatePayload:
		return *p
	case *event.ProjectUpdatePayload:
		return *p
	case *event.UserJoinedPayload:
		return *p
	case *event.UserLeftPayload:
		return *p
	case *event.PongPayload:
		return *p
	default:
		return v
	}
}
