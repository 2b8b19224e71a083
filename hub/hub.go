// Package hub is the server side of the event layer: it tracks logical
// connections, scopes broadcasts to project rooms and can synthesize
// scripted peer activity for demos. It serves real websocket clients and
// also backs an in-process Transport, so the client never knows which one
// it is talking to.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sustentus/collab/event"
)

const DefaultActivityInterval = 8 * time.Second

// outBuffer bounds the per-connection send queue. A consumer that falls
// this far behind starts losing broadcasts instead of blocking the hub.
const outBuffer = 64

// closeTimeout bounds the wait for connection goroutines during shutdown.
const closeTimeout = 10 * time.Second

type connection struct {
	id   string
	out  chan *event.Envelope
	once sync.Once
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.out)
	})
}

type handlerFunc func(sender string, env *event.Envelope) error

type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc

	scripted         bool
	activityInterval time.Duration
	greetDelay       time.Duration
	responseDelay    func() time.Duration
	roster           []event.UserInfo

	mu     sync.RWMutex
	conns  map[string]*connection
	rooms  map[string]map[string]struct{}
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithScriptedActivity toggles the demo behavior: periodic synthesized
// project activity, simulated peers joining rooms and scripted chat
// replies. Tests turn it off for determinism.
func WithScriptedActivity(enabled bool) Option {
	return func(h *Hub) {
		h.scripted = enabled
	}
}

func WithActivityInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.activityInterval = d
	}
}

func WithCheckOrigin(f func(origin string) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return f(r.Header.Get("Origin"))
		}
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
			return true
		}},
		scripted:         true,
		activityInterval: DefaultActivityInterval,
		greetDelay:       2 * time.Second,
		responseDelay: func() time.Duration {
			return 3*time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))
		},
		roster: defaultRoster,
		conns:  make(map[string]*connection),
		rooms:  make(map[string]map[string]struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.handlers = map[string]handlerFunc{
		event.JoinProject:     h.handleJoin,
		event.LeaveProject:    h.handleLeave,
		event.ChatMessage:     h.handleChat,
		event.TypingIndicator: h.handleTyping,
		event.PresenceUpdate:  h.handlePresence,
		event.ProjectUpdate:   h.handleProjectUpdate,
		event.Ping:            h.handlePing,
	}
	return h
}

// Start launches the scripted activity loop. Routing works without it; only
// the synthesized background traffic needs Start.
func (h *Hub) Start() {
	if !h.scripted {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.activityLoop()
	}()
	h.logger.Info("hub started", slog.Duration("activity_interval", h.activityInterval))
}

// Close disconnects every client and stops the scripted timers. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*connection)
	h.rooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	close(h.done)
	for _, c := range conns {
		c.close()
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	select {
	case <-finished:
		h.logger.Info("hub closed gracefully")
	case <-timer.C:
		h.logger.Info("hub closed with timeout")
	}
}

// register adds a logical connection and returns its inbound stream.
func (h *Hub) register(id string) (*connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("hub closed")
	}
	if _, ok := h.conns[id]; ok {
		return nil, fmt.Errorf("connection %s already registered", id)
	}
	c := &connection{id: id, out: make(chan *event.Envelope, outBuffer)}
	h.conns[id] = c
	h.logger.Info("connection registered", slog.String("id", id))
	return c, nil
}

func (h *Hub) deregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, id)
	for projectID, members := range h.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, projectID)
		}
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("connection deregistered", slog.String("id", id))
}

// route dispatches an inbound envelope to its handler. A handler panic or
// error is logged and never takes the hub down.
func (h *Hub) route(sender string, env *event.Envelope) {
	handler, ok := h.handlers[env.Type]
	if !ok {
		h.logger.Debug("unhandled message type", slog.String("type", env.Type))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error(fmt.Sprintf("handler(%s): %v", env.Type, r))
		}
	}()
	if err := handler(sender, env); err != nil {
		h.logger.Error(fmt.Sprintf("handler(%s): %v", env.Type, err))
	}
}

func (h *Hub) handleJoin(sender string, env *event.Envelope) error {
	var p event.JoinProjectPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal join payload: %w", err)
	}
	if p.ProjectID == "" {
		return fmt.Errorf("join without project id")
	}

	h.mu.Lock()
	members, ok := h.rooms[p.ProjectID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[p.ProjectID] = members
	}
	members[sender] = struct{}{}
	h.mu.Unlock()

	h.broadcastToRoom(p.ProjectID, event.UserJoined, event.UserJoinedPayload{
		UserID:    sender,
		ProjectID: p.ProjectID,
		UserInfo:  h.rosterInfo(sender),
	})

	if h.scripted {
		h.after(h.greetDelay, func() {
			h.simulatePeerJoining(p.ProjectID)
		})
	}
	return nil
}

func (h *Hub) handleLeave(sender string, env *event.Envelope) error {
	var p event.LeaveProjectPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal leave payload: %w", err)
	}

	h.mu.Lock()
	members, ok := h.rooms[p.ProjectID]
	if ok {
		delete(members, sender)
		if len(members) == 0 {
			delete(h.rooms, p.ProjectID)
		}
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}

	h.broadcastToRoom(p.ProjectID, event.UserLeft, event.UserLeftPayload{
		UserID:    sender,
		ProjectID: p.ProjectID,
	})
	return nil
}

func (h *Hub) handleChat(sender string, env *event.Envelope) error {
	var p event.ChatMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal chat payload: %w", err)
	}
	p.Timestamp = time.Now()

	h.broadcastToRoom(p.ProjectID, event.ChatMessage, p)

	if h.scripted {
		h.after(h.responseDelay(), func() {
			h.simulateTeamResponse(p.ProjectID)
		})
	}
	return nil
}

func (h *Hub) handleTyping(sender string, env *event.Envelope) error {
	var p event.TypingIndicatorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal typing payload: %w", err)
	}
	h.broadcastToRoom(p.ProjectID, event.TypingIndicator, p)
	return nil
}

func (h *Hub) handlePresence(sender string, env *event.Envelope) error {
	var p event.PresenceUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal presence payload: %w", err)
	}
	// Presence is not room-scoped; everyone hears it.
	h.broadcastAll(event.PresenceUpdate, p)
	return nil
}

func (h *Hub) handleProjectUpdate(sender string, env *event.Envelope) error {
	var p event.ProjectUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal project update payload: %w", err)
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	h.broadcastToRoom(p.ProjectID, event.ProjectUpdate, p)
	return nil
}

func (h *Hub) handlePing(sender string, env *event.Envelope) error {
	var p event.PingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal ping payload: %w", err)
	}
	h.sendTo(sender, event.Pong, event.PongPayload{Timestamp: p.Timestamp})
	return nil
}

// Members returns the connection ids currently in a room.
func (h *Hub) Members(projectID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]string, 0, len(h.rooms[projectID]))
	for id := range h.rooms[projectID] {
		members = append(members, id)
	}
	return members
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) sendTo(id, t string, payload any) {
	env, err := event.New(t, payload)
	if err != nil {
		h.logger.Error(fmt.Sprintf("send %s: %v", t, err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.conns[id]; ok {
		h.deliver(c, env)
	}
}

func (h *Hub) broadcastToRoom(projectID, t string, payload any) {
	env, err := event.New(t, payload)
	if err != nil {
		h.logger.Error(fmt.Sprintf("broadcast %s: %v", t, err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.rooms[projectID] {
		if c, ok := h.conns[id]; ok {
			h.deliver(c, env)
		}
	}
}

func (h *Hub) broadcastAll(t string, payload any) {
	env, err := event.New(t, payload)
	if err != nil {
		h.logger.Error(fmt.Sprintf("broadcast %s: %v", t, err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		h.deliver(c, env)
	}
}

func (h *Hub) deliver(c *connection, env *event.Envelope) {
	select {
	case c.out <- env:
	default:
		h.logger.Warn("dropping message for slow consumer",
			slog.String("id", c.id), slog.String("type", env.Type))
	}
}

// after schedules f unless the hub closes first.
func (h *Hub) after(d time.Duration, f func()) {
	time.AfterFunc(d, func() {
		select {
		case <-h.done:
		default:
			f()
		}
	})
}
