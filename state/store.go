package state

import (
	"log/slog"
	"os"
	"sync"

	"github.com/sustentus/collab/bus"
	"github.com/sustentus/collab/event"
)

// ConnectionStatus values mirror the connection manager states so UI code
// can distinguish "retrying" from "gave up".
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusError        = "error"
	StatusFailed       = "failed"
)

// Store binds a bus to the derived-state trackers. It is the only interface
// the UI needs: connection status, online users, per-room typing sets and
// recent project activity. All mutation happens in its event handlers; UI
// code never writes.
type Store struct {
	presence *Presence
	typing   *Typing
	feed     *Feed

	mu      sync.RWMutex
	status  string
	updates []event.ProjectUpdatePayload

	retention int
	bus       *bus.Bus
	subs      []bus.Subscription
	logger    *slog.Logger
}

type StoreOption func(*Store)

func WithRetention(n int) StoreOption {
	return func(s *Store) {
		s.retention = n
	}
}

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore builds a store and subscribes it to b. Call Close to detach.
func NewStore(b *bus.Bus, opts ...StoreOption) *Store {
	s := &Store{
		status:    StatusDisconnected,
		retention: DefaultRetention,
		bus:       b,
		logger:    slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.presence = NewPresence()
	s.typing = NewTyping()
	s.feed = NewFeed(s.retention)
	s.subscribe()
	return s
}

func (s *Store) subscribe() {
	s.subs = append(s.subs,
		s.bus.On(event.Connected, func(...any) { s.setStatus(StatusConnected) }),
		s.bus.On(event.Disconnected, func(...any) { s.setStatus(StatusDisconnected) }),
		s.bus.On(event.Error, func(...any) { s.setStatus(StatusError) }),
		s.bus.On(event.ReconnectFailed, func(...any) { s.setStatus(StatusFailed) }),
		s.bus.On(event.ChatMessage, s.onChatMessage),
		s.bus.On(event.TypingIndicator, s.onTypingIndicator),
		s.bus.On(event.ProjectUpdate, s.onProjectUpdate),
		s.bus.On(event.PresenceUpdate, s.onPresenceUpdate),
		s.bus.On(event.UserJoined, s.onUserJoined),
		s.bus.On(event.UserLeft, s.onUserLeft),
	)
}

// Close detaches the store from the bus. State queries remain valid but
// frozen.
func (s *Store) Close() {
	for _, sub := range s.subs {
		s.bus.Off(sub)
	}
	s.subs = nil
}

func (s *Store) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Store) onChatMessage(args ...any) {
	p, env, ok := payloadOf[event.ChatMessagePayload](args)
	if !ok {
		return
	}
	s.feed.Record(ActivityEvent{
		ID:        env.MessageID,
		Type:      event.ChatMessage,
		Data:      p,
		Timestamp: env.Timestamp,
	})
}

func (s *Store) onTypingIndicator(args ...any) {
	p, _, ok := payloadOf[event.TypingIndicatorPayload](args)
	if !ok {
		return
	}
	s.typing.Apply(p.ProjectID, p.UserID, p.IsTyping)
}

func (s *Store) onProjectUpdate(args ...any) {
	p, env, ok := payloadOf[event.ProjectUpdatePayload](args)
	if !ok {
		return
	}
	if p.ID == "" {
		p.ID = env.MessageID
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = env.Timestamp
	}

	s.mu.Lock()
	s.updates = append([]event.ProjectUpdatePayload{p}, s.updates...)
	if len(s.updates) > s.retention {
		s.updates = s.updates[:s.retention]
	}
	s.mu.Unlock()

	kind := p.UpdateType
	if kind == "" {
		kind = event.UpdateProjectUpdate
	}
	s.feed.Record(ActivityEvent{
		ID:        p.ID,
		Type:      kind,
		Data:      p,
		Timestamp: p.Timestamp,
	})
}

func (s *Store) onPresenceUpdate(args ...any) {
	p, _, ok := payloadOf[event.PresenceUpdatePayload](args)
	if !ok {
		return
	}
	s.presence.Apply(p.UserID, p.Status)
}

func (s *Store) onUserJoined(args ...any) {
	p, _, ok := payloadOf[event.UserJoinedPayload](args)
	if !ok {
		return
	}
	// Joining a room implies the user is reachable.
	s.presence.Apply(p.UserID, event.StatusOnline)
	s.logger.Debug("user joined",
		slog.String("user", p.UserID), slog.String("project", p.ProjectID))
}

func (s *Store) onUserLeft(args ...any) {
	p, _, ok := payloadOf[event.UserLeftPayload](args)
	if !ok {
		return
	}
	s.logger.Debug("user left",
		slog.String("user", p.UserID), slog.String("project", p.ProjectID))
}

// payloadOf extracts the typed payload and envelope from handler args as
// emitted by the client: (payload, *event.Envelope).
func payloadOf[T any](args []any) (T, *event.Envelope, bool) {
	var p T
	if len(args) == 0 {
		return p, nil, false
	}
	p, ok := args[0].(T)
	if !ok {
		return p, nil, false
	}
	var env *event.Envelope
	if len(args) > 1 {
		env, _ = args[1].(*event.Envelope)
	}
	if env == nil {
		env = &event.Envelope{}
	}
	return p, env, true
}

func (s *Store) ConnectionStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) OnlineUsers() []PresenceRecord {
	return s.presence.Online()
}

func (s *Store) Presence() *Presence {
	return s.presence
}

func (s *Store) TypingUsers(projectID string) []string {
	return s.typing.TypingUsers(projectID)
}

func (s *Store) IsUserTyping(projectID, userID string) bool {
	return s.typing.IsTyping(projectID, userID)
}

// ProjectUpdates returns the recent project updates, most recent first,
// capped at the retention count.
func (s *Store) ProjectUpdates() []event.ProjectUpdatePayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.ProjectUpdatePayload, len(s.updates))
	copy(out, s.updates)
	return out
}

func (s *Store) LastActivity() (ActivityEvent, bool) {
	return s.feed.Latest()
}

func (s *Store) Activity() *Feed {
	return s.feed
}
