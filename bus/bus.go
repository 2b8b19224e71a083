// Package bus implements a small synchronous publish/subscribe registry.
// Handlers are invoked in registration order by the goroutine that calls
// Emit; a misbehaving handler never breaks dispatch for the others.
package bus

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

type Handler func(args ...any)

// Subscription identifies a single registration. The same handler function
// may be registered more than once; each registration has its own token and
// is invoked once per Emit.
type Subscription struct {
	event string
	seq   uint64
}

type registration struct {
	seq     uint64
	handler Handler
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	nextSeq  uint64
	logger   *slog.Logger
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]registration),
		logger:   slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On appends handler to the registration list for eventName and returns the
// token that removes exactly this registration.
func (b *Bus) On(eventName string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	sub := Subscription{event: eventName, seq: b.nextSeq}
	b.handlers[eventName] = append(b.handlers[eventName], registration{seq: sub.seq, handler: h})
	return sub
}

// Off removes the registration identified by sub. Removing a subscription
// that is unknown or already removed is a no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs, ok := b.handlers[sub.event]
	if !ok {
		return
	}
	for i, reg := range regs {
		if reg.seq == sub.seq {
			b.handlers[sub.event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.event]) == 0 {
		delete(b.handlers, sub.event)
	}
}

// Emit invokes every handler currently registered for eventName,
// synchronously and in registration order, passing args through unmodified.
// The handler list is snapshotted first, so handlers may subscribe or
// unsubscribe during dispatch without skipping or double-invoking entries.
// Emitting an event nobody listens to is a no-op.
func (b *Bus) Emit(eventName string, args ...any) {
	b.mu.RLock()
	regs := make([]registration, len(b.handlers[eventName]))
	copy(regs, b.handlers[eventName])
	b.mu.RUnlock()

	for _, reg := range regs {
		b.dispatch(eventName, reg.handler, args)
	}
}

func (b *Bus) dispatch(eventName string, h Handler, args []any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(fmt.Sprintf("handler(%s): %v", eventName, r))
		}
	}()
	h(args...)
}
