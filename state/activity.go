package state

import (
	"sync"
	"time"
)

// DefaultRetention is how many activity entries the feed keeps.
const DefaultRetention = 10

type ActivityEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed is a bounded, most-recent-first log of domain events. Recording past
// the retention cap evicts the oldest entries.
type Feed struct {
	mu        sync.RWMutex
	retention int
	events    []ActivityEvent
}

func NewFeed(retention int) *Feed {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Feed{retention: retention}
}

func (f *Feed) Record(e ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append([]ActivityEvent{e}, f.events...)
	if len(f.events) > f.retention {
		f.events = f.events[:f.retention]
	}
}

// Latest returns the most recent event, if any.
func (f *Feed) Latest() (ActivityEvent, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.events) == 0 {
		return ActivityEvent{}, false
	}
	return f.events[0], true
}

// Recent returns a snapshot of the feed, most recent first.
func (f *Feed) Recent() []ActivityEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ActivityEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}
