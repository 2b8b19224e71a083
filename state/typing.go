package state

import (
	"sort"
	"sync"
)

// Typing tracks which users are composing a message, per project room.
// A room entry exists only while at least one user is typing.
type Typing struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewTyping() *Typing {
	return &Typing{rooms: make(map[string]map[string]struct{})}
}

// Apply folds a typing indicator into the tracker. Clearing the last typist
// of a room removes the room entry entirely.
func (t *Typing) Apply(projectID, userID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.rooms[projectID]
	if isTyping {
		if !ok {
			users = make(map[string]struct{})
			t.rooms[projectID] = users
		}
		users[userID] = struct{}{}
		return
	}
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, projectID)
	}
}

// TypingUsers returns the users typing in a room, ordered by user id.
// Unknown rooms yield an empty result.
func (t *Typing) TypingUsers(projectID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := make([]string, 0, len(t.rooms[projectID]))
	for u := range t.rooms[projectID] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (t *Typing) IsTyping(projectID, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[projectID][userID]
	return ok
}
