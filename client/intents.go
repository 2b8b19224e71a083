package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sustentus/collab/event"
)

// JoinProject records room membership and notifies the transport. Joining
// a room the client is already in is a no-op. While disconnected only the
// membership is recorded; Connect replays it, so the intent is not queued
// a second time.
func (c *Client) JoinProject(projectID string) {
	c.mu.Lock()
	if _, ok := c.rooms[projectID]; ok {
		c.mu.Unlock()
		return
	}
	c.rooms[projectID] = struct{}{}
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		c.Send(event.JoinProject, event.JoinProjectPayload{ProjectID: projectID})
	}
}

// LeaveProject drops room membership. Leaving a room the client never
// joined is a no-op.
func (c *Client) LeaveProject(projectID string) {
	c.mu.Lock()
	if _, ok := c.rooms[projectID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, projectID)
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		c.Send(event.LeaveProject, event.LeaveProjectPayload{ProjectID: projectID})
	}
}

// Rooms returns the currently joined rooms, ordered by id.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (c *Client) SendChatMessage(projectID, message, userID string) {
	c.Send(event.ChatMessage, event.ChatMessagePayload{
		ProjectID: projectID,
		Message:   message,
		UserID:    userID,
		Timestamp: time.Now(),
	})
}

func (c *Client) SendTypingIndicator(projectID, userID string, isTyping bool) {
	c.Send(event.TypingIndicator, event.TypingIndicatorPayload{
		ProjectID: projectID,
		UserID:    userID,
		IsTyping:  isTyping,
	})
}

func (c *Client) SendProjectUpdate(projectID, updateType string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		c.logger.Error(fmt.Sprintf("project update data: %v", err))
		return
	}
	c.Send(event.ProjectUpdate, event.ProjectUpdatePayload{
		ProjectID:  projectID,
		UpdateType: updateType,
		Data:       b,
		Timestamp:  time.Now(),
	})
}

func (c *Client) UpdatePresence(userID, status string) {
	c.Send(event.PresenceUpdate, event.PresenceUpdatePayload{
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now(),
	})
}
