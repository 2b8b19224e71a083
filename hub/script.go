package hub

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/sustentus/collab/event"
)

// defaultRoster is the demo team the hub impersonates when scripted
// activity is on.
var defaultRoster = []event.UserInfo{
	{ID: "csm-1", Name: "Sarah Johnson", Role: "CSM", Status: event.StatusOnline},
	{ID: "pm-1", Name: "Mike Chen", Role: "PM", Status: event.StatusOnline},
	{ID: "dev-1", Name: "Alex Rodriguez", Role: "Expert", Status: event.StatusOnline},
}

type scriptedActivity struct {
	updateType string
	data       map[string]any
}

var scriptedActivities = []scriptedActivity{
	{
		updateType: event.UpdateStatusChange,
		data: map[string]any{
			"oldStatus":   "In Progress",
			"newStatus":   "Review",
			"description": "Project moved to review phase",
		},
	},
	{
		updateType: event.UpdateFileUpload,
		data: map[string]any{
			"fileName":   "requirements-v2.pdf",
			"fileSize":   "2.4 MB",
			"uploadedBy": "PM",
		},
	},
	{
		updateType: event.UpdateChatMessage,
		data: map[string]any{
			"message": "I've reviewed the latest changes. Everything looks great!",
			"role":    "CSM",
		},
	},
}

var teamResponses = []struct {
	role    string
	message string
}{
	{"CSM", "Thanks for the update! I'll review this and get back to you shortly."},
	{"PM", "Great question! Let me check our project timeline and provide you with an update."},
	{"Expert", "I can help with that technical question. Let me prepare a detailed response."},
}

// activityLoop periodically synthesizes project activity and fans it out to
// every room, until the hub closes.
func (h *Hub) activityLoop() {
	ticker := time.NewTicker(h.activityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.simulateActivity()
		}
	}
}

func (h *Hub) simulateActivity() {
	activity := scriptedActivities[rand.Intn(len(scriptedActivities))]
	data, err := json.Marshal(activity.data)
	if err != nil {
		return
	}

	h.mu.RLock()
	rooms := make([]string, 0, len(h.rooms))
	for projectID := range h.rooms {
		rooms = append(rooms, projectID)
	}
	h.mu.RUnlock()

	for _, projectID := range rooms {
		h.broadcastToRoom(projectID, event.ProjectUpdate, event.ProjectUpdatePayload{
			ProjectID:  projectID,
			UpdateType: activity.updateType,
			Data:       data,
			Timestamp:  time.Now(),
			ID:         event.NewMessageID(),
		})
	}
}

func (h *Hub) simulatePeerJoining(projectID string) {
	peer := h.roster[rand.Intn(len(h.roster))]
	h.broadcastToRoom(projectID, event.UserJoined, event.UserJoinedPayload{
		UserID:    peer.ID,
		ProjectID: projectID,
		UserInfo:  &peer,
	})
}

func (h *Hub) simulateTeamResponse(projectID string) {
	resp := teamResponses[rand.Intn(len(teamResponses))]
	peer := h.roster[0]
	for i := range h.roster {
		if h.roster[i].Role == resp.role {
			peer = h.roster[i]
			break
		}
	}
	h.broadcastToRoom(projectID, event.ChatMessage, event.ChatMessagePayload{
		ProjectID: projectID,
		Message:   resp.message,
		UserID:    peer.ID,
		Role:      peer.Role,
		Timestamp: time.Now(),
	})
}

// rosterInfo returns the roster entry for id, if the id belongs to a
// scripted peer.
func (h *Hub) rosterInfo(id string) *event.UserInfo {
	for i := range h.roster {
		if h.roster[i].ID == id {
			return &h.roster[i]
		}
	}
	return nil
}
