package event

import (
	"encoding/json"
	"time"
)

const (
	Connected       = "connected"
	Disconnected    = "disconnected"
	Error           = "error"
	ReconnectFailed = "reconnect_failed"
	Message         = "message"

	ChatMessage     = "chat_message"
	TypingIndicator = "typing_indicator"
	JoinProject     = "join_project"
	LeaveProject    = "leave_project"
	PresenceUpdate  = "presence_update"
	ProjectUpdate   = "project_update"
	UserJoined      = "user_joined"
	UserLeft        = "user_left"
	Ping            = "ping"
	Pong            = "pong"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Project update kinds. The project_update channel also carries chat and
// upload notifications so the activity feed can treat them uniformly.
const (
	UpdateStatusChange  = "status_change"
	UpdateFileUpload    = "file_upload"
	UpdateChatMessage   = "chat_message"
	UpdateProjectUpdate = "project_update"
)

type ChatMessagePayload struct {
	ProjectID string    `json:"projectId"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingIndicatorPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
}

type JoinProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type LeaveProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type PresenceUpdatePayload struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ProjectUpdatePayload struct {
	ProjectID  string          `json:"projectId"`
	UpdateType string          `json:"updateType"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
	ID         string          `json:"id,omitempty"`
}

type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status,omitempty"`
}

type UserJoinedPayload struct {
	UserID    string    `json:"userId"`
	ProjectID string    `json:"projectId"`
	UserInfo  *UserInfo `json:"userInfo,omitempty"`
}

type UserLeftPayload struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// DisconnectedPayload mirrors websocket close codes: 1000 is a normal,
// client-requested close.
type DisconnectedPayload struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
