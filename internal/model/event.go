package model

import (
	"time"
)

// EventType names a frame pushed to stream subscribers.
type EventType string

const (
	EventTypeSnapshot  EventType = "snapshot"
	EventTypeUpdate    EventType = "update"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeError     EventType = "error"
)

// Frame is a WebSocket message from the server.
type Frame struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ClientFrameType names a WebSocket message from the client.
type ClientFrameType string

const (
	ClientFrameSubmit ClientFrameType = "submit"
	ClientFrameCancel ClientFrameType = "cancel"
)

// ClientFrame is a WebSocket message from the client.
type ClientFrame struct {
	Type    ClientFrameType `json:"type"`
	Content string          `json:"content,omitempty"`
}

// SessionEvent is the bus record of one session transition. The full
// transcript is not included; Content carries the affected message text
// for terminal transitions.
type SessionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Sequence  uint64    `json:"sequence"`
	MessageID string    `json:"message_id,omitempty"`
	Chunk     string    `json:"chunk,omitempty"`
	Content   string    `json:"content,omitempty"`
	Busy      bool      `json:"busy"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
