package model

import (
	"time"

	"github.com/kainult/price-platform/internal/transcript"
)

// Session is a chat session as returned by the API.
type Session struct {
	ID          string                   `json:"id"`
	UserID      string                   `json:"user_id"`
	Messages    []transcript.MessageView `json:"messages"`
	Busy        bool                     `json:"busy"`
	Suggestions []string                 `json:"suggestions,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	Sequence    uint64                   `json:"sequence"`
}

// ListSessionsResponse is the response for listing a user's sessions.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

// SendMessageRequest is the request to send a chat message.
type SendMessageRequest struct {
	Content string `json:"content"`
}
