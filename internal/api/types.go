package api

import (
	"encoding/json"
	"time"

	"github.com/Zain0205/travelin-chat/internal/chat"
)

type Empty struct{}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
}

type StatusResponse struct {
	Profile     string    `json:"profile"`
	State       string    `json:"state"`
	StateSince  time.Time `json:"state_since"`
	RetryCount  int       `json:"retry_count"`
	LoggedIn    bool      `json:"logged_in"`
	UserID      int       `json:"user_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	OpenPartner int       `json:"open_partner,omitempty"`
	Notice      string    `json:"notice,omitempty"`
	UptimeMS    int64     `json:"uptime_ms"`
}

type ConversationsResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
}

type ConversationRequest struct {
	CounterpartID int `json:"counterpart_id"`
}

type ThreadResponse struct {
	Thread  chat.Thread `json:"thread"`
	Input   string      `json:"input"`
	Sending bool        `json:"sending"`
}

type InputRequest struct {
	CounterpartID string `json:"counterpart_id"`
	Text          string `json:"text"`
}

type TypingRequest struct {
	CounterpartID string `json:"counterpart_id"`
	IsTyping      bool   `json:"is_typing"`
}

type SendRequest struct {
	CounterpartID string `json:"counterpart_id"`
	Body          string `json:"body"`
}

type WatchRequest struct {
	// Namespace filters events by kind prefix; empty watches everything.
	Namespace string `json:"namespace"`
}

// Event is one bus event streamed by WatchEvents.
type Event struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
