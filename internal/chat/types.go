// Package chat holds the conversation state of the signed-in user: the open
// thread, outbound sends and the server-derived conversation list.
package chat

import (
	"context"
	"time"

	"github.com/Zain0205/travelin-chat/internal/protocol"
)

// Defaults for Config.
const (
	DefaultHistoryLimit = 50
	DefaultTypingIdle   = time.Second
)

// Config tunes the chat components.
type Config struct {
	HistoryLimit int
	TypingIdle   time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.TypingIdle <= 0 {
		c.TypingIdle = DefaultTypingIdle
	}
	return c
}

// Emitter is the part of the connection the chat components write through.
type Emitter interface {
	Emit(ctx context.Context, out protocol.Outbound) error
	Connected() bool
	UserID() int
}

// DeliveryState tracks a message from local send to server acknowledgement.
type DeliveryState string

const (
	Pending DeliveryState = "pending"
	Sent    DeliveryState = "sent"
	Failed  DeliveryState = "failed"
)

// Message is one entry of a thread. ID is zero until the server
// acknowledged the message; LocalID is set only for messages sent from here.
type Message struct {
	ID         int64
	LocalID    string
	SenderID   int
	ReceiverID int
	Body       string
	CreatedAt  time.Time
	State      DeliveryState
}

func messageFromWire(m protocol.ChatMessage) Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
		State:      Sent,
	}
}

// Thread is a snapshot of the open conversation.
type Thread struct {
	CounterpartID  int
	Messages       []Message
	Loading        bool
	PartnerTyping  bool
	ConnectionLost bool
}

// Conversation is one row of the conversation list.
type Conversation struct {
	CounterpartID   int
	Name            string
	AvatarURL       string
	LastMessage     string
	LastMessageTime time.Time
	UnreadCount     int
}

func conversationFromWire(c protocol.ConversationSummary) Conversation {
	return Conversation{
		CounterpartID:   c.PartnerID,
		Name:            c.PartnerName,
		AvatarURL:       c.PartnerAvatar,
		LastMessage:     c.LastMessage,
		LastMessageTime: c.LastMessageTime,
		UnreadCount:     c.UnreadCount,
	}
}

// PreconditionError is returned when an operation was rejected before any
// network I/O. Reason is the text shown to the user.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// Precondition texts.
const (
	TextEmptyMessage   = "Message cannot be empty"
	TextNoConversation = "No conversation selected"
	TextNotConnected   = "Not connected to chat server"
	TextInvalidUser    = "Invalid user session"
	TextInvalidPartner = "Invalid recipient"
	TextSendFailed     = "Failed to send message"
	TextSendLost       = "Message not sent: connection lost"
)
