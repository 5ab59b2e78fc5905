package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event names (server → client).
const (
	EventNewMessage       = "newMessage"
	EventMessageReceived  = "messageReceived"
	EventChatHistory      = "chatHistory"
	EventChatList         = "chatList"
	EventUserTyping       = "userTyping"
	EventMessageSent      = "messageSent"
	EventMessageError     = "messageError"
	EventMessagesRead     = "messagesRead"
	EventChatHistoryError = "chatHistoryError"
	EventChatListError    = "chatListError"
	EventMarkAsReadError  = "markAsReadError"
)

// Session-level notifications produced by the connection manager.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Inbound is an event delivered to chat components.
type Inbound interface {
	EventName() string
}

// ChatMessage is a message as the server reports it.
type ChatMessage struct {
	ID         int64     `json:"id"`
	SenderID   int       `json:"senderId"`
	ReceiverID int       `json:"receiverId"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConversationSummary is one row of the server-derived conversation list.
type ConversationSummary struct {
	PartnerID       int       `json:"partnerId"`
	PartnerName     string    `json:"partnerName"`
	PartnerAvatar   string    `json:"partnerAvatar,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
}

// NewMessage delivers a message to a room member.
type NewMessage struct {
	Message ChatMessage
}

// MessageReceived notifies the receiver that a message arrived while it may
// not be in the room.
type MessageReceived struct {
	SenderID int          `json:"senderId"`
	Message  *ChatMessage `json:"message,omitempty"`
}

// ChatHistory carries one page of the history with a partner.
type ChatHistory struct {
	PartnerID int           `json:"partnerId,omitempty"`
	Page      int           `json:"page,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

// ChatList is a full snapshot of the conversation list.
type ChatList struct {
	Conversations []ConversationSummary `json:"chats"`
}

// UserTyping reports the typing state of UserID.
type UserTyping struct {
	UserID   int  `json:"userId"`
	IsTyping bool `json:"isTyping"`
}

// MessageSent acknowledges the most recent sendMessage.
type MessageSent struct {
	Success bool         `json:"success"`
	Message *ChatMessage `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// MessagesRead acknowledges a markAsRead command.
type MessagesRead struct {
	UserID   int `json:"userId"`
	SenderID int `json:"senderId"`
}

// ProtocolError is any of the server's error events.
type ProtocolError struct {
	Event   string `json:"-"`
	Message string `json:"error"`
}

// Connected is emitted once the transport handshake succeeded, after the
// initial connect and after every reconnect.
type Connected struct {
	Reconnect bool
}

// Disconnected is emitted when the transport dropped unexpectedly.
type Disconnected struct {
	Reason string
}

func (NewMessage) EventName() string      { return EventNewMessage }
func (MessageReceived) EventName() string { return EventMessageReceived }
func (ChatHistory) EventName() string     { return EventChatHistory }
func (ChatList) EventName() string        { return EventChatList }
func (UserTyping) EventName() string      { return EventUserTyping }
func (MessageSent) EventName() string     { return EventMessageSent }
func (MessagesRead) EventName() string    { return EventMessagesRead }
func (e ProtocolError) EventName() string { return e.Event }
func (Connected) EventName() string       { return EventConnected }
func (Disconnected) EventName() string    { return EventDisconnected }

// Text returns the server-provided error message, or a fallback per event.
func (e ProtocolError) Text() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Event {
	case EventMessageError:
		return "Failed to send message"
	case EventChatHistoryError:
		return "Failed to load chat history"
	case EventChatListError:
		return "Failed to load conversations"
	case EventMarkAsReadError:
		return "Failed to mark messages as read"
	}
	return "Chat server error"
}

// Decode validates an inbound frame and returns its typed variant.
func Decode(f Frame) (Inbound, error) {
	switch f.Event {
	case EventNewMessage:
		var m ChatMessage
		if err := unmarshal(f, &m); err != nil {
			return nil, err
		}
		if err := m.validate(f.Event); err != nil {
			return nil, err
		}
		return NewMessage{Message: m}, nil

	case EventMessageReceived:
		var v MessageReceived
		if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		if v.SenderID == 0 && v.Message != nil {
			v.SenderID = v.Message.SenderID
		}
		return v, nil

	case EventChatHistory:
		var v ChatHistory
		if isArray(f.Data) {
			if err := unmarshal(f, &v.Messages); err != nil {
				return nil, err
			}
		} else if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		for _, m := range v.Messages {
			if err := m.validate(f.Event); err != nil {
				return nil, err
			}
		}
		return v, nil

	case EventChatList:
		var v ChatList
		if isArray(f.Data) {
			if err := unmarshal(f, &v.Conversations); err != nil {
				return nil, err
			}
		} else if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		for _, c := range v.Conversations {
			if c.PartnerID <= 0 {
				return nil, &ValidationError{Event: f.Event, Field: "partnerId"}
			}
		}
		return v, nil

	case EventUserTyping:
		var v UserTyping
		if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		if v.UserID <= 0 {
			return nil, &ValidationError{Event: f.Event, Field: "userId"}
		}
		return v, nil

	case EventMessageSent:
		var v MessageSent
		if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		return v, nil

	case EventMessagesRead:
		var v MessagesRead
		if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		return v, nil

	case EventMessageError, EventChatHistoryError, EventChatListError, EventMarkAsReadError:
		v := ProtocolError{Event: f.Event}
		if isString(f.Data) {
			if err := unmarshal(f, &v.Message); err != nil {
				return nil, err
			}
		} else if err := unmarshal(f, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, f.Event)
}

// Fallback returns the error event that stands in for a rejected frame when
// a component is waiting on that answer, so the wait ends with a notice
// instead of never ending.
func Fallback(f Frame) (Inbound, bool) {
	switch f.Event {
	case EventChatHistory:
		return ProtocolError{Event: EventChatHistoryError}, true
	case EventChatList:
		return ProtocolError{Event: EventChatListError}, true
	case EventMessageSent:
		return ProtocolError{Event: EventMessageError}, true
	}
	return nil, false
}

func (m ChatMessage) validate(event string) error {
	if m.SenderID <= 0 {
		return &ValidationError{Event: event, Field: "senderId"}
	}
	if m.ReceiverID <= 0 {
		return &ValidationError{Event: event, Field: "receiverId"}
	}
	return nil
}

func unmarshal(f Frame, v any) error {
	if len(f.Data) == 0 || bytes.Equal(bytes.TrimSpace(f.Data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Event, err)
	}
	return nil
}

func isArray(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isString(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '"'
}
